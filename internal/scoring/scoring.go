// Package scoring turns qualification answers into a lead score and class.
package scoring

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

// DefaultQualifiedThreshold is the score a lead must exceed to be QUALIFIED.
const DefaultQualifiedThreshold = 30

type tier struct {
	over   int
	points int
}

// Highest first; the first matching tier wins.
var (
	revenueTiers  = []tier{{50000, 30}, {10000, 20}, {5000, 10}}
	teamSizeTiers = []tier{{10, 20}, {3, 10}}
)

func tierPoints(value int, tiers []tier) int {
	for _, t := range tiers {
		if value > t.over {
			return t.points
		}
	}
	return 0
}

// Score is a pure function of the revenue and team size answers.
// Unparseable answers contribute nothing.
func Score(s types.Scratch) int {
	score := 0
	if revenue, ok := ParseNumber(s.Revenue); ok {
		score += tierPoints(revenue, revenueTiers)
	}
	if team, ok := ParseNumber(s.TeamSize); ok {
		score += tierPoints(team, teamSizeTiers)
	}
	return score
}

// Classifier maps a score to a classification.
type Classifier struct {
	Threshold int
}

func NewClassifier(threshold int) Classifier {
	if threshold <= 0 {
		threshold = DefaultQualifiedThreshold
	}
	return Classifier{Threshold: threshold}
}

func (c Classifier) Classify(score int) types.Classification {
	if score > c.Threshold {
		return types.ClassificationQualified
	}
	return types.ClassificationWarm
}

// IsQualified picks the premium offer: revenue over 10000 or a team over 3.
func IsQualified(s types.Scratch) bool {
	if revenue, ok := ParseNumber(s.Revenue); ok && revenue > 10000 {
		return true
	}
	if team, ok := ParseNumber(s.TeamSize); ok && team > 3 {
		return true
	}
	return false
}

// ParseNumber reads the leading integer of a free-text answer such as
// "60000", "$60,000" or "5 человек". Separators inside the number, spaces
// included, are ignored, so "15 000" and "5 10" read as 15000 and 510.
func ParseNumber(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimLeft(raw, "$€₽ ")
	var b strings.Builder
	for _, r := range raw {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case (r == ',' || r == '_' || r == ' ' || r == ' ') && b.Len() > 0:
			continue
		default:
			if b.Len() > 0 {
				return atoi(b.String())
			}
			return 0, false
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	return atoi(b.String())
}

func atoi(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		revenue  string
		teamSize string
		want     int
	}{
		{"top tiers", "50001", "11", 50},
		{"scenario lead", "60000", "5", 40},
		{"boundaries are exclusive", "50000", "10", 30},
		{"middle revenue", "10001", "3", 20},
		{"low revenue", "5001", "4", 20},
		{"nothing", "5000", "1", 0},
		{"non numeric", "a lot", "many", 0},
		{"missing", "", "", 0},
		{"formatted revenue", "$60,000", "5 человек", 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := types.Scratch{Revenue: tt.revenue, TeamSize: tt.teamSize}
			assert.Equal(t, tt.want, Score(s))
			assert.Equal(t, tt.want, Score(s), "score must be deterministic")
		})
	}
}

func TestClassify(t *testing.T) {
	c := NewClassifier(DefaultQualifiedThreshold)
	assert.Equal(t, types.ClassificationQualified, c.Classify(50))
	assert.Equal(t, types.ClassificationQualified, c.Classify(31))
	assert.Equal(t, types.ClassificationWarm, c.Classify(30))
	assert.Equal(t, types.ClassificationWarm, c.Classify(0))

	strict := NewClassifier(45)
	assert.Equal(t, types.ClassificationWarm, strict.Classify(40))
	assert.Equal(t, types.ClassificationQualified, strict.Classify(50))
}

func TestIsQualified(t *testing.T) {
	assert.True(t, IsQualified(types.Scratch{Revenue: "10001", TeamSize: "1"}))
	assert.True(t, IsQualified(types.Scratch{Revenue: "0", TeamSize: "4"}))
	assert.False(t, IsQualified(types.Scratch{Revenue: "10000", TeamSize: "3"}))
	assert.False(t, IsQualified(types.Scratch{Revenue: "много", TeamSize: "команда"}))
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"60000", 60000, true},
		{"$60,000", 60000, true},
		{"1 200 000", 1200000, true},
		{"15 000 ₽", 15000, true},
		{"5 10", 510, true},
		{"5 человек", 5, true},
		{"12k", 12, true},
		{"около ста", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			n, ok := ParseNumber(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

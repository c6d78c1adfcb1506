// Package funnel drives a lead through the sales conversation.
//
// Machine.Step is a pure transition function: it takes the stored session
// and one inbound event and returns the next session plus the effects the
// Engine must carry out. Engine owns all I/O.
package funnel

import (
	"strings"

	"github.com/BatmanBruc/hub-sales-bot/internal/scoring"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

type InputKind int

const (
	InputText InputKind = iota
	InputStart
	InputReset
)

type Input struct {
	Kind InputKind
	Text string
}

// Field is a qualification question, asked in declaration order.
type Field string

const (
	FieldNiche    Field = "niche"
	FieldRevenue  Field = "revenue"
	FieldTeamSize Field = "team_size"
)

var qualificationOrder = []Field{FieldNiche, FieldRevenue, FieldTeamSize}

type EffectKind string

const (
	EffectUpsertLead EffectKind = "upsert_lead"
	EffectWelcome    EffectKind = "welcome"
	EffectAsk        EffectKind = "ask"
	EffectQualified  EffectKind = "qualified"
	EffectPainPoint  EffectKind = "pain_point"
	EffectGenerate   EffectKind = "generate"
	EffectOffer      EffectKind = "offer"
	EffectReset      EffectKind = "reset"
)

type Effect struct {
	Kind           EffectKind
	Field          Field
	Stage          types.Stage
	Score          int
	Classification types.Classification
	PlanID         string
}

type Decision struct {
	Next    types.SessionState
	Effects []Effect
}

func (d Decision) Effect(kind EffectKind) (Effect, bool) {
	for _, e := range d.Effects {
		if e.Kind == kind {
			return e, true
		}
	}
	return Effect{}, false
}

func (d Decision) Has(kind EffectKind) bool {
	_, ok := d.Effect(kind)
	return ok
}

// DefaultPainKeywords are matched case-insensitively as substrings.
var DefaultPainKeywords = []string{
	"хаос", "проблем", "трудн",
	"chaos", "problem", "difficult",
}

type Machine struct {
	Classifier   scoring.Classifier
	PainKeywords []string
}

func NewMachine(threshold int) Machine {
	return Machine{
		Classifier:   scoring.NewClassifier(threshold),
		PainKeywords: DefaultPainKeywords,
	}
}

// Step computes the transition for one inbound event.
func (m Machine) Step(state types.SessionState, in Input) Decision {
	switch in.Kind {
	case InputReset:
		return Decision{
			Next:    types.IdleSession(state.LeadID),
			Effects: []Effect{{Kind: EffectReset}},
		}
	case InputStart:
		return m.start(state.LeadID)
	}

	switch state.Stage {
	case types.StageQualification:
		return m.qualify(state, in.Text)
	case types.StageProblemAmplification:
		return m.amplify(state, in.Text)
	case types.StageSolutionPresentation:
		return m.present(state)
	case types.StageClosing:
		return Decision{
			Next:    state,
			Effects: []Effect{{Kind: EffectGenerate, Stage: types.StageClosing}},
		}
	default:
		// a lead who writes before /start is welcomed the same way
		return m.start(state.LeadID)
	}
}

func (m Machine) start(leadID int64) Decision {
	return Decision{
		Next: types.SessionState{LeadID: leadID, Stage: types.StageQualification},
		Effects: []Effect{
			{Kind: EffectUpsertLead},
			{Kind: EffectWelcome},
			{Kind: EffectAsk, Field: FieldNiche},
		},
	}
}

func (m Machine) qualify(state types.SessionState, text string) Decision {
	next := state
	next.Scratch = state.Scratch.Clone()

	if missing, ok := firstMissing(next.Scratch); ok {
		setField(&next.Scratch, missing, strings.TrimSpace(text))
	}

	if missing, ok := firstMissing(next.Scratch); ok {
		return Decision{
			Next:    next,
			Effects: []Effect{{Kind: EffectAsk, Field: missing}},
		}
	}

	score := scoring.Score(next.Scratch)
	classification := m.Classifier.Classify(score)
	next.Stage = types.StageProblemAmplification
	return Decision{
		Next: next,
		Effects: []Effect{
			{Kind: EffectQualified, Score: score, Classification: classification},
			{Kind: EffectGenerate, Stage: types.StageProblemAmplification},
		},
	}
}

func (m Machine) amplify(state types.SessionState, text string) Decision {
	d := Decision{
		Next:    state,
		Effects: []Effect{{Kind: EffectGenerate, Stage: types.StageProblemAmplification}},
	}
	if !m.mentionsPain(text) {
		return d
	}
	d.Next.Scratch = state.Scratch.Clone()
	d.Next.Scratch.PainPoints = append(d.Next.Scratch.PainPoints, strings.TrimSpace(text))
	d.Next.Stage = types.StageSolutionPresentation
	d.Effects = append(d.Effects, Effect{Kind: EffectPainPoint})
	return d
}

func (m Machine) present(state types.SessionState) Decision {
	plan := types.PlanTestDrive
	if scoring.IsQualified(state.Scratch) {
		plan = types.PlanPremiumHub
	}
	return Decision{
		Next: state,
		Effects: []Effect{
			{Kind: EffectGenerate, Stage: types.StageSolutionPresentation},
			{Kind: EffectOffer, PlanID: plan},
		},
	}
}

func (m Machine) mentionsPain(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range m.PainKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func firstMissing(s types.Scratch) (Field, bool) {
	for _, f := range qualificationOrder {
		if fieldValue(s, f) == "" {
			return f, true
		}
	}
	return "", false
}

func fieldValue(s types.Scratch, f Field) string {
	switch f {
	case FieldNiche:
		return s.Niche
	case FieldRevenue:
		return s.Revenue
	case FieldTeamSize:
		return s.TeamSize
	}
	return ""
}

func setField(s *types.Scratch, f Field, v string) {
	switch f {
	case FieldNiche:
		s.Niche = v
	case FieldRevenue:
		s.Revenue = v
	case FieldTeamSize:
		s.TeamSize = v
	}
}

package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

func text(s string) Input { return Input{Kind: InputText, Text: s} }

func TestStep_StartEntersQualification(t *testing.T) {
	m := NewMachine(0)
	prev := types.SessionState{LeadID: 1, Stage: types.StageClosing, Scratch: types.Scratch{Niche: "old"}}

	d := m.Step(prev, Input{Kind: InputStart})

	assert.Equal(t, types.StageQualification, d.Next.Stage)
	assert.Empty(t, d.Next.Scratch.Niche)
	assert.True(t, d.Has(EffectUpsertLead))
	ask, ok := d.Effect(EffectAsk)
	require.True(t, ok)
	assert.Equal(t, FieldNiche, ask.Field)
}

func TestStep_QualificationAsksInOrder(t *testing.T) {
	m := NewMachine(0)
	state := m.Step(types.IdleSession(1), Input{Kind: InputStart}).Next

	d := m.Step(state, text("coaching"))
	assert.Equal(t, types.StageQualification, d.Next.Stage)
	ask, _ := d.Effect(EffectAsk)
	assert.Equal(t, FieldRevenue, ask.Field)
	assert.Equal(t, "coaching", d.Next.Scratch.Niche)

	// content is not validated, only presence
	d = m.Step(d.Next, text("не знаю"))
	ask, _ = d.Effect(EffectAsk)
	assert.Equal(t, FieldTeamSize, ask.Field)
	assert.Equal(t, "не знаю", d.Next.Scratch.Revenue)

	d = m.Step(d.Next, text("3"))
	assert.Equal(t, types.StageProblemAmplification, d.Next.Stage)
	q, ok := d.Effect(EffectQualified)
	require.True(t, ok)
	assert.Equal(t, 0, q.Score)
	assert.Equal(t, types.ClassificationWarm, q.Classification)
	assert.False(t, d.Has(EffectAsk))
}

func TestStep_QualificationBlankAnswerAsksAgain(t *testing.T) {
	m := NewMachine(0)
	state := types.SessionState{LeadID: 1, Stage: types.StageQualification, Scratch: types.Scratch{Niche: "retail"}}

	d := m.Step(state, text("   "))
	ask, _ := d.Effect(EffectAsk)
	assert.Equal(t, FieldRevenue, ask.Field)
	assert.Empty(t, d.Next.Scratch.Revenue)
}

func TestStep_ScenarioLead(t *testing.T) {
	m := NewMachine(0)
	state := m.Step(types.IdleSession(12345), Input{Kind: InputStart}).Next
	for _, answer := range []string{"coaching", "60000"} {
		state = m.Step(state, text(answer)).Next
	}
	d := m.Step(state, text("5"))

	q, ok := d.Effect(EffectQualified)
	require.True(t, ok)
	assert.Equal(t, 40, q.Score)
	assert.Equal(t, types.ClassificationQualified, q.Classification)
	assert.Equal(t, types.StageProblemAmplification, d.Next.Stage)
	gen, ok := d.Effect(EffectGenerate)
	require.True(t, ok)
	assert.Equal(t, types.StageProblemAmplification, gen.Stage)
}

func TestStep_ProblemAmplification(t *testing.T) {
	m := NewMachine(0)
	state := types.SessionState{LeadID: 1, Stage: types.StageProblemAmplification}

	d := m.Step(state, text("всё нормально"))
	assert.Equal(t, types.StageProblemAmplification, d.Next.Stage)
	assert.True(t, d.Has(EffectGenerate))
	assert.Empty(t, d.Next.Scratch.PainPoints)

	d = m.Step(state, text("В команде полный ХАОС"))
	assert.Equal(t, types.StageSolutionPresentation, d.Next.Stage)
	assert.Equal(t, []string{"В команде полный ХАОС"}, d.Next.Scratch.PainPoints)
	assert.True(t, d.Has(EffectPainPoint))
	assert.Empty(t, state.Scratch.PainPoints, "input state must not be mutated")
}

func TestStep_SolutionPresentationOffers(t *testing.T) {
	m := NewMachine(0)
	tests := []struct {
		name    string
		scratch types.Scratch
		plan    string
	}{
		{"revenue qualifies", types.Scratch{Revenue: "20000", TeamSize: "1"}, types.PlanPremiumHub},
		{"team qualifies", types.Scratch{Revenue: "100", TeamSize: "4"}, types.PlanPremiumHub},
		{"neither", types.Scratch{Revenue: "10000", TeamSize: "3"}, types.PlanTestDrive},
		{"unparseable", types.Scratch{Revenue: "много", TeamSize: "?"}, types.PlanTestDrive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := types.SessionState{LeadID: 1, Stage: types.StageSolutionPresentation, Scratch: tt.scratch}
			d := m.Step(state, text("расскажи подробнее"))
			assert.Equal(t, types.StageSolutionPresentation, d.Next.Stage)
			offer, ok := d.Effect(EffectOffer)
			require.True(t, ok)
			assert.Equal(t, tt.plan, offer.PlanID)
		})
	}
}

func TestStep_ClosingSelfLoops(t *testing.T) {
	m := NewMachine(0)
	state := types.SessionState{LeadID: 1, Stage: types.StageClosing}
	d := m.Step(state, text("проблема с доступом"))
	assert.Equal(t, types.StageClosing, d.Next.Stage)
	gen, _ := d.Effect(EffectGenerate)
	assert.Equal(t, types.StageClosing, gen.Stage)
}

func TestStep_ResetFromAnyStage(t *testing.T) {
	m := NewMachine(0)
	for _, st := range []types.Stage{types.StageQualification, types.StageProblemAmplification, types.StageSolutionPresentation, types.StageClosing} {
		d := m.Step(types.SessionState{LeadID: 1, Stage: st, Scratch: types.Scratch{Niche: "x"}}, Input{Kind: InputReset})
		assert.Equal(t, types.StageIdle, d.Next.Stage)
		assert.Empty(t, d.Next.Scratch.Niche)
		assert.True(t, d.Has(EffectReset))
	}
}

func TestStep_IdleTextActsAsStart(t *testing.T) {
	m := NewMachine(0)
	d := m.Step(types.IdleSession(1), text("привет"))
	assert.Equal(t, types.StageQualification, d.Next.Stage)
	assert.True(t, d.Has(EffectWelcome))
}

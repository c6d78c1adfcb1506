package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;Tom &amp; Jerry&lt;/b&gt;", Escape(" <b>Tom & Jerry</b> "))
}

func TestQuestion(t *testing.T) {
	for _, field := range []string{"niche", "revenue", "team_size"} {
		assert.NotEmpty(t, Question(i18n.RU, field))
		assert.NotEmpty(t, Question(i18n.EN, field))
	}
	assert.Empty(t, Question(i18n.RU, "pain"))
}

func TestOffer(t *testing.T) {
	premium := Offer(i18n.RU, types.Plans[types.PlanPremiumHub])
	assert.Contains(t, premium, "PREMIUM17")
	assert.Contains(t, premium, "£17")

	trial := Offer(i18n.EN, types.Plans[types.PlanTestDrive])
	assert.Contains(t, trial, "SOROKA")
	assert.Contains(t, trial, "£9/month")
}

func TestStats(t *testing.T) {
	s := Stats{
		TotalLeads: 10,
		ByClassification: map[types.Classification]int{
			types.ClassificationCustomer: 3,
			types.ClassificationNew:      7,
		},
		ActiveByPlan: map[string]int{types.PlanPremiumHub: 2, types.PlanTestDrive: 1},
		GeneratedAt:  time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}
	assert.Equal(t, 3, s.Customers())
	assert.Equal(t, 3, s.ActiveSubscriptions())
	assert.Equal(t, 2*17+9, s.MRR())
	assert.InDelta(t, 30.0, s.ConversionPercent(), 0.001)

	text := AdminStats(s)
	assert.Contains(t, text, "£43/мес")
	assert.Contains(t, text, "30.0%")
	assert.Contains(t, text, "VIP: 0")
	assert.Zero(t, Stats{}.ConversionPercent())
}

func TestAdminConversationTruncates(t *testing.T) {
	long := strings.Repeat("я", 600)
	text := AdminConversation(42, []types.ConversationEntry{{Role: types.RoleLead, Text: long}})
	assert.Contains(t, text, "…")
	assert.NotContains(t, text, long)
	assert.Contains(t, AdminConversation(42, nil), "Сообщений нет")
}

func TestAdminLeadCard(t *testing.T) {
	card := AdminLeadCard(types.Lead{ID: 7, FirstName: "<Ann>", Classification: types.ClassificationWarm}, nil)
	assert.Contains(t, card, "&lt;Ann&gt;")
	assert.Contains(t, card, "Ниша: -")
}

package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

func TestMemoryStore_ActivateRequiresLead(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "sub_1", LeadID: 1})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestMemoryStore_ActivateUpsertsByProviderID(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, err := m.UpsertLead(ctx, types.Lead{ID: 1, FirstName: "Ann"})
	require.NoError(t, err)

	end := time.Now().Add(30 * 24 * time.Hour)
	first, err := m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "sub_1", LeadID: 1, PlanID: types.PlanTestDrive, CurrentPeriodEnd: end})
	require.NoError(t, err)
	second, err := m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "sub_1", LeadID: 1, PlanID: types.PlanPremiumHub, CurrentPeriodEnd: end})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, types.PlanPremiumHub, second.PlanID)

	subs, err := m.ListLeadSubscriptions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	lead, err := m.GetLead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationCustomer, lead.Classification)
}

func TestMemoryStore_ActivateSupersedesOtherSubscriptions(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, _ = m.UpsertLead(ctx, types.Lead{ID: 1})
	_, _ = m.UpsertLead(ctx, types.Lead{ID: 2})
	end := time.Now().Add(30 * 24 * time.Hour)

	_, err := m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "sub_trial", LeadID: 1, PlanID: types.PlanTestDrive, CurrentPeriodEnd: end, AutoRenew: true})
	require.NoError(t, err)
	_, err = m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "sub_other_lead", LeadID: 2, CurrentPeriodEnd: end})
	require.NoError(t, err)
	_, err = m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "sub_premium", LeadID: 1, PlanID: types.PlanPremiumHub, CurrentPeriodEnd: end})
	require.NoError(t, err)

	trial, err := m.GetSubscription(ctx, "sub_trial")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionCanceled, trial.Status)
	assert.False(t, trial.AutoRenew)

	premium, err := m.GetSubscription(ctx, "sub_premium")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionActive, premium.Status)

	other, err := m.GetSubscription(ctx, "sub_other_lead")
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionActive, other.Status)

	lead, err := m.GetLead(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationCustomer, lead.Classification)
}

func TestMemoryStore_UpsertLeadKeepsClassification(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, err := m.UpsertLead(ctx, types.Lead{ID: 1, FirstName: "Ann"})
	require.NoError(t, err)
	require.NoError(t, m.SetClassification(ctx, 1, types.ClassificationVIP))

	lead, err := m.UpsertLead(ctx, types.Lead{ID: 1, FirstName: "Anna"})
	require.NoError(t, err)
	assert.Equal(t, "Anna", lead.FirstName)
	assert.Equal(t, types.ClassificationVIP, lead.Classification)
}

func TestMemoryStore_ListExpiredFiltersStatus(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for id := int64(1); id <= 3; id++ {
		_, _ = m.UpsertLead(ctx, types.Lead{ID: id})
	}
	now := time.Now()

	_, err := m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "old", LeadID: 1, CurrentPeriodEnd: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "fresh", LeadID: 2, CurrentPeriodEnd: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = m.ActivateSubscription(ctx, types.Subscription{ProviderSubscriptionID: "gone", LeadID: 3, CurrentPeriodEnd: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = m.CancelSubscription(ctx, "gone")
	require.NoError(t, err)

	expired, err := m.ListExpired(ctx, []types.SubscriptionStatus{types.SubscriptionActive, types.SubscriptionPastDue}, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "old", expired[0].ProviderSubscriptionID)
}

func TestMemoryStore_RedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, _ = m.UpsertLead(ctx, types.Lead{ID: 1})
	now := time.Now()
	require.NoError(t, m.CreateAccessLink(ctx, types.AccessLink{Token: "tok", LeadID: 1, Payload: "https://t.me/+x", ExpiresAt: now.Add(time.Hour)}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.RedeemAccessLink(ctx, "tok", now); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestMemoryStore_RecentConversationKeepsTail(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for i := 0; i < 12; i++ {
		role := types.RoleLead
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		require.NoError(t, m.AppendConversation(ctx, types.ConversationEntry{LeadID: 1, Role: role, Text: string(rune('a' + i))}))
	}
	tail, err := m.RecentConversation(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, tail, 10)
	assert.Equal(t, "c", tail[0].Text)
	assert.Equal(t, "l", tail[9].Text)
}

func TestMemoryStore_MarkProcessedOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	inserted, err := m.MarkProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, inserted)
	inserted, err = m.MarkProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, inserted)
	done, err := m.AlreadyProcessed(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, done)
}

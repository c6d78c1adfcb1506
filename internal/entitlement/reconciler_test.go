package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/internal/access"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/store"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

type fakeMembership struct {
	mu        sync.Mutex
	revoked   []int64
	invited   []int64
	failFor   map[int64]error
	revokeErr error
}

func (f *fakeMembership) Revoke(_ context.Context, leadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[leadID]; err != nil {
		return err
	}
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, leadID)
	return nil
}

func (f *fakeMembership) Invite(_ context.Context, leadID int64, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invited = append(f.invited, leadID)
	return "https://t.me/+club", nil
}

type fakeStages struct {
	moves map[int64]types.Stage
}

func (f *fakeStages) MoveTo(_ context.Context, leadID int64, stage types.Stage) error {
	f.moves[leadID] = stage
	return nil
}

type fixture struct {
	rec        *Reconciler
	repo       *store.MemoryStore
	membership *fakeMembership
	stages     *fakeStages
}

func newFixture(t *testing.T, leads ...int64) *fixture {
	t.Helper()
	repo := store.NewMemoryStore()
	for _, id := range leads {
		_, err := repo.UpsertLead(context.Background(), types.Lead{ID: id})
		require.NoError(t, err)
	}
	m := &fakeMembership{failFor: map[int64]error{}}
	st := &fakeStages{moves: map[int64]types.Stage{}}
	rec := NewReconciler(Config{
		Subscriptions: repo,
		Membership:    m,
		Issuer:        access.NewIssuer(repo, nil, logging.Discard()),
		Stages:        st,
		PublicBaseURL: "https://hub.example/",
		Logger:        logging.Discard(),
	})
	return &fixture{rec: rec, repo: repo, membership: m, stages: st}
}

func (f *fixture) classification(t *testing.T, leadID int64) types.Classification {
	t.Helper()
	lead, err := f.repo.GetLead(context.Background(), leadID)
	require.NoError(t, err)
	return lead.Classification
}

func (f *fixture) status(t *testing.T, pid string) types.SubscriptionStatus {
	t.Helper()
	sub, err := f.repo.GetSubscription(context.Background(), pid)
	require.NoError(t, err)
	return sub.Status
}

func TestActivate_CheckoutCompleted(t *testing.T) {
	f := newFixture(t, 12345)
	ctx := context.Background()
	periodEnd := time.Now().UTC().AddDate(0, 1, 0)

	sub, err := f.rec.Activate(ctx, ActivateParams{
		LeadID:                 12345,
		ProviderSubscriptionID: "sub_1",
		PlanID:                 types.PlanPremiumHub,
		PeriodEnd:              periodEnd,
		AutoRenew:              true,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SubscriptionActive, sub.Status)
	assert.Equal(t, types.ClassificationCustomer, f.classification(t, 12345))
	assert.Equal(t, types.StageClosing, f.stages.moves[12345])

	grant, err := f.rec.GrantAccess(ctx, 12345)
	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+club", grant.InviteURL)
	assert.True(t, strings.HasPrefix(grant.AccessURL, "https://hub.example/access/"))
	assert.False(t, grant.Link.Used)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), grant.Link.ExpiresAt, time.Minute)

	stored, ok := f.repo.AccessLink(grant.Link.Token)
	require.True(t, ok)
	assert.Equal(t, types.ResourceChannelInvite, stored.ResourceType)
}

func TestActivate_UnknownLead(t *testing.T) {
	f := newFixture(t)
	_, err := f.rec.Activate(context.Background(), ActivateParams{LeadID: 1, ProviderSubscriptionID: "sub_x"})
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.Empty(t, f.stages.moves)
}

func TestActivate_UpsertsByProviderID(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	end := time.Now().Add(time.Hour)

	first, err := f.rec.Activate(ctx, ActivateParams{LeadID: 7, ProviderSubscriptionID: "sub_7", PlanID: types.PlanTestDrive, PeriodEnd: end})
	require.NoError(t, err)
	second, err := f.rec.Activate(ctx, ActivateParams{LeadID: 7, ProviderSubscriptionID: "sub_7", PlanID: types.PlanPremiumHub, PeriodEnd: end.Add(time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	subs, err := f.repo.ListLeadSubscriptions(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, subs, 1)
	assert.Equal(t, types.PlanPremiumHub, subs[0].PlanID)
}

func TestActivateThenCancel(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 5, ProviderSubscriptionID: "sub_5", PeriodEnd: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	_, err = f.rec.UpdateStatus(ctx, "sub_5", types.SubscriptionPastDue, nil)
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationCustomer, f.classification(t, 5))

	sub, err := f.rec.Cancel(ctx, "sub_5")
	require.NoError(t, err)
	require.NotNil(t, sub)

	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_5"))
	assert.Equal(t, types.ClassificationChurned, f.classification(t, 5))

	// duplicate cancellation converges
	_, err = f.rec.Cancel(ctx, "sub_5")
	require.NoError(t, err)
	assert.Equal(t, types.ClassificationChurned, f.classification(t, 5))
}

func TestCancel_UnknownIsNoop(t *testing.T) {
	f := newFixture(t)
	sub, err := f.rec.Cancel(context.Background(), "sub_missing")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestUpdateStatus_MovesPeriodEnd(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 5, ProviderSubscriptionID: "sub_5", PeriodEnd: time.Now()})
	require.NoError(t, err)

	next := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	sub, err := f.rec.UpdateStatus(ctx, "sub_5", types.SubscriptionActive, &next)
	require.NoError(t, err)
	assert.Equal(t, next, sub.CurrentPeriodEnd)

	_, err = f.rec.UpdateStatus(ctx, "sub_missing", types.SubscriptionActive, nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t, 12345, 2)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 12345, ProviderSubscriptionID: "sub_old", PeriodEnd: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = f.rec.Activate(ctx, ActivateParams{LeadID: 2, ProviderSubscriptionID: "sub_live", PeriodEnd: now.Add(time.Hour)})
	require.NoError(t, err)

	report, err := f.rec.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Deactivated: 1}, report)
	assert.Equal(t, []int64{12345}, f.membership.revoked)
	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_old"))
	assert.Equal(t, types.ClassificationChurned, f.classification(t, 12345))
	assert.Equal(t, types.SubscriptionActive, f.status(t, "sub_live"))

	report, err = f.rec.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	assert.Len(t, f.membership.revoked, 1)
}

func TestSweepExpired_BoundaryIsStrict(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 1, ProviderSubscriptionID: "sub_1", PeriodEnd: end})
	require.NoError(t, err)

	report, err := f.rec.SweepExpired(ctx, end)
	require.NoError(t, err)
	assert.Zero(t, report.Deactivated)
}

func TestSweepExpired_IsolatesFailures(t *testing.T) {
	f := newFixture(t, 1, 2, 3)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	for _, id := range []int64{1, 2, 3} {
		_, err := f.rec.Activate(ctx, ActivateParams{LeadID: id, ProviderSubscriptionID: fmt.Sprintf("sub_%d", id), PeriodEnd: past})
		require.NoError(t, err)
	}
	f.membership.failFor[2] = errors.New("telegram: Bad Request")

	report, err := f.rec.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Deactivated: 2, Failed: 1}, report)
	assert.Equal(t, types.SubscriptionActive, f.status(t, "sub_2"), "failed revoke leaves the record for the next sweep")

	delete(f.membership.failFor, 2)
	report, err = f.rec.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Deactivated: 1}, report)
}

func TestSweepExpired_OneRevokePerLead(t *testing.T) {
	f := newFixture(t, 9)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	for _, pid := range []string{"sub_a", "sub_b"} {
		_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 9, ProviderSubscriptionID: pid, PeriodEnd: past})
		require.NoError(t, err)
	}
	_, err := f.rec.UpdateStatus(ctx, "sub_b", types.SubscriptionPastDue, nil)
	require.NoError(t, err)

	report, err := f.rec.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deactivated)
	assert.Equal(t, []int64{9}, f.membership.revoked)
	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_b"))
}

func TestDeactivate_MissingChannelStillCancels(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.membership.revokeErr = types.MissingConfig("CLUB_CHANNEL_ID")
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 4, ProviderSubscriptionID: "sub_4", PeriodEnd: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	sub, err := f.rec.Deactivate(ctx, "sub_4")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_4"))
}

func TestSweepExpired_MissingChannelCountsAsFailure(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	f.membership.revokeErr = types.MissingConfig("CLUB_CHANNEL_ID")
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 4, ProviderSubscriptionID: "sub_4", PeriodEnd: time.Now().Add(-time.Hour)})
	require.NoError(t, err)

	report, err := f.rec.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Failed: 1}, report)
	assert.Equal(t, types.SubscriptionActive, f.status(t, "sub_4"))
	assert.Equal(t, types.ClassificationCustomer, f.classification(t, 4))
}

func TestDeactivate_SupersededSubscriptionKeepsAccess(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	end := time.Now().Add(30 * 24 * time.Hour)
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 7, ProviderSubscriptionID: "sub_trial", PlanID: types.PlanTestDrive, PeriodEnd: end})
	require.NoError(t, err)
	_, err = f.rec.Activate(ctx, ActivateParams{LeadID: 7, ProviderSubscriptionID: "sub_premium", PlanID: types.PlanPremiumHub, PeriodEnd: end})
	require.NoError(t, err)

	subs, err := f.repo.ListLeadSubscriptions(ctx, 7)
	require.NoError(t, err)
	live := 0
	for _, s := range subs {
		if s.Status == types.SubscriptionActive && s.CurrentPeriodEnd.After(time.Now()) {
			live++
		}
	}
	assert.Equal(t, 1, live)

	_, err = f.rec.Deactivate(ctx, "sub_trial")
	require.NoError(t, err)

	assert.Empty(t, f.membership.revoked)
	assert.Equal(t, types.ClassificationCustomer, f.classification(t, 7))
	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_trial"))
	assert.Equal(t, types.SubscriptionActive, f.status(t, "sub_premium"))

	_, err = f.rec.Deactivate(ctx, "sub_premium")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, f.membership.revoked)
	assert.Equal(t, types.ClassificationChurned, f.classification(t, 7))
}

func TestDeactivate_KeepsAccessWhileAnotherSubscriptionIsLive(t *testing.T) {
	f := newFixture(t, 8)
	ctx := context.Background()
	end := time.Now().Add(24 * time.Hour)
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 8, ProviderSubscriptionID: "sub_old", PeriodEnd: end})
	require.NoError(t, err)
	_, err = f.rec.Activate(ctx, ActivateParams{LeadID: 8, ProviderSubscriptionID: "sub_new", PeriodEnd: end})
	require.NoError(t, err)
	// the provider reports the superseded subscription active again
	_, err = f.rec.UpdateStatus(ctx, "sub_old", types.SubscriptionActive, nil)
	require.NoError(t, err)

	_, err = f.rec.Deactivate(ctx, "sub_old")
	require.NoError(t, err)
	assert.Empty(t, f.membership.revoked)
	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_old"))
	assert.Equal(t, types.ClassificationCustomer, f.classification(t, 8))
}

func TestSweepExpired_SkipsLeadWithLiveSubscription(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	now := time.Now()
	_, err := f.rec.Activate(ctx, ActivateParams{LeadID: 3, ProviderSubscriptionID: "sub_live", PeriodEnd: now.Add(time.Hour)})
	require.NoError(t, err)
	_, err = f.rec.Activate(ctx, ActivateParams{LeadID: 3, ProviderSubscriptionID: "sub_lapsed", PeriodEnd: now.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = f.rec.UpdateStatus(ctx, "sub_live", types.SubscriptionActive, nil)
	require.NoError(t, err)

	report, err := f.rec.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, SweepReport{Deactivated: 1}, report)
	assert.Empty(t, f.membership.revoked)
	assert.Equal(t, types.SubscriptionCanceled, f.status(t, "sub_lapsed"))
	assert.Equal(t, types.ClassificationCustomer, f.classification(t, 3))
}

func TestRevokeAccess(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()
	_, err := f.rec.ActivateManual(ctx, 6)
	require.NoError(t, err)

	n, err := f.rec.RevokeAccess(ctx, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{6}, f.membership.revoked)
	assert.Equal(t, types.ClassificationChurned, f.classification(t, 6))
}

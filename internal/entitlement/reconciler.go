// Package entitlement keeps subscription records and club membership in
// step with payment events and the periodic expiry sweep.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

// ManualPeriod is how long an admin-granted subscription lasts.
const ManualPeriod = 30 * 24 * time.Hour

var sweepStatuses = []types.SubscriptionStatus{types.SubscriptionActive, types.SubscriptionPastDue}

type Membership interface {
	Revoke(ctx context.Context, leadID int64) error
	Invite(ctx context.Context, leadID int64, ttl time.Duration) (string, error)
}

type LinkIssuer interface {
	Issue(ctx context.Context, leadID int64, resource types.ResourceType, payload string, ttl time.Duration) (*types.AccessLink, error)
}

// StageMover moves a lead's funnel session, e.g. into CLOSING after payment.
type StageMover interface {
	MoveTo(ctx context.Context, leadID int64, stage types.Stage) error
}

type ActivateParams struct {
	LeadID                 int64
	ProviderSubscriptionID string
	PlanID                 string
	PeriodEnd              time.Time
	AutoRenew              bool
}

// Grant is what a newly entitled lead receives.
type Grant struct {
	InviteURL string
	AccessURL string
	Link      *types.AccessLink
}

type SweepReport struct {
	Deactivated int
	Failed      int
}

type Config struct {
	Subscriptions types.SubscriptionStore
	Membership    Membership
	Issuer        LinkIssuer
	Stages        StageMover
	// PublicBaseURL prefixes /access/{token}; when empty the raw invite is handed out.
	PublicBaseURL string
	AccessTTL     time.Duration
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
}

type Reconciler struct {
	subs       types.SubscriptionStore
	membership Membership
	issuer     LinkIssuer
	stages     StageMover
	baseURL    string
	accessTTL  time.Duration
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewReconciler(cfg Config) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	return &Reconciler{
		subs:       cfg.Subscriptions,
		membership: cfg.Membership,
		issuer:     cfg.Issuer,
		stages:     cfg.Stages,
		baseURL:    strings.TrimRight(cfg.PublicBaseURL, "/"),
		accessTTL:  cfg.AccessTTL,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Activate upserts the subscription as ACTIVE and makes the lead a CUSTOMER.
// It returns types.ErrNotFound when the lead never contacted the bot.
func (r *Reconciler) Activate(ctx context.Context, p ActivateParams) (*types.Subscription, error) {
	if p.ProviderSubscriptionID == "" {
		return nil, fmt.Errorf("entitlement: activate lead %d: empty provider subscription id", p.LeadID)
	}
	sub, err := r.subs.ActivateSubscription(ctx, types.Subscription{
		ProviderSubscriptionID: p.ProviderSubscriptionID,
		LeadID:                 p.LeadID,
		Status:                 types.SubscriptionActive,
		PlanID:                 p.PlanID,
		CurrentPeriodEnd:       p.PeriodEnd,
		AutoRenew:              p.AutoRenew,
	})
	if err != nil {
		return nil, fmt.Errorf("entitlement: activate lead %d: %w", p.LeadID, err)
	}
	r.logger.Info("subscription activated",
		"lead_id", p.LeadID,
		"provider_subscription_id", p.ProviderSubscriptionID,
		"plan_id", p.PlanID,
		"period_end", p.PeriodEnd,
	)

	if r.stages != nil {
		if err := r.stages.MoveTo(ctx, p.LeadID, types.StageClosing); err != nil {
			r.logger.Warn("move to closing failed", "lead_id", p.LeadID, "error", err)
		}
	}
	return sub, nil
}

// ActivateManual records an admin-granted subscription for the lead.
func (r *Reconciler) ActivateManual(ctx context.Context, leadID int64) (*types.Subscription, error) {
	now := r.now()
	return r.Activate(ctx, ActivateParams{
		LeadID:                 leadID,
		ProviderSubscriptionID: fmt.Sprintf("manual_%d_%d", leadID, now.Unix()),
		PlanID:                 types.PlanPremiumHub,
		PeriodEnd:              now.Add(ManualPeriod),
	})
}

// GrantAccess creates a single-use channel invite and wraps it in an access link.
func (r *Reconciler) GrantAccess(ctx context.Context, leadID int64) (*Grant, error) {
	invite, err := r.membership.Invite(ctx, leadID, r.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("entitlement: grant lead %d: %w", leadID, err)
	}
	link, err := r.issuer.Issue(ctx, leadID, types.ResourceChannelInvite, invite, r.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("entitlement: grant lead %d: %w", leadID, err)
	}
	g := &Grant{InviteURL: invite, AccessURL: invite, Link: link}
	if r.baseURL != "" {
		g.AccessURL = r.baseURL + "/access/" + link.Token
	}
	return g, nil
}

// Cancel marks the subscription CANCELED and the lead CHURNED. An unknown
// subscription is logged and ignored so duplicate events are harmless.
func (r *Reconciler) Cancel(ctx context.Context, providerSubscriptionID string) (*types.Subscription, error) {
	sub, err := r.subs.CancelSubscription(ctx, providerSubscriptionID)
	if errors.Is(err, types.ErrNotFound) {
		r.logger.Warn("cancel for unknown subscription", "provider_subscription_id", providerSubscriptionID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entitlement: cancel %s: %w", providerSubscriptionID, err)
	}
	r.logger.Info("subscription canceled", "lead_id", sub.LeadID, "provider_subscription_id", providerSubscriptionID)
	return sub, nil
}

// UpdateStatus mirrors the provider status. Lead classification is untouched.
func (r *Reconciler) UpdateStatus(ctx context.Context, providerSubscriptionID string, status types.SubscriptionStatus, periodEnd *time.Time) (*types.Subscription, error) {
	sub, err := r.subs.UpdateSubscriptionStatus(ctx, providerSubscriptionID, status, periodEnd)
	if err != nil {
		return nil, fmt.Errorf("entitlement: update %s to %s: %w", providerSubscriptionID, status, err)
	}
	r.logger.Info("subscription status updated", "lead_id", sub.LeadID, "provider_subscription_id", providerSubscriptionID, "status", status)
	return sub, nil
}

// Deactivate revokes membership then cancels. When the lead still holds
// another live entitled subscription only this record is closed.
func (r *Reconciler) Deactivate(ctx context.Context, providerSubscriptionID string) (*types.Subscription, error) {
	sub, err := r.subs.GetSubscription(ctx, providerSubscriptionID)
	if errors.Is(err, types.ErrNotFound) {
		r.logger.Warn("deactivate for unknown subscription", "provider_subscription_id", providerSubscriptionID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entitlement: deactivate %s: %w", providerSubscriptionID, err)
	}
	covered, err := r.coveredElsewhere(ctx, sub.LeadID, providerSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("entitlement: deactivate %s: %w", providerSubscriptionID, err)
	}
	if covered {
		r.logger.Info("superseded subscription ended, access kept", "lead_id", sub.LeadID, "provider_subscription_id", providerSubscriptionID)
		if !sub.Status.Entitled() {
			return sub, nil
		}
		return r.UpdateStatus(ctx, providerSubscriptionID, types.SubscriptionCanceled, nil)
	}
	if err := r.revoke(ctx, sub.LeadID); err != nil {
		return nil, err
	}
	return r.Cancel(ctx, providerSubscriptionID)
}

// coveredElsewhere reports whether the lead holds an entitled subscription,
// other than the excluded ones, whose period has not ended.
func (r *Reconciler) coveredElsewhere(ctx context.Context, leadID int64, exclude ...string) (bool, error) {
	subs, err := r.subs.ListLeadSubscriptions(ctx, leadID)
	if err != nil {
		return false, err
	}
	now := r.now()
	for _, s := range subs {
		if slices.Contains(exclude, s.ProviderSubscriptionID) {
			continue
		}
		if s.Status.Entitled() && s.CurrentPeriodEnd.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// RevokeAccess removes a lead from the club and cancels every entitled
// subscription it holds. It returns how many subscriptions were canceled.
func (r *Reconciler) RevokeAccess(ctx context.Context, leadID int64) (int, error) {
	subs, err := r.subs.ListLeadSubscriptions(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("entitlement: revoke lead %d: %w", leadID, err)
	}
	if err := r.revoke(ctx, leadID); err != nil {
		return 0, err
	}
	canceled := 0
	for _, s := range subs {
		if !s.Status.Entitled() {
			continue
		}
		if _, err := r.Cancel(ctx, s.ProviderSubscriptionID); err != nil {
			return canceled, err
		}
		canceled++
	}
	return canceled, nil
}

// SweepExpired deactivates every lead whose ACTIVE or PAST_DUE subscription
// ended strictly before cutoff. Failures, including a missing channel
// setting, are counted and leave the records for the next sweep; the error
// is only for the initial listing.
func (r *Reconciler) SweepExpired(ctx context.Context, cutoff time.Time) (SweepReport, error) {
	expired, err := r.subs.ListExpired(ctx, sweepStatuses, cutoff)
	if err != nil {
		return SweepReport{}, fmt.Errorf("entitlement: list expired: %w", err)
	}

	byLead := make(map[int64][]types.Subscription)
	var order []int64
	for _, s := range expired {
		if _, ok := byLead[s.LeadID]; !ok {
			order = append(order, s.LeadID)
		}
		byLead[s.LeadID] = append(byLead[s.LeadID], s)
	}

	var report SweepReport
	for _, leadID := range order {
		if ctx.Err() != nil {
			break
		}
		if err := r.deactivateLead(ctx, leadID, byLead[leadID]); err != nil {
			report.Failed++
			r.logger.Error("sweep failed for lead", "lead_id", leadID, "error", err)
			continue
		}
		report.Deactivated++
	}

	r.metrics.ObserveSweep(report.Deactivated, report.Failed)
	r.logger.Info("expiry sweep finished", "cutoff", cutoff, "deactivated", report.Deactivated, "failed", report.Failed)
	return report, nil
}

func (r *Reconciler) deactivateLead(ctx context.Context, leadID int64, subs []types.Subscription) error {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.ProviderSubscriptionID
	}
	covered, err := r.coveredElsewhere(ctx, leadID, ids...)
	if err != nil {
		return err
	}
	if covered {
		for _, id := range ids {
			if _, err := r.UpdateStatus(ctx, id, types.SubscriptionCanceled, nil); err != nil {
				return err
			}
		}
		return nil
	}
	if r.membership == nil {
		return fmt.Errorf("entitlement: revoke lead %d: %w", leadID, types.MissingConfig("CLUB_CHANNEL_ID"))
	}
	if err := r.membership.Revoke(ctx, leadID); err != nil {
		return fmt.Errorf("entitlement: revoke lead %d: %w", leadID, err)
	}
	for _, s := range subs {
		if _, err := r.Cancel(ctx, s.ProviderSubscriptionID); err != nil {
			return fmt.Errorf("%s: %w", s.ProviderSubscriptionID, err)
		}
	}
	return nil
}

func (r *Reconciler) revoke(ctx context.Context, leadID int64) error {
	if r.membership == nil {
		return nil
	}
	err := r.membership.Revoke(ctx, leadID)
	if errors.Is(err, types.ErrConfigMissing) {
		r.logger.Warn("membership revoke skipped", "lead_id", leadID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("entitlement: revoke lead %d: %w", leadID, err)
	}
	return nil
}

package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BatmanBruc/hub-sales-bot/internal/entitlement"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const (
	providerStripe   = "stripe"
	maxWebhookBody   = 1 << 20
	signatureMaxSkew = 300
)

const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventInvoiceSucceeded    = "invoice.payment_succeeded"
)

// Entitlements is the part of the reconciler driven by payment events.
type Entitlements interface {
	Activate(ctx context.Context, p entitlement.ActivateParams) (*types.Subscription, error)
	GrantAccess(ctx context.Context, leadID int64) (*entitlement.Grant, error)
	UpdateStatus(ctx context.Context, providerSubscriptionID string, status types.SubscriptionStatus, periodEnd *time.Time) (*types.Subscription, error)
	Deactivate(ctx context.Context, providerSubscriptionID string) (*types.Subscription, error)
}

type SubscriptionFetcher interface {
	RetrieveSubscription(ctx context.Context, id string) (*Subscription, error)
}

type LeadLookup interface {
	GetLead(ctx context.Context, leadID int64) (*types.Lead, error)
	SetStripeCustomer(ctx context.Context, leadID int64, customerID string) error
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type WebhookConfig struct {
	Secret        string
	GracePeriod   int
	Entitlements  Entitlements
	Subscriptions SubscriptionFetcher
	Leads         LeadLookup
	Events        types.EventStore
	Notifier      Notifier
	Metrics       *metrics.Metrics
	Logger        *logging.Logger
}

type WebhookHandler struct {
	secret    string
	graceDays int
	ent       Entitlements
	subs      SubscriptionFetcher
	leads     LeadLookup
	events    types.EventStore
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		secret:    cfg.Secret,
		graceDays: cfg.GracePeriod,
		ent:       cfg.Entitlements,
		subs:      cfg.Subscriptions,
		leads:     cfg.Leads,
		events:    cfg.Events,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

type webhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	Subscription      string            `json:"subscription"`
	Customer          string            `json:"customer"`
	Metadata          map[string]string `json:"metadata"`
}

type invoice struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Customer     string `json:"customer"`
}

// errSkip acknowledges an event that cannot be acted on.
var errSkip = errors.New("event skipped")

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if !verifyStripeSignature(h.secret, payload, r.Header.Get("Stripe-Signature"), time.Now()) {
		h.metrics.ObserveWebhook("unknown", "bad_signature")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var evt webhookEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		h.logger.Error("failed to decode stripe event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if evt.ID == "" {
		http.Error(w, "missing event id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	processed, err := h.events.AlreadyProcessed(ctx, providerStripe, evt.ID)
	if err != nil {
		h.logger.Error("processed lookup failed", "event_id", evt.ID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if processed {
		h.metrics.ObserveWebhook(evt.Type, "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	err = h.dispatch(ctx, evt)
	switch {
	case err == nil:
		h.metrics.ObserveWebhook(evt.Type, "ok")
	case errors.Is(err, errSkip), errors.Is(err, types.ErrNotFound):
		h.metrics.ObserveWebhook(evt.Type, "skipped")
		h.logger.Warn("stripe event skipped", "event_id", evt.ID, "type", evt.Type, "reason", err)
	default:
		h.metrics.ObserveWebhook(evt.Type, "error")
		h.logger.Error("stripe event failed", "event_id", evt.ID, "type", evt.Type, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	if _, err := h.events.MarkProcessed(ctx, providerStripe, evt.ID); err != nil {
		h.logger.Error("failed to record processed event", "event_id", evt.ID, "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"received":true}`))
}

func (h *WebhookHandler) dispatch(ctx context.Context, evt webhookEvent) error {
	switch evt.Type {
	case EventCheckoutCompleted:
		var s checkoutSession
		if err := json.Unmarshal(evt.Data.Object, &s); err != nil {
			return fmt.Errorf("%w: decode session: %v", errSkip, err)
		}
		return h.checkoutCompleted(ctx, s)
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub Subscription
		if err := json.Unmarshal(evt.Data.Object, &sub); err != nil {
			return fmt.Errorf("%w: decode subscription: %v", errSkip, err)
		}
		if evt.Type == EventSubscriptionUpdated {
			return h.subscriptionUpdated(ctx, sub)
		}
		return h.subscriptionDeleted(ctx, sub)
	case EventInvoiceFailed, EventInvoiceSucceeded:
		var inv invoice
		if err := json.Unmarshal(evt.Data.Object, &inv); err != nil {
			return fmt.Errorf("%w: decode invoice: %v", errSkip, err)
		}
		if evt.Type == EventInvoiceFailed {
			return h.invoiceFailed(ctx, inv)
		}
		return h.invoiceSucceeded(ctx, inv)
	default:
		return nil
	}
}

func (h *WebhookHandler) checkoutCompleted(ctx context.Context, s checkoutSession) error {
	ref := s.ClientReferenceID
	if ref == "" {
		ref = s.Metadata["telegram_id"]
	}
	leadID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || leadID == 0 {
		return fmt.Errorf("%w: session %s has no lead reference", errSkip, s.ID)
	}
	if s.Subscription == "" {
		return fmt.Errorf("%w: session %s has no subscription", errSkip, s.ID)
	}

	sub, err := h.subs.RetrieveSubscription(ctx, s.Subscription)
	if err != nil {
		return fmt.Errorf("retrieve subscription %s: %w", s.Subscription, err)
	}

	if _, err := h.ent.Activate(ctx, entitlement.ActivateParams{
		LeadID:                 leadID,
		ProviderSubscriptionID: sub.ID,
		PlanID:                 PlanFromProductType(s.Metadata["product_type"]),
		PeriodEnd:              sub.PeriodEnd(),
		AutoRenew:              !sub.CancelAtPeriodEnd,
	}); err != nil {
		return err
	}

	customer := sub.Customer
	if customer == "" {
		customer = s.Customer
	}
	if customer != "" {
		if err := h.leads.SetStripeCustomer(ctx, leadID, customer); err != nil {
			h.logger.Warn("failed to store stripe customer", "lead_id", leadID, "error", err)
		}
	}

	lang := h.langFor(ctx, leadID)
	grant, err := h.ent.GrantAccess(ctx, leadID)
	if err != nil {
		h.logger.Error("access grant failed", "lead_id", leadID, "error", err)
		h.notify(ctx, leadID, messages.AccessPending(lang))
		return nil
	}
	h.notify(ctx, leadID, messages.AccessGranted(lang, grant.AccessURL))
	return nil
}

func (h *WebhookHandler) subscriptionUpdated(ctx context.Context, sub Subscription) error {
	end := sub.PeriodEnd()
	_, err := h.ent.UpdateStatus(ctx, sub.ID, MapStatus(sub.Status), &end)
	return err
}

func (h *WebhookHandler) subscriptionDeleted(ctx context.Context, sub Subscription) error {
	local, err := h.ent.Deactivate(ctx, sub.ID)
	if err != nil {
		return err
	}
	leadID, ok := sub.LeadID()
	if local != nil {
		leadID, ok = local.LeadID, true
	}
	if ok {
		h.notify(ctx, leadID, messages.SubscriptionEnded(h.langFor(ctx, leadID)))
	}
	return nil
}

func (h *WebhookHandler) invoiceFailed(ctx context.Context, inv invoice) error {
	if inv.Subscription == "" {
		return nil
	}
	local, err := h.ent.UpdateStatus(ctx, inv.Subscription, types.SubscriptionPastDue, nil)
	if err != nil {
		return err
	}
	h.notify(ctx, local.LeadID, messages.PaymentFailed(h.langFor(ctx, local.LeadID), h.graceDays))
	return nil
}

func (h *WebhookHandler) invoiceSucceeded(ctx context.Context, inv invoice) error {
	if inv.Subscription == "" {
		return nil
	}
	sub, err := h.subs.RetrieveSubscription(ctx, inv.Subscription)
	if err != nil {
		return fmt.Errorf("retrieve subscription %s: %w", inv.Subscription, err)
	}
	end := sub.PeriodEnd()
	_, err = h.ent.UpdateStatus(ctx, inv.Subscription, types.SubscriptionActive, &end)
	return err
}

func (h *WebhookHandler) langFor(ctx context.Context, leadID int64) i18n.Lang {
	lead, err := h.leads.GetLead(ctx, leadID)
	if err != nil {
		return i18n.Default
	}
	return i18n.FromLanguageCode(lead.LanguageCode)
}

func (h *WebhookHandler) notify(ctx context.Context, leadID int64, text string) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.Notify(ctx, leadID, text); err != nil {
		h.logger.Warn("lead notification failed", "lead_id", leadID, "error", err)
	}
}

// MapStatus converts a Stripe subscription status to ours.
func MapStatus(status string) types.SubscriptionStatus {
	switch status {
	case "active":
		return types.SubscriptionActive
	case "past_due":
		return types.SubscriptionPastDue
	case "canceled", "unpaid":
		return types.SubscriptionCanceled
	case "trialing":
		return types.SubscriptionTrialing
	default:
		return types.SubscriptionIncomplete
	}
}

// verifyStripeSignature checks the t=,v1= header against an HMAC-SHA256 of
// "timestamp.payload". An empty secret disables the check.
func verifyStripeSignature(secret string, payload []byte, header string, now time.Time) bool {
	if secret == "" {
		return true
	}
	if header == "" {
		return false
	}

	var timestamp string
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return false
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if skew := now.Unix() - ts; skew > signatureMaxSkew || skew < -signatureMaxSkew {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "." + string(payload)))
	expected := hex.EncodeToString(mac.Sum(nil))
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}

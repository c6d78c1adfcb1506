// Package payments talks to Stripe: subscription checkout sessions going
// out and lifecycle webhooks coming in.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

var stripeTracer = otel.Tracer("hub-sales-bot/internal/payments/stripe")

const (
	stripeAPIVersion = "2024-12-18.acacia"

	productPremium   = "premium"
	productTestDrive = "test_drive"
)

type StripeConfig struct {
	SecretKey      string
	BotUsername    string
	PriceIDs       map[string]string
	PromoCodes     map[string]string
	StaticLinks    map[string]string
	UseStaticLinks bool
}

type StripeClient struct {
	cfg        StripeConfig
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewStripeClient(cfg StripeConfig, logger *logging.Logger) *StripeClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeClient{
		cfg:        cfg,
		baseURL:    "https://api.stripe.com",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the Stripe API base URL (for testing).
func (s *StripeClient) WithBaseURL(baseURL string) *StripeClient {
	if baseURL != "" {
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
	return s
}

func productType(planID string) string {
	if planID == types.PlanPremiumHub {
		return productPremium
	}
	return productTestDrive
}

// PlanFromProductType maps checkout metadata back to a plan id.
func PlanFromProductType(product string) string {
	if product == productTestDrive {
		return types.PlanTestDrive
	}
	return types.PlanPremiumHub
}

func priceSetting(planID string) string {
	if planID == types.PlanPremiumHub {
		return "STRIPE_PREMIUM_PRICE_ID"
	}
	return "STRIPE_TEST_DRIVE_PRICE_ID"
}

// CreateCheckout returns a redirect URL for the lead to pay for planID.
func (s *StripeClient) CreateCheckout(ctx context.Context, leadID int64, planID string) (string, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("hub.lead_id", leadID),
		attribute.String("hub.plan_id", planID),
	)

	plan, ok := types.PlanByID(planID)
	if !ok {
		return "", fmt.Errorf("payments: unknown plan %q", planID)
	}
	if s.cfg.UseStaticLinks {
		if link := s.cfg.StaticLinks[planID]; link != "" {
			return link, nil
		}
	}
	if s.cfg.SecretKey == "" {
		return "", types.MissingConfig("STRIPE_SECRET_KEY")
	}
	priceID := s.cfg.PriceIDs[planID]
	if priceID == "" {
		return "", types.MissingConfig(priceSetting(planID))
	}

	ref := strconv.FormatInt(leadID, 10)
	product := productType(planID)
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", priceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("client_reference_id", ref)
	form.Set("metadata[telegram_id]", ref)
	form.Set("metadata[product_type]", product)
	form.Set("subscription_data[metadata][telegram_id]", ref)
	form.Set("subscription_data[metadata][product_type]", product)
	if s.cfg.BotUsername != "" {
		form.Set("success_url", fmt.Sprintf("https://t.me/%s?start=payment_success", s.cfg.BotUsername))
		form.Set("cancel_url", fmt.Sprintf("https://t.me/%s?start=payment_cancel", s.cfg.BotUsername))
	}

	code := s.cfg.PromoCodes[planID]
	if code == "" {
		code = plan.PromoCode
	}
	if promoID, err := s.lookupPromotionCode(ctx, code); err != nil {
		s.logger.Warn("promotion code lookup failed", "code", code, "error", err)
	} else if promoID != "" {
		form.Set("discounts[0][promotion_code]", promoID)
	} else {
		form.Set("allow_promotion_codes", "true")
	}

	var session struct {
		ID  string `json:"id"`
		URL string `json:"url"`
	}
	if err := s.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return "", err
	}
	if session.URL == "" {
		return "", fmt.Errorf("payments: %w: stripe response missing checkout url", types.ErrCollaboratorUnavailable)
	}
	s.logger.Info("checkout session created", "lead_id", leadID, "plan_id", planID, "session_id", session.ID)
	return session.URL, nil
}

func (s *StripeClient) lookupPromotionCode(ctx context.Context, code string) (string, error) {
	if code == "" {
		return "", nil
	}
	q := url.Values{}
	q.Set("code", code)
	q.Set("active", "true")
	q.Set("limit", "1")
	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := s.do(ctx, http.MethodGet, "/v1/promotion_codes?"+q.Encode(), nil, &list); err != nil {
		return "", err
	}
	if len(list.Data) == 0 {
		return "", nil
	}
	return list.Data[0].ID, nil
}

// Subscription is the subset of a Stripe subscription the webhooks need.
type Subscription struct {
	ID                string            `json:"id"`
	Status            string            `json:"status"`
	Customer          string            `json:"customer"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Metadata          map[string]string `json:"metadata"`
}

func (s Subscription) PeriodEnd() time.Time {
	return time.Unix(s.CurrentPeriodEnd, 0).UTC()
}

// LeadID reads the telegram_id metadata set at checkout.
func (s Subscription) LeadID() (int64, bool) {
	id, err := strconv.ParseInt(s.Metadata["telegram_id"], 10, 64)
	return id, err == nil && id != 0
}

func (s *StripeClient) RetrieveSubscription(ctx context.Context, id string) (*Subscription, error) {
	ctx, span := stripeTracer.Start(ctx, "stripe.retrieve_subscription")
	defer span.End()
	span.SetAttributes(attribute.String("hub.provider_subscription_id", id))

	if s.cfg.SecretKey == "" {
		return nil, types.MissingConfig("STRIPE_SECRET_KEY")
	}
	var sub Subscription
	if err := s.do(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(id), nil, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *StripeClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("payments: stripe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.SecretKey)
	req.Header.Set("Stripe-Version", stripeAPIVersion)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payments: %w: stripe http: %w", types.ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("payments: %w: stripe api status %d: %s", types.ErrCollaboratorUnavailable, resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payments: stripe decode: %w", err)
	}
	return nil
}

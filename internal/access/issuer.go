// Package access issues and redeems single-use, time-boxed access links.
package access

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const (
	DefaultTTL = 24 * time.Hour
	tokenBytes = 32
)

// Redemption is the outcome of a redeem attempt. Valid is false when the
// token is unknown, already used or expired.
type Redemption struct {
	Valid        bool
	Payload      string
	LeadID       int64
	ResourceType types.ResourceType
}

type Issuer struct {
	store   types.AccessLinkStore
	metrics *metrics.Metrics
	logger  *logging.Logger
	now     func() time.Time
}

func NewIssuer(store types.AccessLinkStore, m *metrics.Metrics, logger *logging.Logger) *Issuer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Issuer{
		store:   store,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Issue stores a fresh link for the lead. A non-positive ttl means DefaultTTL.
func (i *Issuer) Issue(ctx context.Context, leadID int64, resource types.ResourceType, payload string, ttl time.Duration) (*types.AccessLink, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("access: generate token: %w", err)
	}
	now := i.now()
	link := types.AccessLink{
		Token:        token,
		LeadID:       leadID,
		ResourceType: resource,
		Payload:      payload,
		ExpiresAt:    now.Add(ttl),
		CreatedAt:    now,
	}
	if err := i.store.CreateAccessLink(ctx, link); err != nil {
		return nil, fmt.Errorf("access: issue for lead %d: %w", leadID, err)
	}
	i.logger.Info("access link issued", "lead_id", leadID, "resource_type", resource, "expires_at", link.ExpiresAt)
	return &link, nil
}

// Redeem marks the link used in one conditional write. Only store failures
// are returned as errors.
func (i *Issuer) Redeem(ctx context.Context, token string) (Redemption, error) {
	if token == "" {
		i.metrics.ObserveRedemption(false)
		return Redemption{}, nil
	}
	link, err := i.store.RedeemAccessLink(ctx, token, i.now())
	if errors.Is(err, types.ErrNotFound) {
		i.metrics.ObserveRedemption(false)
		return Redemption{}, nil
	}
	if err != nil {
		return Redemption{}, fmt.Errorf("access: redeem: %w", err)
	}
	i.metrics.ObserveRedemption(true)
	i.logger.Info("access link redeemed", "lead_id", link.LeadID, "resource_type", link.ResourceType)
	return Redemption{
		Valid:        true,
		Payload:      link.Payload,
		LeadID:       link.LeadID,
		ResourceType: link.ResourceType,
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

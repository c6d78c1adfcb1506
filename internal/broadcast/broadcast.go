// Package broadcast fans admin announcements out to leads through a
// RabbitMQ queue drained by a rate-limited worker.
package broadcast

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

type Audience string

const (
	AudienceAll          Audience = "all"
	AudienceNonCustomers Audience = "non_customers"
	AudienceCustomers    Audience = "customers"
)

func ParseAudience(s string) (Audience, bool) {
	switch a := Audience(strings.ToLower(strings.TrimSpace(s))); a {
	case AudienceAll, AudienceNonCustomers, AudienceCustomers:
		return a, true
	}
	return "", false
}

func (a Audience) Filter() types.LeadFilter {
	switch a {
	case AudienceCustomers:
		return types.LeadFilter{Classification: types.ClassificationCustomer}
	case AudienceNonCustomers:
		return types.LeadFilter{ExcludeCustomers: true}
	default:
		return types.LeadFilter{}
	}
}

// Job is one queued message for one lead.
type Job struct {
	BroadcastID string `json:"broadcast_id"`
	LeadID      int64  `json:"lead_id"`
	Text        string `json:"text"`
}

type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

type LeadLister interface {
	ListLeads(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error)
}

type Result struct {
	BroadcastID string
	Audience    Audience
	Queued      int
	Failed      int
}

type Service struct {
	leads     LeadLister
	publisher Publisher
	logger    *logging.Logger
}

// NewService returns a broadcast service. A nil publisher means AMQP is not
// configured and Enqueue reports it.
func NewService(leads LeadLister, publisher Publisher, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{leads: leads, publisher: publisher, logger: logger}
}

// Enqueue publishes one job per lead in the audience. Publish failures are
// counted and do not stop the remaining jobs.
func (s *Service) Enqueue(ctx context.Context, audience Audience, text string) (Result, error) {
	res := Result{Audience: audience}
	if s.publisher == nil {
		return res, types.MissingConfig("AMQP_URL")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return res, fmt.Errorf("broadcast: empty text")
	}

	leads, err := s.leads.ListLeads(ctx, audience.Filter())
	if err != nil {
		return res, fmt.Errorf("broadcast: list %s: %w", audience, err)
	}

	res.BroadcastID = uuid.NewString()
	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		job := Job{BroadcastID: res.BroadcastID, LeadID: lead.ID, Text: text}
		if err := s.publisher.Publish(ctx, job); err != nil {
			res.Failed++
			s.logger.Warn("broadcast publish failed", "broadcast_id", res.BroadcastID, "lead_id", lead.ID, "error", err)
			continue
		}
		res.Queued++
	}
	s.logger.Info("broadcast queued",
		"broadcast_id", res.BroadcastID,
		"audience", audience,
		"queued", res.Queued,
		"failed", res.Failed,
	)
	return res, nil
}

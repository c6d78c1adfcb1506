package types

import (
	"context"
	"time"
)

type Lead struct {
	ID               int64
	Username         string
	FirstName        string
	LastName         string
	LanguageCode     string
	Niche            string
	Revenue          string
	TeamSize         string
	PainPoints       []string
	Classification   Classification
	Score            int
	IsAdmin          bool
	StripeCustomerID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (l Lead) DisplayName() string {
	name := l.FirstName
	if l.LastName != "" {
		if name != "" {
			name += " "
		}
		name += l.LastName
	}
	if name == "" && l.Username != "" {
		name = "@" + l.Username
	}
	return name
}

type Subscription struct {
	ID                     string
	ProviderSubscriptionID string
	LeadID                 int64
	Status                 SubscriptionStatus
	PlanID                 string
	CurrentPeriodEnd       time.Time
	AutoRenew              bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type AccessLink struct {
	Token        string
	LeadID       int64
	ResourceType ResourceType
	Payload      string
	ExpiresAt    time.Time
	Used         bool
	UsedAt       *time.Time
	CreatedAt    time.Time
}

type LeadFilter struct {
	Classification Classification
	// ExcludeCustomers drops CUSTOMER leads from the result.
	ExcludeCustomers bool
	MinScore         int
	OrderByScore     bool
	Limit            int
}

type LeadStore interface {
	UpsertLead(ctx context.Context, lead Lead) (*Lead, error)
	GetLead(ctx context.Context, leadID int64) (*Lead, error)
	SaveQualification(ctx context.Context, leadID int64, scratch Scratch, score int, classification Classification) error
	SavePainPoints(ctx context.Context, leadID int64, painPoints []string) error
	SetClassification(ctx context.Context, leadID int64, classification Classification) error
	SetStripeCustomer(ctx context.Context, leadID int64, customerID string) error
	ListLeads(ctx context.Context, filter LeadFilter) ([]Lead, error)
	CountByClassification(ctx context.Context) (map[Classification]int, error)
}

type SessionStore interface {
	GetSession(ctx context.Context, leadID int64) (*SessionState, error)
	SaveSession(ctx context.Context, state SessionState) error
	DeleteSession(ctx context.Context, leadID int64) error
}

type SubscriptionStore interface {
	// ActivateSubscription upserts by provider id and marks the owner CUSTOMER.
	ActivateSubscription(ctx context.Context, sub Subscription) (*Subscription, error)
	// CancelSubscription marks the subscription CANCELED and the owner CHURNED.
	CancelSubscription(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	UpdateSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status SubscriptionStatus, periodEnd *time.Time) (*Subscription, error)
	GetSubscription(ctx context.Context, providerSubscriptionID string) (*Subscription, error)
	ListLeadSubscriptions(ctx context.Context, leadID int64) ([]Subscription, error)
	ListExpired(ctx context.Context, statuses []SubscriptionStatus, before time.Time) ([]Subscription, error)
	CountActiveByPlan(ctx context.Context, now time.Time) (map[string]int, error)
}

type AccessLinkStore interface {
	CreateAccessLink(ctx context.Context, link AccessLink) error
	// RedeemAccessLink atomically marks an unused, unexpired link as used.
	// It returns ErrNotFound when no such link can be redeemed.
	RedeemAccessLink(ctx context.Context, token string, now time.Time) (*AccessLink, error)
}

type ConversationStore interface {
	AppendConversation(ctx context.Context, entry ConversationEntry) error
	RecentConversation(ctx context.Context, leadID int64, limit int) ([]ConversationEntry, error)
}

type EventStore interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Repository is the durable store behind every component.
type Repository interface {
	LeadStore
	SessionStore
	SubscriptionStore
	AccessLinkStore
	ConversationStore
	EventStore
}

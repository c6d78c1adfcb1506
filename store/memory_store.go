package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

// MemoryStore is an in-process Repository used by tests and local runs
// without Postgres. All methods are safe for concurrent use.
type MemoryStore struct {
	mu           sync.Mutex
	leads        map[int64]*types.Lead
	sessions     map[int64]types.SessionState
	subs         map[string]*types.Subscription
	links        map[string]*types.AccessLink
	conversation map[int64][]types.ConversationEntry
	events       map[string]struct{}
	now          func() time.Time
}

var _ types.Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:        make(map[int64]*types.Lead),
		sessions:     make(map[int64]types.SessionState),
		subs:         make(map[string]*types.Subscription),
		links:        make(map[string]*types.AccessLink),
		conversation: make(map[int64][]types.ConversationEntry),
		events:       make(map[string]struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func copyLead(l *types.Lead) *types.Lead {
	out := *l
	out.PainPoints = append([]string(nil), l.PainPoints...)
	return &out
}

func (m *MemoryStore) UpsertLead(_ context.Context, lead types.Lead) (*types.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	existing, ok := m.leads[lead.ID]
	if !ok {
		lead.Classification = types.ClassificationNew
		lead.CreatedAt = now
		lead.UpdatedAt = now
		m.leads[lead.ID] = copyLead(&lead)
		return copyLead(&lead), nil
	}
	existing.Username = lead.Username
	existing.FirstName = lead.FirstName
	existing.LastName = lead.LastName
	if lead.LanguageCode != "" {
		existing.LanguageCode = lead.LanguageCode
	}
	existing.UpdatedAt = now
	return copyLead(existing), nil
}

func (m *MemoryStore) GetLead(_ context.Context, leadID int64) (*types.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return copyLead(l), nil
}

func (m *MemoryStore) SaveQualification(_ context.Context, leadID int64, scratch types.Scratch, score int, classification types.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return types.ErrNotFound
	}
	l.Niche = scratch.Niche
	l.Revenue = scratch.Revenue
	l.TeamSize = scratch.TeamSize
	l.PainPoints = append([]string(nil), scratch.PainPoints...)
	l.Score = score
	l.Classification = classification
	l.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) SavePainPoints(_ context.Context, leadID int64, painPoints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return types.ErrNotFound
	}
	l.PainPoints = append([]string(nil), painPoints...)
	l.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) SetClassification(_ context.Context, leadID int64, classification types.Classification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return types.ErrNotFound
	}
	l.Classification = classification
	l.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) SetStripeCustomer(_ context.Context, leadID int64, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return types.ErrNotFound
	}
	l.StripeCustomerID = customerID
	l.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ListLeads(_ context.Context, filter types.LeadFilter) ([]types.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		if filter.Classification != "" && l.Classification != filter.Classification {
			continue
		}
		if filter.ExcludeCustomers && l.Classification == types.ClassificationCustomer {
			continue
		}
		if l.Score < filter.MinScore {
			continue
		}
		out = append(out, *copyLead(l))
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.OrderByScore && out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) CountByClassification(_ context.Context) (map[types.Classification]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.Classification]int)
	for _, l := range m.leads {
		out[l.Classification]++
	}
	return out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, leadID int64) (*types.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[leadID]
	if !ok {
		return nil, types.ErrNotFound
	}
	s.Scratch = s.Scratch.Clone()
	return &s, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, state types.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state.Scratch = state.Scratch.Clone()
	m.sessions[state.LeadID] = state
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, leadID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, leadID)
	return nil
}

func (m *MemoryStore) ActivateSubscription(_ context.Context, sub types.Subscription) (*types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lead, ok := m.leads[sub.LeadID]
	if !ok {
		return nil, types.ErrNotFound
	}
	now := m.now()
	existing, ok := m.subs[sub.ProviderSubscriptionID]
	if !ok {
		existing = &types.Subscription{
			ID:                     uuid.NewString(),
			ProviderSubscriptionID: sub.ProviderSubscriptionID,
			CreatedAt:              now,
		}
		m.subs[sub.ProviderSubscriptionID] = existing
	}
	existing.LeadID = sub.LeadID
	existing.Status = types.SubscriptionActive
	existing.PlanID = sub.PlanID
	existing.CurrentPeriodEnd = sub.CurrentPeriodEnd
	existing.AutoRenew = sub.AutoRenew
	existing.UpdatedAt = now

	for id, other := range m.subs {
		if id != sub.ProviderSubscriptionID && other.LeadID == sub.LeadID && other.Status.Entitled() {
			other.Status = types.SubscriptionCanceled
			other.AutoRenew = false
			other.UpdatedAt = now
		}
	}

	lead.Classification = types.ClassificationCustomer
	lead.UpdatedAt = now

	out := *existing
	return &out, nil
}

func (m *MemoryStore) CancelSubscription(_ context.Context, providerSubscriptionID string) (*types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[providerSubscriptionID]
	if !ok {
		return nil, types.ErrNotFound
	}
	now := m.now()
	sub.Status = types.SubscriptionCanceled
	sub.AutoRenew = false
	sub.UpdatedAt = now
	if lead, ok := m.leads[sub.LeadID]; ok {
		lead.Classification = types.ClassificationChurned
		lead.UpdatedAt = now
	}
	out := *sub
	return &out, nil
}

func (m *MemoryStore) UpdateSubscriptionStatus(_ context.Context, providerSubscriptionID string, status types.SubscriptionStatus, periodEnd *time.Time) (*types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[providerSubscriptionID]
	if !ok {
		return nil, types.ErrNotFound
	}
	sub.Status = status
	if periodEnd != nil {
		sub.CurrentPeriodEnd = *periodEnd
	}
	sub.UpdatedAt = m.now()
	out := *sub
	return &out, nil
}

func (m *MemoryStore) GetSubscription(_ context.Context, providerSubscriptionID string) (*types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[providerSubscriptionID]
	if !ok {
		return nil, types.ErrNotFound
	}
	out := *sub
	return &out, nil
}

func (m *MemoryStore) ListLeadSubscriptions(_ context.Context, leadID int64) ([]types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Subscription, 0)
	for _, sub := range m.subs {
		if sub.LeadID == leadID {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, statuses []types.SubscriptionStatus, before time.Time) ([]types.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[types.SubscriptionStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	out := make([]types.Subscription, 0)
	for _, sub := range m.subs {
		if want[sub.Status] && sub.CurrentPeriodEnd.Before(before) {
			out = append(out, *sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd) })
	return out, nil
}

func (m *MemoryStore) CountActiveByPlan(_ context.Context, now time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int)
	for _, sub := range m.subs {
		if sub.Status == types.SubscriptionActive && sub.CurrentPeriodEnd.After(now) {
			out[sub.PlanID]++
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateAccessLink(_ context.Context, link types.AccessLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[link.LeadID]; !ok {
		return types.ErrNotFound
	}
	if _, exists := m.links[link.Token]; exists {
		return fmt.Errorf("access link %s already exists", link.Token)
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = m.now()
	}
	m.links[link.Token] = &link
	return nil
}

func (m *MemoryStore) RedeemAccessLink(_ context.Context, token string, now time.Time) (*types.AccessLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[token]
	if !ok || link.Used || !link.ExpiresAt.After(now) {
		return nil, types.ErrNotFound
	}
	link.Used = true
	usedAt := now
	link.UsedAt = &usedAt
	out := *link
	return &out, nil
}

// AccessLink returns a stored link regardless of its state.
func (m *MemoryStore) AccessLink(token string) (types.AccessLink, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[token]
	if !ok {
		return types.AccessLink{}, false
	}
	return *link, true
}

func (m *MemoryStore) AppendConversation(_ context.Context, entry types.ConversationEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.conversation[entry.LeadID] = append(m.conversation[entry.LeadID], entry)
	return nil
}

func (m *MemoryStore) RecentConversation(_ context.Context, leadID int64, limit int) ([]types.ConversationEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.conversation[leadID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return append([]types.ConversationEntry(nil), all...), nil
}

func (m *MemoryStore) AlreadyProcessed(_ context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.events[provider+":"+eventID]
	return ok, nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, provider, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := provider + ":" + eventID
	if _, ok := m.events[key]; ok {
		return false, nil
	}
	m.events[key] = struct{}{}
	return true, nil
}

package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// pgxPool is the subset of pgxpool.Pool the store needs.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type PostgresStore struct {
	db      pgxPool
	timeout time.Duration
}

var _ types.Repository = (*PostgresStore)(nil)

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = BuildPostgresDSNFromEnv()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgresStoreWithPool(pool), nil
}

// NewPostgresStoreWithPool wraps an open pool without migrating it.
func NewPostgresStoreWithPool(db pgxPool) *PostgresStore {
	return &PostgresStore{db: db, timeout: 5 * time.Second}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return wrapErr("ping", s.db.Ping(ctx))
}

func (s *PostgresStore) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func BuildPostgresDSNFromEnv() string {
	host := strings.TrimSpace(os.Getenv("POSTGRES_HOST"))
	if host == "" {
		host = "localhost"
	}
	port := strings.TrimSpace(os.Getenv("POSTGRES_PORT"))
	if port == "" {
		port = "5432"
	}
	db := strings.TrimSpace(os.Getenv("POSTGRES_DB"))
	if db == "" {
		db = "hub_sales_bot"
	}
	user := strings.TrimSpace(os.Getenv("POSTGRES_USER"))
	if user == "" {
		user = "hub_sales_bot"
	}
	pass := os.Getenv("POSTGRES_PASSWORD")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", urlEscape(user), urlEscape(pass), host, port, db)
}

func urlEscape(s string) string {
	r := strings.NewReplacer(
		"%", "%25",
		":", "%3A",
		"/", "%2F",
		"@", "%40",
		"?", "%3F",
		"#", "%23",
		"[", "%5B",
		"]", "%5D",
	)
	return r.Replace(s)
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDB(*pool.Config().ConnConfig)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, types.ErrNotFound) {
		return types.ErrNotFound
	}
	return fmt.Errorf("postgres: %s: %w: %w", op, types.ErrStoreUnavailable, err)
}

const leadColumns = `id, username, first_name, last_name, language_code, niche, revenue, team_size,
  pain_points, classification, score, is_admin, stripe_customer_id, created_at, updated_at`

func scanLead(row pgx.Row) (*types.Lead, error) {
	var l types.Lead
	var classification string
	err := row.Scan(&l.ID, &l.Username, &l.FirstName, &l.LastName, &l.LanguageCode, &l.Niche, &l.Revenue, &l.TeamSize,
		&l.PainPoints, &classification, &l.Score, &l.IsAdmin, &l.StripeCustomerID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	l.Classification = types.Classification(classification)
	return &l, nil
}

func (s *PostgresStore) UpsertLead(ctx context.Context, lead types.Lead) (*types.Lead, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	row := s.db.QueryRow(ctx, `
INSERT INTO leads (id, username, first_name, last_name, language_code)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
  username = EXCLUDED.username,
  first_name = EXCLUDED.first_name,
  last_name = EXCLUDED.last_name,
  language_code = COALESCE(NULLIF(EXCLUDED.language_code, ''), leads.language_code),
  updated_at = NOW()
RETURNING `+leadColumns,
		lead.ID, strings.TrimSpace(lead.Username), strings.TrimSpace(lead.FirstName), strings.TrimSpace(lead.LastName), strings.TrimSpace(lead.LanguageCode))
	l, err := scanLead(row)
	if err != nil {
		return nil, wrapErr("upsert lead", err)
	}
	return l, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, leadID int64) (*types.Lead, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	l, err := scanLead(s.db.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, leadID))
	if err != nil {
		return nil, wrapErr("get lead", err)
	}
	return l, nil
}

func (s *PostgresStore) SaveQualification(ctx context.Context, leadID int64, scratch types.Scratch, score int, classification types.Classification) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	painPoints := scratch.PainPoints
	if painPoints == nil {
		painPoints = []string{}
	}
	tag, err := s.db.Exec(ctx, `
UPDATE leads
SET niche = $2, revenue = $3, team_size = $4, pain_points = $5, score = $6, classification = $7, updated_at = NOW()
WHERE id = $1
`, leadID, scratch.Niche, scratch.Revenue, scratch.TeamSize, painPoints, score, string(classification))
	if err != nil {
		return wrapErr("save qualification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SavePainPoints(ctx context.Context, leadID int64, painPoints []string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if painPoints == nil {
		painPoints = []string{}
	}
	tag, err := s.db.Exec(ctx, `UPDATE leads SET pain_points = $2, updated_at = NOW() WHERE id = $1`, leadID, painPoints)
	if err != nil {
		return wrapErr("save pain points", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetClassification(ctx context.Context, leadID int64, classification types.Classification) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(ctx, `UPDATE leads SET classification = $2, updated_at = NOW() WHERE id = $1`, leadID, string(classification))
	if err != nil {
		return wrapErr("set classification", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) SetStripeCustomer(ctx context.Context, leadID int64, customerID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(ctx, `UPDATE leads SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, leadID, strings.TrimSpace(customerID))
	if err != nil {
		return wrapErr("set stripe customer", err)
	}
	if tag.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		where []string
		args  []any
	)
	if filter.Classification != "" {
		args = append(args, string(filter.Classification))
		where = append(where, fmt.Sprintf("classification = $%d", len(args)))
	}
	if filter.ExcludeCustomers {
		where = append(where, "classification <> 'CUSTOMER'")
	}
	if filter.MinScore > 0 {
		args = append(args, filter.MinScore)
		where = append(where, fmt.Sprintf("score >= $%d", len(args)))
	}

	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if filter.OrderByScore {
		query += ` ORDER BY score DESC, created_at DESC`
	} else {
		query += ` ORDER BY created_at DESC`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list leads", err)
	}
	defer rows.Close()

	out := make([]types.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, wrapErr("list leads", err)
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list leads", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByClassification(ctx context.Context) (map[types.Classification]int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.Query(ctx, `SELECT classification, COUNT(*) FROM leads GROUP BY classification`)
	if err != nil {
		return nil, wrapErr("count leads", err)
	}
	defer rows.Close()
	out := make(map[types.Classification]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, wrapErr("count leads", err)
		}
		out[types.Classification(c)] = n
	}
	return out, wrapErr("count leads", rows.Err())
}

func (s *PostgresStore) GetSession(ctx context.Context, leadID int64) (*types.SessionState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		state   types.SessionState
		stage   string
		scratch []byte
	)
	err := s.db.QueryRow(ctx, `
SELECT lead_id, stage, scratch, updated_at
FROM funnel_sessions
WHERE lead_id = $1
`, leadID).Scan(&state.LeadID, &stage, &scratch, &state.UpdatedAt)
	if err != nil {
		return nil, wrapErr("get session", err)
	}
	state.Stage = types.Stage(stage)
	if len(scratch) > 0 {
		if err := json.Unmarshal(scratch, &state.Scratch); err != nil {
			return nil, fmt.Errorf("postgres: decode scratch for %d: %w", leadID, err)
		}
	}
	return &state, nil
}

func (s *PostgresStore) SaveSession(ctx context.Context, state types.SessionState) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	scratch, err := json.Marshal(state.Scratch)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
INSERT INTO funnel_sessions (lead_id, stage, scratch, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (lead_id) DO UPDATE SET
  stage = EXCLUDED.stage,
  scratch = EXCLUDED.scratch,
  updated_at = EXCLUDED.updated_at
`, state.LeadID, string(state.Stage), scratch, state.UpdatedAt)
	return wrapErr("save session", err)
}

func (s *PostgresStore) DeleteSession(ctx context.Context, leadID int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.Exec(ctx, `DELETE FROM funnel_sessions WHERE lead_id = $1`, leadID)
	return wrapErr("delete session", err)
}

const subscriptionColumns = `id, provider_subscription_id, lead_id, status, plan_id, current_period_end, auto_renew, created_at, updated_at`

func scanSubscription(row pgx.Row) (*types.Subscription, error) {
	var sub types.Subscription
	var status string
	err := row.Scan(&sub.ID, &sub.ProviderSubscriptionID, &sub.LeadID, &status, &sub.PlanID,
		&sub.CurrentPeriodEnd, &sub.AutoRenew, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sub.Status = types.SubscriptionStatus(status)
	return &sub, nil
}

func (s *PostgresStore) ActivateSubscription(ctx context.Context, sub types.Subscription) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*s.timeout)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("activate subscription", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE leads SET classification = 'CUSTOMER', updated_at = NOW() WHERE id = $1`, sub.LeadID)
	if err != nil {
		return nil, wrapErr("activate subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.ErrNotFound
	}

	saved, err := scanSubscription(tx.QueryRow(ctx, `
INSERT INTO subscriptions (id, provider_subscription_id, lead_id, status, plan_id, current_period_end, auto_renew)
VALUES ($1, $2, $3, 'ACTIVE', $4, $5, $6)
ON CONFLICT (provider_subscription_id) DO UPDATE SET
  lead_id = EXCLUDED.lead_id,
  status = 'ACTIVE',
  plan_id = EXCLUDED.plan_id,
  current_period_end = EXCLUDED.current_period_end,
  auto_renew = EXCLUDED.auto_renew,
  updated_at = NOW()
RETURNING `+subscriptionColumns,
		uuid.NewString(), sub.ProviderSubscriptionID, sub.LeadID, sub.PlanID, sub.CurrentPeriodEnd, sub.AutoRenew))
	if err != nil {
		return nil, wrapErr("activate subscription", err)
	}

	// A lead holds at most one entitled subscription; older ones are superseded.
	if _, err := tx.Exec(ctx, `
UPDATE subscriptions
SET status = 'CANCELED', auto_renew = FALSE, updated_at = NOW()
WHERE lead_id = $1 AND provider_subscription_id <> $2 AND status IN ('ACTIVE', 'PAST_DUE', 'TRIALING')`,
		sub.LeadID, sub.ProviderSubscriptionID); err != nil {
		return nil, wrapErr("activate subscription", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("activate subscription", err)
	}
	return saved, nil
}

func (s *PostgresStore) CancelSubscription(ctx context.Context, providerSubscriptionID string) (*types.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*s.timeout)
	defer cancel()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr("cancel subscription", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	sub, err := scanSubscription(tx.QueryRow(ctx, `
UPDATE subscriptions
SET status = 'CANCELED', auto_renew = FALSE, updated_at = NOW()
WHERE provider_subscription_id = $1
RETURNING `+subscriptionColumns, providerSubscriptionID))
	if err != nil {
		return nil, wrapErr("cancel subscription", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE leads SET classification = 'CHURNED', updated_at = NOW() WHERE id = $1`, sub.LeadID); err != nil {
		return nil, wrapErr("cancel subscription", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapErr("cancel subscription", err)
	}
	return sub, nil
}

func (s *PostgresStore) UpdateSubscriptionStatus(ctx context.Context, providerSubscriptionID string, status types.SubscriptionStatus, periodEnd *time.Time) (*types.Subscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sub, err := scanSubscription(s.db.QueryRow(ctx, `
UPDATE subscriptions
SET status = $2, current_period_end = COALESCE($3, current_period_end), updated_at = NOW()
WHERE provider_subscription_id = $1
RETURNING `+subscriptionColumns, providerSubscriptionID, string(status), periodEnd))
	if err != nil {
		return nil, wrapErr("update subscription status", err)
	}
	return sub, nil
}

func (s *PostgresStore) GetSubscription(ctx context.Context, providerSubscriptionID string) (*types.Subscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	sub, err := scanSubscription(s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE provider_subscription_id = $1`, providerSubscriptionID))
	if err != nil {
		return nil, wrapErr("get subscription", err)
	}
	return sub, nil
}

func (s *PostgresStore) querySubscriptions(ctx context.Context, op, query string, args ...any) ([]types.Subscription, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(op, err)
	}
	defer rows.Close()
	out := make([]types.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, wrapErr(op, err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(op, err)
	}
	return out, nil
}

func (s *PostgresStore) ListLeadSubscriptions(ctx context.Context, leadID int64) ([]types.Subscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.querySubscriptions(ctx, "list lead subscriptions",
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE lead_id = $1 ORDER BY created_at DESC`, leadID)
}

func (s *PostgresStore) ListExpired(ctx context.Context, statuses []types.SubscriptionStatus, before time.Time) ([]types.Subscription, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	return s.querySubscriptions(ctx, "list expired subscriptions", `
SELECT `+subscriptionColumns+`
FROM subscriptions
WHERE status = ANY($1) AND current_period_end < $2
ORDER BY current_period_end
`, names, before)
}

func (s *PostgresStore) CountActiveByPlan(ctx context.Context, now time.Time) (map[string]int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	rows, err := s.db.Query(ctx, `
SELECT plan_id, COUNT(*)
FROM subscriptions
WHERE status = 'ACTIVE' AND current_period_end > $1
GROUP BY plan_id
`, now)
	if err != nil {
		return nil, wrapErr("count active subscriptions", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var plan string
		var n int
		if err := rows.Scan(&plan, &n); err != nil {
			return nil, wrapErr("count active subscriptions", err)
		}
		out[plan] = n
	}
	return out, wrapErr("count active subscriptions", rows.Err())
}

func (s *PostgresStore) CreateAccessLink(ctx context.Context, link types.AccessLink) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.db.Exec(ctx, `
INSERT INTO access_links (token, lead_id, resource_type, payload, expires_at)
VALUES ($1, $2, $3, $4, $5)
`, link.Token, link.LeadID, string(link.ResourceType), link.Payload, link.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return types.ErrNotFound
	}
	return wrapErr("create access link", err)
}

// RedeemAccessLink flips used in a single conditional UPDATE so two
// concurrent callers cannot both win.
func (s *PostgresStore) RedeemAccessLink(ctx context.Context, token string, now time.Time) (*types.AccessLink, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var (
		link         types.AccessLink
		resourceType string
	)
	err := s.db.QueryRow(ctx, `
UPDATE access_links
SET used = TRUE, used_at = $2
WHERE token = $1 AND used = FALSE AND expires_at > $2
RETURNING token, lead_id, resource_type, payload, expires_at, used, used_at, created_at
`, token, now).Scan(&link.Token, &link.LeadID, &resourceType, &link.Payload, &link.ExpiresAt, &link.Used, &link.UsedAt, &link.CreatedAt)
	if err != nil {
		return nil, wrapErr("redeem access link", err)
	}
	link.ResourceType = types.ResourceType(resourceType)
	return &link, nil
}

func (s *PostgresStore) AppendConversation(ctx context.Context, entry types.ConversationEntry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
INSERT INTO conversation_log (lead_id, role, text, created_at)
VALUES ($1, $2, $3, $4)
`, entry.LeadID, string(entry.Role), entry.Text, createdAt)
	return wrapErr("append conversation", err)
}

// RecentConversation returns up to limit entries, oldest first.
func (s *PostgresStore) RecentConversation(ctx context.Context, leadID int64, limit int) ([]types.ConversationEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(ctx, `
SELECT lead_id, role, text, created_at FROM (
  SELECT id, lead_id, role, text, created_at
  FROM conversation_log
  WHERE lead_id = $1
  ORDER BY id DESC
  LIMIT $2
) recent
ORDER BY id ASC
`, leadID, limit)
	if err != nil {
		return nil, wrapErr("recent conversation", err)
	}
	defer rows.Close()
	out := make([]types.ConversationEntry, 0, limit)
	for rows.Next() {
		var e types.ConversationEntry
		var role string
		if err := rows.Scan(&e.LeadID, &role, &e.Text, &e.CreatedAt); err != nil {
			return nil, wrapErr("recent conversation", err)
		}
		e.Role = types.Role(role)
		out = append(out, e)
	}
	return out, wrapErr("recent conversation", rows.Err())
}

func (s *PostgresStore) AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var ok bool
	err := s.db.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM processed_events WHERE provider = $1 AND event_id = $2)
`, provider, eventID).Scan(&ok)
	if err != nil {
		return false, wrapErr("processed lookup", err)
	}
	return ok, nil
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, provider, eventID string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	tag, err := s.db.Exec(ctx, `
INSERT INTO processed_events (provider, event_id)
VALUES ($1, $2)
ON CONFLICT (provider, event_id) DO NOTHING
`, provider, eventID)
	if err != nil {
		return false, wrapErr("mark processed", err)
	}
	return tag.RowsAffected() > 0, nil
}

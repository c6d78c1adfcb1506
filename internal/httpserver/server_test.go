package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/hub-sales-bot/internal/access"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/store"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type failingRedeemer struct{}

func (failingRedeemer) Redeem(context.Context, string) (access.Redemption, error) {
	return access.Redemption{}, types.ErrStoreUnavailable
}

func newRedeemFixture(t *testing.T) (http.Handler, *access.Issuer) {
	t.Helper()
	repo := store.NewMemoryStore()
	_, err := repo.UpsertLead(context.Background(), types.Lead{ID: 12345})
	require.NoError(t, err)
	issuer := access.NewIssuer(repo, nil, logging.Discard())
	return NewRouter(Config{Redeemer: issuer, Logger: logging.Discard()}), issuer
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func post(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
	return rec
}

func TestRedeem_RedirectsOnce(t *testing.T) {
	h, issuer := newRedeemFixture(t)
	link, err := issuer.Issue(context.Background(), 12345, types.ResourceChannelInvite, "https://t.me/+abc", time.Hour)
	require.NoError(t, err)

	rec := post(h, "/access/"+link.Token)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "https://t.me/+abc", rec.Header().Get("Location"))

	rec = post(h, "/access/"+link.Token)
	assert.Equal(t, http.StatusGone, rec.Code)
}

func TestRedeem_GetDoesNotSpendToken(t *testing.T) {
	h, issuer := newRedeemFixture(t)
	link, err := issuer.Issue(context.Background(), 12345, types.ResourceChannelInvite, "https://t.me/+abc", time.Hour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rec := get(h, "/access/"+link.Token)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `method="post"`)
		assert.Contains(t, rec.Body.String(), "/access/"+link.Token)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	}

	rec := post(h, "/access/"+link.Token)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestRedeem_UnknownToken(t *testing.T) {
	h, _ := newRedeemFixture(t)
	rec := post(h, "/access/nope")
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid")
}

func TestRedeem_TextPayload(t *testing.T) {
	h, issuer := newRedeemFixture(t)
	link, err := issuer.Issue(context.Background(), 12345, types.ResourceDocument, "Пароль: hub2026", time.Hour)
	require.NoError(t, err)

	rec := post(h, "/access/"+link.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Пароль: hub2026", rec.Body.String())
}

func TestRedeem_StoreOutage(t *testing.T) {
	h := NewRouter(Config{Redeemer: failingRedeemer{}, Logger: logging.Discard()})
	rec := post(h, "/access/tok")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthz(t *testing.T) {
	healthy := NewRouter(Config{
		Checks: map[string]Pinger{"redis": pingFunc(func(context.Context) error { return nil })},
		Logger: logging.Discard(),
	})
	assert.Equal(t, http.StatusOK, get(healthy, "/healthz").Code)

	down := NewRouter(Config{
		Checks: map[string]Pinger{"postgres": pingFunc(func(context.Context) error { return errors.New("refused") })},
		Logger: logging.Discard(),
	})
	rec := get(down, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "postgres")
}

func TestWebhookAndMetricsRoutes(t *testing.T) {
	var hit bool
	h := NewRouter(Config{
		StripeWebhook: func(w http.ResponseWriter, _ *http.Request) {
			hit = true
			w.WriteHeader(http.StatusOK)
		},
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("hub_funnel_turns_total 1"))
		}),
		Logger: logging.Discard(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, hit)

	assert.Contains(t, get(h, "/metrics").Body.String(), "hub_funnel_turns_total")
	assert.Equal(t, http.StatusMethodNotAllowed, get(h, "/webhooks/stripe").Code)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0", Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

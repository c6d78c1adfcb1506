// Package app assembles the bot, its stores and background workers from
// configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/BatmanBruc/hub-sales-bot/internal/access"
	"github.com/BatmanBruc/hub-sales-bot/internal/broadcast"
	"github.com/BatmanBruc/hub-sales-bot/internal/channel"
	"github.com/BatmanBruc/hub-sales-bot/internal/config"
	"github.com/BatmanBruc/hub-sales-bot/internal/entitlement"
	"github.com/BatmanBruc/hub-sales-bot/internal/funnel"
	"github.com/BatmanBruc/hub-sales-bot/internal/handlers"
	"github.com/BatmanBruc/hub-sales-bot/internal/httpserver"
	"github.com/BatmanBruc/hub-sales-bot/internal/llm"
	"github.com/BatmanBruc/hub-sales-bot/internal/metrics"
	"github.com/BatmanBruc/hub-sales-bot/internal/middleware"
	"github.com/BatmanBruc/hub-sales-bot/internal/payments"
	"github.com/BatmanBruc/hub-sales-bot/internal/scheduler"
	"github.com/BatmanBruc/hub-sales-bot/internal/scoring"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/store"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const pollTimeout = 50 * time.Second

// App owns every long-lived component of the service.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	repo       types.Repository
	redis      *store.RedisClient
	checks     map[string]httpserver.Pinger
	bot        *bot.Bot
	metrics    *metrics.Metrics
	registry   *prometheus.Registry
	engine     *funnel.Engine
	reconciler *entitlement.Reconciler
	issuer     *access.Issuer
	notifier   *channel.Notifier
	webhook    *payments.WebhookHandler
	broker     *broadcast.Broker
	broadcasts *broadcast.Service
	scheduler  *scheduler.Scheduler
	handlers   *handlers.Handlers
	sequencer  *middleware.Sequencer
	prefs      store.PreferenceStore

	closers []func()
}

// New connects to every configured backend. Optional backends that are not
// configured or not reachable are skipped with a warning.
func New(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.New(cfg.LogLevel)
	}
	a := &App{cfg: cfg, logger: logger, checks: make(map[string]httpserver.Pinger)}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	b, err := bot.New(cfg.TelegramBotToken,
		bot.WithHTTPClient(pollTimeout, &http.Client{Timeout: 2 * pollTimeout}),
		bot.WithWorkers(1),
		bot.WithNotAsyncHandlers(),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("app: create bot: %w", err)
	}
	a.bot = b
	if cfg.TelegramBotUsername == "" {
		if me, err := b.GetMe(ctx); err == nil {
			cfg.TelegramBotUsername = me.Username
		} else {
			logger.Warn("bot username unknown, club mentions disabled", "error", err)
		}
	}

	generator, err := a.buildGenerator(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	stripe := a.buildStripe()

	var checkout funnel.CheckoutCreator
	if stripe != nil {
		checkout = stripe
	}
	var cache store.Cache
	if a.redis != nil {
		cache = a.redis
	}

	a.engine = funnel.NewEngine(funnel.EngineConfig{
		Machine:       funnel.NewMachine(scoring.DefaultQualifiedThreshold),
		Sessions:      store.NewStateStore(cache, a.repo, logger),
		Leads:         a.repo,
		Conversations: a.repo,
		Generator:     generator,
		Checkout:      checkout,
		Metrics:       a.metrics,
		Logger:        logger,
	})

	a.issuer = access.NewIssuer(a.repo, a.metrics, logger)
	a.notifier = channel.NewNotifier(b)
	a.reconciler = entitlement.NewReconciler(entitlement.Config{
		Subscriptions: a.repo,
		Membership:    channel.NewManager(b, cfg.ClubChannelID, logger),
		Issuer:        a.issuer,
		Stages:        a.engine,
		PublicBaseURL: cfg.PublicBaseURL,
		AccessTTL:     cfg.AccessLinkTTL,
		Metrics:       a.metrics,
		Logger:        logger,
	})

	switch {
	case cfg.StripeWebhookSecret == "":
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, payment webhooks disabled")
	case stripe == nil:
		logger.Warn("STRIPE_SECRET_KEY not set, payment webhooks disabled")
	default:
		a.webhook = payments.NewWebhookHandler(payments.WebhookConfig{
			Secret:        cfg.StripeWebhookSecret,
			GracePeriod:   cfg.GracePeriodDays,
			Entitlements:  a.reconciler,
			Subscriptions: stripe,
			Leads:         a.repo,
			Events:        a.repo,
			Notifier:      a.notifier,
			Metrics:       a.metrics,
			Logger:        logger,
		})
	}

	a.openBroker()
	var publisher broadcast.Publisher
	if a.broker != nil {
		publisher = a.broker
	}
	a.broadcasts = broadcast.NewService(a.repo, publisher, logger)

	a.scheduler = scheduler.NewScheduler(a.reconciler, scheduler.Config{
		Interval:    cfg.SweepInterval,
		GracePeriod: cfg.GracePeriod(),
		RunOnStart:  true,
	}, logger)

	a.handlers = handlers.NewHandlers(handlers.Config{
		Funnel:       a.engine,
		Repo:         a.repo,
		Prefs:        a.prefs,
		Entitlements: a.reconciler,
		Broadcaster:  a.broadcasts,
		AdminIDs:     cfg.AdminUserIDs,
		ClubChatID:   cfg.ClubChannelID,
		BotUsername:  cfg.TelegramBotUsername,
		Logger:       logger,
	})
	a.sequencer = middleware.NewSequencer()
	a.registerHandlers()
	return a, nil
}

func (a *App) openStores(ctx context.Context) error {
	cfg := a.cfg
	if cfg.UseMemoryStore {
		a.logger.Warn("using in-memory store, data is lost on restart")
		a.repo = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("app: %w: postgres: %w", types.ErrStoreUnavailable, err)
		}
		a.repo = pg
		a.checks["postgres"] = pg
		a.closers = append(a.closers, pg.Close)
	}

	if cfg.RedisAddr == "" {
		a.prefs = store.NewMemoryUserStore()
		return nil
	}
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		a.logger.Warn("redis unavailable, running without cache", "addr", cfg.RedisAddr, "error", err)
		a.prefs = store.NewMemoryUserStore()
		return nil
	}
	a.redis = rdb
	a.checks["redis"] = rdb
	a.prefs = store.NewRedisUserStore(rdb, 0)
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return nil
}

// buildGenerator assembles the provider chain: the Bedrock model, its
// alternates, then Gemini.
func (a *App) buildGenerator(ctx context.Context) (funnel.Generator, error) {
	cfg := a.cfg
	var attempts []llm.Attempt

	if cfg.BedrockModelID != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("app: load aws config: %w", err)
		}
		bedrock := llm.NewBedrockClientFromConfig(awsCfg)
		attempts = append(attempts, llm.Attempt{Provider: "bedrock", Model: cfg.BedrockModelID, Client: bedrock})
		for _, alt := range cfg.BedrockAltModelIDs {
			attempts = append(attempts, llm.Attempt{
				Provider:                  "bedrock",
				Model:                     alt,
				Client:                    bedrock,
				OnlyAfterModelUnavailable: true,
			})
		}
	}
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = gemini.Close() })
		attempts = append(attempts, llm.Attempt{Provider: "gemini", Model: cfg.GeminiModelID, Client: gemini})
	}
	if len(attempts) == 0 {
		a.logger.Warn("no language model configured, generated replies will fail")
	}

	chain := llm.NewChain(attempts,
		llm.WithCallTimeout(cfg.LLMCallTimeout),
		llm.WithMetrics(a.metrics),
		llm.WithLogger(a.logger),
	)
	return llm.NewResponder(chain), nil
}

func (a *App) buildStripe() *payments.StripeClient {
	cfg := a.cfg
	if cfg.StripeSecretKey == "" && !cfg.UseStaticStripeLinks {
		a.logger.Warn("stripe not configured, offers are sent without checkout links")
		return nil
	}
	return payments.NewStripeClient(payments.StripeConfig{
		SecretKey:      cfg.StripeSecretKey,
		BotUsername:    cfg.TelegramBotUsername,
		PriceIDs:       cfg.PriceIDs(),
		PromoCodes:     cfg.PromoCodes(),
		StaticLinks:    cfg.StaticLinks(),
		UseStaticLinks: cfg.UseStaticStripeLinks,
	}, a.logger)
}

func (a *App) openBroker() {
	if a.cfg.AMQPURL == "" {
		a.logger.Warn("AMQP_URL not set, broadcasts disabled")
		return
	}
	broker, err := broadcast.Dial(a.cfg.AMQPURL)
	if err != nil {
		a.logger.Warn("rabbitmq unavailable, broadcasts disabled", "error", err)
		return
	}
	a.broker = broker
	a.closers = append(a.closers, func() { _ = broker.Close() })
}

func (a *App) registerHandlers() {
	mw := middleware.NewMessageAnalyzer(a.prefs, a.cfg.TelegramBotUsername, a.logger)
	chain := a.sequencer.SequenceMiddleware(
		mw.IdentifyLeadMiddleware(
			mw.AnalyzeMessageMiddleware(
				a.handlers.MainHandler,
			),
		),
	)

	a.bot.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, chain)
	a.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, chain)
}

// Run polls Telegram and serves HTTP until ctx is canceled. The sweep
// scheduler and the broadcast consumer run alongside.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	defer a.scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	server := httpserver.New(httpserver.Config{
		Addr:           a.cfg.HTTPAddr,
		StripeWebhook:  a.webhookFunc(),
		Redeemer:       a.issuer,
		MetricsHandler: promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}),
		Checks:         a.checks,
		Logger:         a.logger,
	})
	g.Go(func() error { return server.Run(ctx) })

	if a.broker != nil {
		deliveries, err := a.broker.Consume()
		if err != nil {
			return fmt.Errorf("app: consume broadcasts: %w", err)
		}
		worker := broadcast.NewWorker(a.notifier, a.cfg.BroadcastRatePerSecond, a.metrics, a.logger)
		g.Go(func() error {
			err := worker.Run(ctx, deliveries)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	g.Go(func() error {
		a.logger.Info("bot started", "username", a.cfg.TelegramBotUsername)
		a.bot.Start(ctx)
		a.sequencer.Wait()
		return nil
	})

	return g.Wait()
}

func (a *App) webhookFunc() http.HandlerFunc {
	if a.webhook == nil {
		return nil
	}
	return a.webhook.Handle
}

// Sweep runs one expiry sweep with the configured grace period.
func (a *App) Sweep(ctx context.Context) (entitlement.SweepReport, error) {
	return a.scheduler.RunOnce(ctx)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

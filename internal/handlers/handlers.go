package handlers

import (
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/broadcast"
	"github.com/BatmanBruc/hub-sales-bot/internal/contextkeys"
	"github.com/BatmanBruc/hub-sales-bot/internal/entitlement"
	"github.com/BatmanBruc/hub-sales-bot/internal/funnel"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/store"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

// BotAPI is the subset of *bot.Bot the handlers call.
type BotAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var _ BotAPI = (*bot.Bot)(nil)

type Funnel interface {
	Handle(ctx context.Context, in funnel.Inbound) (*funnel.Result, error)
	Answer(ctx context.Context, lead types.Lead, stage types.Stage, question string) (string, error)
}

type Entitlements interface {
	ActivateManual(ctx context.Context, leadID int64) (*types.Subscription, error)
	GrantAccess(ctx context.Context, leadID int64) (*entitlement.Grant, error)
	RevokeAccess(ctx context.Context, leadID int64) (int, error)
}

type Broadcaster interface {
	Enqueue(ctx context.Context, audience broadcast.Audience, text string) (broadcast.Result, error)
}

// Repository is the read and admin side of the durable store.
type Repository interface {
	GetLead(ctx context.Context, leadID int64) (*types.Lead, error)
	SetClassification(ctx context.Context, leadID int64, classification types.Classification) error
	ListLeads(ctx context.Context, filter types.LeadFilter) ([]types.Lead, error)
	CountByClassification(ctx context.Context) (map[types.Classification]int, error)
	ListLeadSubscriptions(ctx context.Context, leadID int64) ([]types.Subscription, error)
	CountActiveByPlan(ctx context.Context, now time.Time) (map[string]int, error)
	RecentConversation(ctx context.Context, leadID int64, limit int) ([]types.ConversationEntry, error)
}

type Config struct {
	Funnel       Funnel
	Repo         Repository
	Prefs        store.PreferenceStore
	Entitlements Entitlements
	Broadcaster  Broadcaster
	AdminIDs     []int64
	// ClubChatID limits mention answers to the club group; zero answers in any group.
	ClubChatID  int64
	BotUsername string
	Logger      *logging.Logger
}

type Handlers struct {
	funnel       Funnel
	repo         Repository
	prefs        store.PreferenceStore
	entitlements Entitlements
	broadcaster  Broadcaster
	admins       map[int64]struct{}
	clubChatID   int64
	botUsername  string
	logger       *logging.Logger
	now          func() time.Time
}

func NewHandlers(cfg Config) *Handlers {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	admins := make(map[int64]struct{}, len(cfg.AdminIDs))
	for _, id := range cfg.AdminIDs {
		admins[id] = struct{}{}
	}
	return &Handlers{
		funnel:       cfg.Funnel,
		repo:         cfg.Repo,
		prefs:        cfg.Prefs,
		entitlements: cfg.Entitlements,
		broadcaster:  cfg.Broadcaster,
		admins:       admins,
		clubChatID:   cfg.ClubChatID,
		botUsername:  cfg.BotUsername,
		logger:       cfg.Logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// MainHandler is registered as the bot's default handler behind the middlewares.
func (bh *Handlers) MainHandler(ctx context.Context, b *bot.Bot, update *models.Update) {
	bh.handle(ctx, b, update)
}

func (bh *Handlers) handle(ctx context.Context, api BotAPI, update *models.Update) {
	chatID := getChatIDFromUpdate(update)
	messageType, _ := contextkeys.GetMessageType(ctx)
	lang := langFromCtx(ctx)

	switch messageType {
	case contextkeys.MessageTypeCommand:
		bh.HandleCommand(ctx, api, update)
	case contextkeys.MessageTypeText:
		bh.HandleText(ctx, api, update)
	case contextkeys.MessageTypeClickButton:
		bh.HandleClickButton(ctx, api, update)
	case contextkeys.MessageTypeMention:
		bh.HandleClubMention(ctx, api, update)
	default:
		if chatID != 0 {
			bh.send(ctx, api, chatID, messages.ErrorUnsupportedMessageType(lang), nil)
		}
	}
}

func (bh *Handlers) send(ctx context.Context, api BotAPI, chatID int64, text string, markup models.ReplyMarkup) {
	params := &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          messages.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	}
	if markup != nil {
		params.ReplyMarkup = markup
	}
	if _, err := api.SendMessage(ctx, params); err != nil {
		bh.logger.Warn("send message failed", "chat_id", chatID, "error", err)
	}
}

// isAdmin checks the configured ids first, then the lead's admin flag.
func (bh *Handlers) isAdmin(ctx context.Context, userID int64) bool {
	if _, ok := bh.admins[userID]; ok {
		return true
	}
	if bh.repo == nil {
		return false
	}
	lead, err := bh.repo.GetLead(ctx, userID)
	return err == nil && lead.IsAdmin
}

func langFromCtx(ctx context.Context) i18n.Lang {
	if v, ok := contextkeys.GetLang(ctx); ok {
		return i18n.Parse(v)
	}
	return i18n.Default
}

func getChatIDFromUpdate(update *models.Update) int64 {
	switch {
	case update == nil:
		return 0
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil:
		if m := update.CallbackQuery.Message.Message; m != nil {
			return m.Chat.ID
		}
		if m := update.CallbackQuery.Message.InaccessibleMessage; m != nil {
			return m.Chat.ID
		}
		return update.CallbackQuery.From.ID
	}
	return 0
}

func senderOf(update *models.Update) *models.User {
	switch {
	case update == nil:
		return nil
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	}
	return nil
}

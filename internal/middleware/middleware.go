package middleware

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/contextkeys"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/store"
)

type Middlewares struct {
	prefs       store.PreferenceStore
	botUsername string
	logger      *logging.Logger
}

func NewMessageAnalyzer(prefs store.PreferenceStore, botUsername string, logger *logging.Logger) *Middlewares {
	if logger == nil {
		logger = logging.Default()
	}
	return &Middlewares{
		prefs:       prefs,
		botUsername: strings.ToLower(strings.TrimPrefix(botUsername, "@")),
		logger:      logger,
	}
}

// IdentifyLeadMiddleware puts the sender's id and language into ctx.
// Updates without a human sender are dropped.
func (m *Middlewares) IdentifyLeadMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		from := sender(update)
		if from == nil || from.ID == 0 || from.IsBot {
			return
		}
		ctx = contextkeys.WithLeadID(ctx, from.ID)
		ctx = contextkeys.WithLang(ctx, string(m.langFor(ctx, from)))
		next(ctx, b, update)
	}
}

func (m *Middlewares) langFor(ctx context.Context, from *models.User) i18n.Lang {
	if m.prefs != nil {
		prefs, err := m.prefs.GetPreferences(ctx, from.ID)
		if err != nil {
			m.logger.Warn("preferences unavailable", "lead_id", from.ID, "error", err)
		} else if i18n.Valid(prefs.Lang) {
			return i18n.Parse(prefs.Lang)
		}
	}
	return i18n.FromLanguageCode(from.LanguageCode)
}

func sender(update *models.Update) *models.User {
	switch {
	case update == nil:
		return nil
	case update.Message != nil:
		return update.Message.From
	case update.CallbackQuery != nil:
		return &update.CallbackQuery.From
	default:
		return nil
	}
}

// AnalyzeMessageMiddleware classifies the update. Group messages reach the
// handler only when they address the bot.
func (m *Middlewares) AnalyzeMessageMiddleware(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.CallbackQuery != nil && update.CallbackQuery.Data != "" {
			ctx = contextkeys.WithMessageType(ctx, contextkeys.MessageTypeClickButton)
			ctx = contextkeys.WithCallbackData(ctx, update.CallbackQuery.Data)
			next(ctx, b, update)
			return
		}
		if update.Message == nil {
			return
		}

		msgType := m.determineMessageType(update.Message)
		if msgType == contextkeys.MessageTypeUnknown && isGroup(update.Message.Chat) {
			return
		}
		next(contextkeys.WithMessageType(ctx, msgType), b, update)
	}
}

func (m *Middlewares) determineMessageType(msg *models.Message) contextkeys.MessageType {
	if isGroup(msg.Chat) {
		if m.mentionsBot(msg) {
			return contextkeys.MessageTypeMention
		}
		return contextkeys.MessageTypeUnknown
	}

	if strings.HasPrefix(msg.Text, "/") {
		return contextkeys.MessageTypeCommand
	}
	if hasMedia(msg) {
		return contextkeys.MessageTypeMedia
	}
	if strings.TrimSpace(msg.Text) != "" {
		return contextkeys.MessageTypeText
	}
	return contextkeys.MessageTypeUnknown
}

func (m *Middlewares) mentionsBot(msg *models.Message) bool {
	if m.botUsername == "" || msg.Text == "" {
		return false
	}
	return strings.Contains(strings.ToLower(msg.Text), "@"+m.botUsername)
}

// StripMention removes every @username occurrence from text and collapses
// the remaining whitespace.
func StripMention(text, username string) string {
	username = strings.ToLower(strings.TrimPrefix(username, "@"))
	if username == "" {
		return strings.Join(strings.Fields(text), " ")
	}
	tag := "@" + username
	lower := strings.ToLower(text)
	for {
		i := strings.Index(lower, tag)
		if i < 0 {
			break
		}
		text = text[:i] + text[i+len(tag):]
		lower = lower[:i] + lower[i+len(tag):]
	}
	return strings.Join(strings.Fields(text), " ")
}

func isGroup(chat models.Chat) bool {
	switch string(chat.Type) {
	case "group", "supergroup":
		return true
	}
	return false
}

func hasMedia(msg *models.Message) bool {
	return len(msg.Photo) > 0 ||
		msg.Video != nil ||
		msg.Document != nil ||
		msg.Audio != nil ||
		msg.Voice != nil ||
		msg.Sticker != nil ||
		msg.VideoNote != nil ||
		msg.Location != nil ||
		msg.Contact != nil ||
		msg.Poll != nil
}

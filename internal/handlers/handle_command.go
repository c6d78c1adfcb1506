package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/funnel"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/store"
)

const (
	startPaymentSuccess = "payment_success"
	startPaymentCancel  = "payment_cancel"
)

// parseCommand splits "/cmd@bot a b" into "/cmd" and its arguments.
func parseCommand(text string) (string, []string) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil
	}
	cmd := fields[0]
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), fields[1:]
}

func (bh *Handlers) HandleCommand(ctx context.Context, api BotAPI, update *models.Update) {
	msg := update.Message
	lang := langFromCtx(ctx)
	cmd, args := parseCommand(msg.Text)

	switch cmd {
	case "/start":
		bh.handleStart(ctx, api, update, args)
	case "/reset":
		bh.runTurn(ctx, api, update, funnel.Input{Kind: funnel.InputReset})
	case "/lang":
		bh.handleLang(ctx, api, msg, args)
	default:
		if isAdminCommand(cmd) {
			bh.handleAdmin(ctx, api, msg, cmd, args)
			return
		}
		bh.send(ctx, api, msg.Chat.ID, messages.ErrorUnknownCommand(lang), nil)
	}
}

func (bh *Handlers) handleStart(ctx context.Context, api BotAPI, update *models.Update, args []string) {
	lang := langFromCtx(ctx)
	chatID := update.Message.Chat.ID
	if len(args) > 0 {
		switch args[0] {
		case startPaymentSuccess:
			bh.send(ctx, api, chatID, messages.PaymentSuccess(lang), nil)
			return
		case startPaymentCancel:
			bh.send(ctx, api, chatID, messages.PaymentCancel(lang), nil)
			return
		}
	}
	bh.runTurn(ctx, api, update, funnel.Input{Kind: funnel.InputStart})
}

func (bh *Handlers) handleLang(ctx context.Context, api BotAPI, msg *models.Message, args []string) {
	if len(args) > 0 && i18n.Valid(args[0]) {
		bh.setLang(ctx, api, msg.Chat.ID, msg.From.ID, i18n.Parse(args[0]))
		return
	}
	bh.send(ctx, api, msg.Chat.ID, messages.LanguageChoose(), langKeyboard())
}

func (bh *Handlers) setLang(ctx context.Context, api BotAPI, chatID, userID int64, lang i18n.Lang) {
	if bh.saveLang(ctx, api, chatID, userID, lang) {
		bh.send(ctx, api, chatID, messages.LanguageSet(lang), nil)
	}
}

// saveLang stores the choice and reports failure to the chat.
func (bh *Handlers) saveLang(ctx context.Context, api BotAPI, chatID, userID int64, lang i18n.Lang) bool {
	if bh.prefs == nil {
		return true
	}
	if err := bh.prefs.SetPreferences(ctx, userID, store.UserPreferences{Lang: string(lang)}); err != nil {
		bh.logger.Error("save language failed", "lead_id", userID, "error", err)
		bh.send(ctx, api, chatID, messages.ErrorDefault(lang), nil)
		return false
	}
	return true
}

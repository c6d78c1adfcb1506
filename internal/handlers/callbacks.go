package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/contextkeys"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

func (bh *Handlers) HandleClickButton(ctx context.Context, api BotAPI, update *models.Update) {
	if update == nil || update.CallbackQuery == nil {
		return
	}
	cq := update.CallbackQuery
	data, _ := contextkeys.GetCallbackData(ctx)
	if data == "" {
		data = cq.Data
	}
	data = strings.TrimSpace(data)
	chatID := getChatIDFromUpdate(update)

	switch {
	case strings.HasPrefix(data, callbackLangPrefix):
		bh.answerCallback(ctx, api, cq.ID, "")
		code := strings.TrimPrefix(data, callbackLangPrefix)
		if !i18n.Valid(code) {
			return
		}
		lang := i18n.Parse(code)
		if !bh.saveLang(ctx, api, chatID, cq.From.ID, lang) {
			return
		}
		if m := cq.Message.Message; m != nil {
			_, err := api.EditMessageText(ctx, &bot.EditMessageTextParams{
				ChatID:    m.Chat.ID,
				MessageID: m.ID,
				Text:      messages.LanguageSet(lang),
				ParseMode: messages.ParseModeHTML,
			})
			if err == nil {
				return
			}
			bh.logger.Warn("edit language message failed", "chat_id", m.Chat.ID, "error", err)
		}
		bh.send(ctx, api, chatID, messages.LanguageSet(lang), nil)
	case strings.HasPrefix(data, callbackLeadsPrefix):
		if !bh.isAdmin(ctx, cq.From.ID) {
			bh.answerCallbackAlert(ctx, api, cq.ID, messages.AdminNoAccess())
			return
		}
		c, ok := types.ParseClassification(strings.TrimPrefix(data, callbackLeadsPrefix))
		if !ok {
			bh.answerCallback(ctx, api, cq.ID, "")
			return
		}
		bh.answerCallback(ctx, api, cq.ID, "")
		bh.sendLeads(ctx, api, chatID, c)
	default:
		bh.answerCallback(ctx, api, cq.ID, "")
	}
}

func (bh *Handlers) answerCallback(ctx context.Context, api BotAPI, callbackID, text string) {
	_, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
	if err != nil {
		bh.logger.Warn("answer callback failed", "error", err)
	}
}

func (bh *Handlers) answerCallbackAlert(ctx context.Context, api BotAPI, callbackID, text string) {
	_, err := api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       true,
	})
	if err != nil {
		bh.logger.Warn("answer callback failed", "error", err)
	}
}

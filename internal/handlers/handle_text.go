package handlers

import (
	"context"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/funnel"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

func (bh *Handlers) HandleText(ctx context.Context, api BotAPI, update *models.Update) {
	bh.runTurn(ctx, api, update, funnel.Input{Kind: funnel.InputText, Text: update.Message.Text})
}

// runTurn passes one lead event through the funnel and sends the replies.
func (bh *Handlers) runTurn(ctx context.Context, api BotAPI, update *models.Update, input funnel.Input) {
	msg := update.Message
	lang := langFromCtx(ctx)
	if msg.From == nil {
		return
	}
	res, err := bh.funnel.Handle(ctx, funnel.Inbound{
		LeadID:       msg.From.ID,
		Username:     msg.From.Username,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		LanguageCode: msg.From.LanguageCode,
		Input:        input,
	})
	if err != nil {
		bh.logger.Error("funnel turn failed", "lead_id", msg.From.ID, "error", err)
		bh.send(ctx, api, msg.Chat.ID, messages.ErrorDefault(lang), nil)
		return
	}
	for _, reply := range res.Replies {
		text, markup := renderReply(lang, reply)
		if text == "" {
			continue
		}
		bh.send(ctx, api, msg.Chat.ID, text, markup)
	}
}

func renderReply(lang i18n.Lang, reply funnel.Reply) (string, models.ReplyMarkup) {
	switch reply.Kind {
	case funnel.ReplyWelcome:
		return messages.Welcome(lang), nil
	case funnel.ReplyAsk:
		return messages.Question(lang, string(reply.Field)), nil
	case funnel.ReplyGenerated:
		return messages.Escape(reply.Text), nil
	case funnel.ReplyReset:
		return messages.ResetDone(lang), nil
	case funnel.ReplyOffer:
		plan, ok := types.PlanByID(reply.PlanID)
		if !ok {
			return "", nil
		}
		if reply.URL == "" {
			return messages.Offer(lang, plan), nil
		}
		return messages.Offer(lang, plan), offerKeyboard(lang, plan.ID, reply.URL)
	}
	return "", nil
}

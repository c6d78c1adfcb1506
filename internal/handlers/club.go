package handlers

import (
	"context"
	"errors"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/internal/middleware"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

// HandleClubMention answers a question addressed to the bot in the club
// group. Only members with an entitled subscription and admins get an answer.
func (bh *Handlers) HandleClubMention(ctx context.Context, api BotAPI, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil {
		return
	}
	if bh.clubChatID != 0 && msg.Chat.ID != bh.clubChatID {
		return
	}
	lang := langFromCtx(ctx)
	from := msg.From

	lead, err := bh.memberLead(ctx, from)
	if err != nil {
		bh.logger.Error("club member lookup failed", "lead_id", from.ID, "error", err)
		bh.reply(ctx, api, msg, messages.ErrorDefault(lang))
		return
	}
	if lead == nil {
		bh.reply(ctx, api, msg, messages.ClubNoAccess(lang))
		return
	}

	question := middleware.StripMention(msg.Text, bh.botUsername)
	if question == "" {
		bh.reply(ctx, api, msg, messages.ClubGreeting(lang))
		return
	}
	answer, err := bh.funnel.Answer(ctx, *lead, types.StageClosing, question)
	if err != nil {
		bh.logger.Error("club answer failed", "lead_id", from.ID, "error", err)
		bh.reply(ctx, api, msg, messages.ErrorDefault(lang))
		return
	}
	bh.reply(ctx, api, msg, messages.Escape(answer))
}

// memberLead returns nil when the sender may not use the club assistant.
func (bh *Handlers) memberLead(ctx context.Context, from *models.User) (*types.Lead, error) {
	fallback := &types.Lead{
		ID:           from.ID,
		Username:     from.Username,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		LanguageCode: from.LanguageCode,
	}
	if bh.repo == nil {
		if bh.isAdmin(ctx, from.ID) {
			return fallback, nil
		}
		return nil, nil
	}

	lead, err := bh.repo.GetLead(ctx, from.ID)
	switch {
	case errors.Is(err, types.ErrNotFound):
		lead = nil
	case err != nil:
		return nil, err
	}
	if lead != nil && lead.IsAdmin {
		return lead, nil
	}
	if _, ok := bh.admins[from.ID]; ok {
		if lead == nil {
			lead = fallback
		}
		return lead, nil
	}
	if lead == nil {
		return nil, nil
	}

	subs, err := bh.repo.ListLeadSubscriptions(ctx, from.ID)
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		if s.Status.Entitled() {
			return lead, nil
		}
	}
	return nil, nil
}

func (bh *Handlers) reply(ctx context.Context, api BotAPI, msg *models.Message, text string) {
	_, err := api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          msg.Chat.ID,
		Text:            text,
		ParseMode:       messages.ParseModeHTML,
		ReplyParameters: &models.ReplyParameters{MessageID: msg.ID},
	})
	if err != nil {
		bh.logger.Warn("club reply failed", "chat_id", msg.Chat.ID, "error", err)
	}
}

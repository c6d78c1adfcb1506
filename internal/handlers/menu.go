package handlers

import (
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/internal/utils"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const (
	callbackLangPrefix  = "lang_"
	callbackLeadsPrefix = "leads_"
)

func langKeyboard() *models.InlineKeyboardMarkup {
	kb := utils.BuildInlineKeyboard([]utils.Button{
		{Text: "🇷🇺 Русский", CallbackData: callbackLangPrefix + string(i18n.RU)},
		{Text: "🇬🇧 English", CallbackData: callbackLangPrefix + string(i18n.EN)},
	}, 2)
	return &kb
}

func offerKeyboard(lang i18n.Lang, planID, url string) *models.InlineKeyboardMarkup {
	kb := utils.BuildInlineKeyboard([]utils.Button{
		{Text: messages.OfferButton(lang, planID), URL: url},
	}, 1)
	return &kb
}

// statsKeyboard has one filter button per classification.
func statsKeyboard(counts map[types.Classification]int) *models.InlineKeyboardMarkup {
	buttons := make([]utils.Button, 0, len(types.Classifications))
	for _, c := range types.Classifications {
		buttons = append(buttons, utils.Button{
			Text:         messages.StatsButton(c, counts[c]),
			CallbackData: callbackLeadsPrefix + string(c),
		})
	}
	kb := utils.BuildInlineKeyboard(buttons, 2)
	return &kb
}

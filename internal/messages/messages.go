package messages

import (
	"fmt"
	"strings"

	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const ParseModeHTML = "HTML"

func Escape(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"\"", "&quot;",
		"'", "&#39;",
	)
	return replacer.Replace(strings.TrimSpace(s))
}

func Title(text string) string {
	return fmt.Sprintf("✨ <b>%s</b>", Escape(text))
}

func ErrorDefault(lang i18n.Lang) string {
	return i18n.T(lang,
		"🚫 <b>Что-то пошло не так</b>\nПопробуйте написать ещё раз чуть позже.",
		"🚫 <b>Something went wrong</b>\nPlease try again a bit later.")
}

func ErrorUnsupportedMessageType(lang i18n.Lang) string {
	return i18n.T(lang,
		"🤖 <b>Я понимаю только текст</b>\nНапишите ответ сообщением.",
		"🤖 <b>I only understand text</b>\nPlease reply with a message.")
}

func ErrorUnknownCommand(lang i18n.Lang) string {
	return i18n.T(lang, "❓ <b>Команда не найдена</b>", "❓ <b>Unknown command</b>")
}

func Welcome(lang i18n.Lang) string {
	return i18n.T(lang,
		"👋 <b>Привет!</b> Я ИИ-консультант AI Business HUB.\n\n"+
			"Расскажу всё про клуб и помогу подобрать пакет под ваш бизнес. Начнём?",
		"👋 <b>Hi!</b> I'm the AI Business HUB consultant.\n\n"+
			"I'll walk you through the club and help you pick the right plan. Shall we start?")
}

// Question is the qualification prompt for one field.
func Question(lang i18n.Lang, field string) string {
	switch field {
	case "niche":
		return i18n.T(lang, "🧭 В какой нише работает ваш бизнес?", "🧭 What niche is your business in?")
	case "revenue":
		return i18n.T(lang, "💰 Какой у вас месячный оборот? (примерно)", "💰 What is your monthly revenue? (roughly)")
	case "team_size":
		return i18n.T(lang, "👥 Сколько человек в вашей команде?", "👥 How many people are on your team?")
	}
	return ""
}

func ResetDone(lang i18n.Lang) string {
	return i18n.T(lang,
		"🔄 <b>Диалог сброшен</b>\nОтправьте /start, чтобы начать заново.",
		"🔄 <b>Conversation reset</b>\nSend /start to begin again.")
}

func PaymentSuccess(lang i18n.Lang) string {
	return i18n.T(lang,
		"✅ <b>Оплата прошла!</b>\nПроверяю доступ, ссылка на клуб придёт отдельным сообщением.",
		"✅ <b>Payment received!</b>\nChecking your access, the club link will follow in a separate message.")
}

func PaymentCancel(lang i18n.Lang) string {
	return i18n.T(lang,
		"Оплата отменена. Если остались вопросы, просто напишите мне.",
		"Payment canceled. If you have questions, just write to me.")
}

func Offer(lang i18n.Lang, plan types.Plan) string {
	if plan.ID == types.PlanPremiumHub {
		return i18n.T(lang,
			fmt.Sprintf("🎯 <b>%s</b>: полный доступ к AI Business HUB\n\n"+
				"💰 £%d/мес с промокодом <code>%s</code>\n\n"+
				"✅ Закрытый канал с AI-менторами\n✅ Еженедельные мастер-классы\n✅ Приоритетная поддержка",
				Escape(plan.Title), plan.MonthlyPrice, Escape(plan.PromoCode)),
			fmt.Sprintf("🎯 <b>%s</b>: full access to AI Business HUB\n\n"+
				"💰 £%d/month with promo code <code>%s</code>\n\n"+
				"✅ Private channel with AI mentors\n✅ Weekly masterclasses\n✅ Priority support",
				Escape(plan.Title), plan.MonthlyPrice, Escape(plan.PromoCode)))
	}
	return i18n.T(lang,
		fmt.Sprintf("🎯 <b>%s</b>: попробуйте экосистему\n\n"+
			"💰 £%d/мес с промокодом <code>%s</code>\n\n"+
			"✅ Базовые AI-консультации\n✅ Часть материалов клуба\n✅ Апгрейд до Premium в любой момент",
			Escape(plan.Title), plan.MonthlyPrice, Escape(plan.PromoCode)),
		fmt.Sprintf("🎯 <b>%s</b>: try the ecosystem\n\n"+
			"💰 £%d/month with promo code <code>%s</code>\n\n"+
			"✅ Basic AI consultations\n✅ Part of the club materials\n✅ Upgrade to Premium any time",
			Escape(plan.Title), plan.MonthlyPrice, Escape(plan.PromoCode)))
}

func OfferButton(lang i18n.Lang, planID string) string {
	if planID == types.PlanPremiumHub {
		return i18n.T(lang, "💳 Оплатить и вступить", "💳 Pay and join")
	}
	return i18n.T(lang, "🚀 Начать тест-драйв", "🚀 Start the test drive")
}

func AccessGranted(lang i18n.Lang, url string) string {
	return i18n.T(lang,
		fmt.Sprintf("✅ <b>Оплата обработана!</b>\n\nДобро пожаловать в AI Business HUB.\n"+
			"Ссылка для входа в закрытый канал:\n%s\n\nСсылка одноразовая и действует 24 часа.", Escape(url)),
		fmt.Sprintf("✅ <b>Payment processed!</b>\n\nWelcome to AI Business HUB.\n"+
			"Your link to the private channel:\n%s\n\nThe link works once and expires in 24 hours.", Escape(url)))
}

func AccessPending(lang i18n.Lang) string {
	return i18n.T(lang,
		"✅ <b>Оплата обработана!</b>\nСсылку на канал пришлёт администратор в ближайшее время.",
		"✅ <b>Payment processed!</b>\nAn admin will send you the channel link shortly.")
}

func SubscriptionEnded(lang i18n.Lang) string {
	return i18n.T(lang,
		"⚠️ <b>Подписка закончилась</b>, доступ к AI Business HUB приостановлен.\n\n"+
			"Чтобы вернуться, оформите подписку заново через /start.",
		"⚠️ <b>Your subscription has ended</b> and access to AI Business HUB is paused.\n\n"+
			"To come back, subscribe again via /start.")
}

func PaymentFailed(lang i18n.Lang, graceDays int) string {
	return i18n.T(lang,
		fmt.Sprintf("⚠️ <b>Не удалось продлить подписку.</b>\n\n"+
			"Обновите карту в Stripe, иначе доступ закроется через %d дн.", graceDays),
		fmt.Sprintf("⚠️ <b>We couldn't renew your subscription.</b>\n\n"+
			"Please update your card in Stripe or access will close in %d days.", graceDays))
}

func ClubGreeting(lang i18n.Lang) string {
	return i18n.T(lang,
		"👋 Я AI-консультант AI Business HUB. Задайте вопрос, и я помогу.",
		"👋 I'm the AI Business HUB consultant. Ask me anything.")
}

func ClubNoAccess(lang i18n.Lang) string {
	return i18n.T(lang,
		"🔒 Отвечаю только участникам клуба с активной подпиской.",
		"🔒 I only answer club members with an active subscription.")
}

func LanguageSet(lang i18n.Lang) string {
	return i18n.T(lang, "🌐 Язык: русский", "🌐 Language: English")
}

func LanguageChoose() string {
	return "🌐 Выберите язык / Choose language"
}

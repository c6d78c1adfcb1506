package messages

import (
	"fmt"
	"strings"
	"time"

	"github.com/BatmanBruc/hub-sales-bot/types"
)

// Admin copy is Russian only.

var classificationEmoji = map[types.Classification]string{
	types.ClassificationNew:       "🆕",
	types.ClassificationQualified: "✅",
	types.ClassificationWarm:      "🔥",
	types.ClassificationCustomer:  "💰",
	types.ClassificationChurned:   "❌",
	types.ClassificationVIP:       "⭐",
}

func ClassificationEmoji(c types.Classification) string {
	if e, ok := classificationEmoji[c]; ok {
		return e
	}
	return "•"
}

func AdminNoAccess() string {
	return "❌ У вас нет доступа к этой команде."
}

func AdminMenu() string {
	return "🔐 <b>Админская панель AI Business HUB</b>\n\n" +
		"📊 /stats - статистика и конверсия\n" +
		"👥 /leads [СТАТУС] - последние лиды, например <code>/leads QUALIFIED</code>\n" +
		"🔥 /hot - лиды с высоким скорингом\n" +
		"👤 /lead &lt;id&gt; - карточка лида\n" +
		"💬 /conversation &lt;id&gt; - диалог лида\n" +
		"🏷 /set_status &lt;id&gt; &lt;СТАТУС&gt; - сменить статус\n" +
		"➕ /add_access &lt;id&gt; - выдать доступ на 30 дней\n" +
		"➖ /remove_access &lt;id&gt; - закрыть доступ\n" +
		"📢 /broadcast &lt;all|non_customers|customers&gt; &lt;текст&gt; - рассылка\n\n" +
		"Статусы: NEW, QUALIFIED, WARM, CUSTOMER, CHURNED, VIP"
}

func AdminUsage(usage string) string {
	return "ℹ️ Использование: <code>" + Escape(usage) + "</code>"
}

func AdminLeadNotFound(id int64) string {
	return fmt.Sprintf("🔎 Лид <code>%d</code> не найден.", id)
}

// Stats is the aggregate shown by /stats.
type Stats struct {
	TotalLeads       int
	ByClassification map[types.Classification]int
	ActiveByPlan     map[string]int
	GeneratedAt      time.Time
}

func (s Stats) Customers() int { return s.ByClassification[types.ClassificationCustomer] }

func (s Stats) ActiveSubscriptions() int {
	n := 0
	for _, c := range s.ActiveByPlan {
		n += c
	}
	return n
}

// MRR is the monthly recurring revenue in pounds.
func (s Stats) MRR() int {
	total := 0
	for planID, n := range s.ActiveByPlan {
		if p, ok := types.PlanByID(planID); ok {
			total += p.MonthlyPrice * n
		}
	}
	return total
}

func (s Stats) ConversionPercent() float64 {
	if s.TotalLeads == 0 {
		return 0
	}
	return float64(s.Customers()) / float64(s.TotalLeads) * 100
}

func AdminStats(s Stats) string {
	var b strings.Builder
	b.WriteString("📊 <b>Статистика AI Business HUB</b>\n\n")
	fmt.Fprintf(&b, "👥 Всего лидов: <b>%d</b>\n", s.TotalLeads)
	fmt.Fprintf(&b, "💰 Клиентов: <b>%d</b>\n", s.Customers())
	fmt.Fprintf(&b, "📈 Конверсия: <b>%.1f%%</b>\n\n", s.ConversionPercent())

	b.WriteString("🎟 <b>Подписки</b>\n")
	fmt.Fprintf(&b, "• Активных: %d\n", s.ActiveSubscriptions())
	for _, id := range []string{types.PlanPremiumHub, types.PlanTestDrive} {
		p := types.Plans[id]
		fmt.Fprintf(&b, "• %s: %d\n", Escape(p.Title), s.ActiveByPlan[id])
	}
	fmt.Fprintf(&b, "\n💵 MRR: <b>£%d/мес</b>\n\n", s.MRR())

	b.WriteString("📍 <b>По статусам</b>\n")
	for _, c := range types.Classifications {
		n := s.ByClassification[c]
		pct := 0.0
		if s.TotalLeads > 0 {
			pct = float64(n) / float64(s.TotalLeads) * 100
		}
		fmt.Fprintf(&b, "%s %s: %d (%.1f%%)\n", ClassificationEmoji(c), c, n, pct)
	}
	if !s.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "\n🕒 %s UTC", s.GeneratedAt.UTC().Format("02.01.2006 15:04"))
	}
	return b.String()
}

func StatsButton(c types.Classification, n int) string {
	return fmt.Sprintf("%s %s (%d)", ClassificationEmoji(c), c, n)
}

func AdminLeads(title string, leads []types.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>%s</b>\n\n", Escape(title))
	if len(leads) == 0 {
		b.WriteString("Лидов нет.")
		return b.String()
	}
	for i, l := range leads {
		fmt.Fprintf(&b, "%d. <b>%s</b>%s\n", i+1, leadName(l), usernameSuffix(l.Username))
		fmt.Fprintf(&b, "   %s %s · score %d\n", ClassificationEmoji(l.Classification), l.Classification, l.Score)
		fmt.Fprintf(&b, "   ID: <code>%d</code> · %s\n\n", l.ID, l.UpdatedAt.UTC().Format("02.01.2006"))
	}
	return b.String()
}

func AdminLeadCard(l types.Lead, subs []types.Subscription) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 <b>%s</b>%s\n", leadName(l), usernameSuffix(l.Username))
	fmt.Fprintf(&b, "ID: <code>%d</code>\n", l.ID)
	fmt.Fprintf(&b, "Статус: %s %s\n", ClassificationEmoji(l.Classification), l.Classification)
	fmt.Fprintf(&b, "Lead score: %d\n\n", l.Score)
	fmt.Fprintf(&b, "🧭 Ниша: %s\n", orDash(l.Niche))
	fmt.Fprintf(&b, "💰 Оборот: %s\n", orDash(l.Revenue))
	fmt.Fprintf(&b, "👥 Команда: %s\n", orDash(l.TeamSize))
	fmt.Fprintf(&b, "🩹 Боли: %s\n", orDash(strings.Join(l.PainPoints, "; ")))
	if l.StripeCustomerID != "" {
		fmt.Fprintf(&b, "💳 Stripe: <code>%s</code>\n", Escape(l.StripeCustomerID))
	}
	if len(subs) > 0 {
		b.WriteString("\n🎟 <b>Подписки</b>\n")
		for _, s := range subs {
			fmt.Fprintf(&b, "• %s · %s · до %s\n", Escape(s.PlanID), s.Status, s.CurrentPeriodEnd.UTC().Format("02.01.2006"))
		}
	}
	fmt.Fprintf(&b, "\nСоздан: %s", l.CreatedAt.UTC().Format("02.01.2006 15:04"))
	return b.String()
}

func AdminConversation(leadID int64, entries []types.ConversationEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💬 <b>Диалог лида</b> <code>%d</code>\n\n", leadID)
	if len(entries) == 0 {
		b.WriteString("Сообщений нет.")
		return b.String()
	}
	for _, e := range entries {
		who := "👤"
		if e.Role == types.RoleAssistant {
			who = "🤖"
		}
		fmt.Fprintf(&b, "%s <i>%s</i>\n%s\n\n", who, e.CreatedAt.UTC().Format("02.01 15:04"), Escape(truncate(e.Text, 500)))
	}
	return b.String()
}

func AdminAccessGranted(leadID int64, sub types.Subscription, url string) string {
	msg := fmt.Sprintf("✅ Доступ для <code>%d</code> выдан до %s.", leadID, sub.CurrentPeriodEnd.UTC().Format("02.01.2006"))
	if url != "" {
		msg += "\nСсылка отправлена лиду: " + Escape(url)
	}
	return msg
}

func AdminAccessRemoved(leadID int64, canceled int) string {
	return fmt.Sprintf("➖ Доступ для <code>%d</code> закрыт, отменено подписок: %d.", leadID, canceled)
}

func AdminStatusSet(leadID int64, c types.Classification) string {
	return fmt.Sprintf("🏷 Статус лида <code>%d</code>: %s %s", leadID, ClassificationEmoji(c), c)
}

func AdminBroadcastQueued(n int) string {
	return fmt.Sprintf("📢 Рассылка поставлена в очередь: %d получателей.", n)
}

func leadName(l types.Lead) string {
	if n := l.DisplayName(); n != "" {
		return Escape(n)
	}
	return "Без имени"
}

func usernameSuffix(username string) string {
	if username == "" {
		return ""
	}
	return " (@" + Escape(username) + ")"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return Escape(s)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func AdminFailed(err error) string {
	return "⚠️ Не удалось выполнить команду: <code>" + Escape(err.Error()) + "</code>"
}

func AdminChatID(chatID int64) string {
	return fmt.Sprintf("🆔 ID этого чата: <code>%d</code>\nУкажите его в CLUB_CHANNEL_ID.", chatID)
}

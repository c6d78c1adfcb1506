package llm

import (
	"fmt"
	"strings"

	"github.com/BatmanBruc/hub-sales-bot/internal/scoring"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const persona = `Ты AI HUB Sales, бизнес-консультант и продавец экосистемы Soroka FES.

<system_role>
Твоя цель: довести клиента до осознанного решения о покупке.
Тон: уверенный, профессиональный, лаконичный. Без клише вроде "Рад помочь".
</system_role>

<methodology>
Метод SPIN: сначала ситуационные вопросы, затем проблемные.
Не называй цену, пока не выявлена боль.
Если клиент говорит о хаосе, покажи, сколько денег он теряет (техника Challenger).
</methodology>`

// SystemPrompt builds the stage-conditioned instructions for a lead.
func SystemPrompt(stage types.Stage, profile types.Scratch) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n<pricing_rules>\n")
	premium := types.Plans[types.PlanPremiumHub]
	trial := types.Plans[types.PlanTestDrive]
	fmt.Fprintf(&b, "Основной продукт: %s, £%d/мес с кодом %s.\n", premium.Title, premium.MonthlyPrice, premium.PromoCode)
	fmt.Fprintf(&b, "Даунсейл: %s, £%d/мес с кодом %s.\n", trial.Title, trial.MonthlyPrice, trial.PromoCode)
	b.WriteString("</pricing_rules>\n\n<current_stage>\n")
	b.WriteString(stageInstructions(stage, profile))
	b.WriteString("\n</current_stage>\n\n<user_context>\n")
	fmt.Fprintf(&b, "Ниша: %s\n", orDefault(profile.Niche, "не указана"))
	fmt.Fprintf(&b, "Оборот: %s\n", orDefault(profile.Revenue, "не указан"))
	fmt.Fprintf(&b, "Команда: %s\n", orDefault(profile.TeamSize, "не указана"))
	fmt.Fprintf(&b, "Боли: %s\n", orDefault(strings.Join(profile.PainPoints, ", "), "не выявлены"))
	b.WriteString("</user_context>")
	return b.String()
}

func stageInstructions(stage types.Stage, profile types.Scratch) string {
	switch stage {
	case types.StageQualification:
		return "Этап КВАЛИФИКАЦИИ. Узнай нишу, оборот, размер команды и основные боли. Не предлагай продукт."
	case types.StageProblemAmplification:
		pains := orDefault(strings.Join(profile.PainPoints, ", "), "хаос")
		return fmt.Sprintf("Этап УСИЛЕНИЯ БОЛИ. Клиент упоминал: %s. Покажи последствия бездействия, решение пока не предлагай.", pains)
	case types.StageSolutionPresentation:
		if scoring.IsQualified(profile) {
			p := types.Plans[types.PlanPremiumHub]
			return fmt.Sprintf("Этап ПРЕЗЕНТАЦИИ. Клиент готов к внедрению. Предложи %s за £%d/мес с промокодом %s.", p.Title, p.MonthlyPrice, p.PromoCode)
		}
		p := types.Plans[types.PlanTestDrive]
		return fmt.Sprintf("Этап ПРЕЗЕНТАЦИИ. Клиент сомневается. Предложи %s за £%d/мес с промокодом %s как первый шаг.", p.Title, p.MonthlyPrice, p.PromoCode)
	case types.StageClosing:
		return "Этап ЗАКРЫТИЯ. Подтверди выбор клиента и помоги с доступом и оплатой."
	default:
		return "Начало диалога. Поприветствуй клиента и начни квалификацию."
	}
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/broadcast"
	"github.com/BatmanBruc/hub-sales-bot/internal/i18n"
	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

const (
	leadsPageSize     = 20
	hotLeadsLimit     = 10
	hotLeadsMinScore  = 1
	conversationLimit = 20
)

var adminCommands = map[string]struct{}{
	"/admin":         {},
	"/stats":         {},
	"/leads":         {},
	"/hot":           {},
	"/lead":          {},
	"/conversation":  {},
	"/add_access":    {},
	"/remove_access": {},
	"/set_status":    {},
	"/broadcast":     {},
	"/chat_id":       {},
}

func isAdminCommand(cmd string) bool {
	_, ok := adminCommands[cmd]
	return ok
}

func (bh *Handlers) handleAdmin(ctx context.Context, api BotAPI, msg *models.Message, cmd string, args []string) {
	chatID := msg.Chat.ID
	if msg.From == nil || !bh.isAdmin(ctx, msg.From.ID) {
		bh.send(ctx, api, chatID, messages.AdminNoAccess(), nil)
		return
	}
	if bh.repo == nil {
		bh.send(ctx, api, chatID, messages.AdminFailed(types.ErrStoreUnavailable), nil)
		return
	}

	switch cmd {
	case "/admin":
		bh.send(ctx, api, chatID, messages.AdminMenu(), nil)
	case "/stats":
		bh.adminStats(ctx, api, chatID)
	case "/leads":
		if len(args) == 0 {
			bh.sendLeads(ctx, api, chatID, "")
			return
		}
		c, ok := types.ParseClassification(args[0])
		if !ok {
			bh.send(ctx, api, chatID, messages.AdminUsage("/leads [NEW|QUALIFIED|WARM|CUSTOMER|CHURNED|VIP]"), nil)
			return
		}
		bh.sendLeads(ctx, api, chatID, c)
	case "/hot":
		bh.adminHot(ctx, api, chatID)
	case "/lead":
		bh.withLeadID(ctx, api, chatID, args, "/lead <id>", bh.adminLead)
	case "/conversation":
		bh.withLeadID(ctx, api, chatID, args, "/conversation <id>", bh.adminConversation)
	case "/add_access":
		bh.withLeadID(ctx, api, chatID, args, "/add_access <id>", bh.adminAddAccess)
	case "/remove_access":
		bh.withLeadID(ctx, api, chatID, args, "/remove_access <id>", bh.adminRemoveAccess)
	case "/set_status":
		bh.adminSetStatus(ctx, api, chatID, args)
	case "/broadcast":
		bh.adminBroadcast(ctx, api, chatID, msg.Text)
	case "/chat_id":
		bh.send(ctx, api, chatID, messages.AdminChatID(chatID), nil)
	}
}

func (bh *Handlers) withLeadID(ctx context.Context, api BotAPI, chatID int64, args []string, usage string, fn func(context.Context, BotAPI, int64, int64)) {
	if len(args) == 0 {
		bh.send(ctx, api, chatID, messages.AdminUsage(usage), nil)
		return
	}
	leadID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || leadID <= 0 {
		bh.send(ctx, api, chatID, messages.AdminUsage(usage), nil)
		return
	}
	fn(ctx, api, chatID, leadID)
}

func (bh *Handlers) adminFailed(ctx context.Context, api BotAPI, chatID int64, op string, err error) {
	bh.logger.Error("admin command failed", "command", op, "error", err)
	bh.send(ctx, api, chatID, messages.AdminFailed(err), nil)
}

func (bh *Handlers) adminStats(ctx context.Context, api BotAPI, chatID int64) {
	counts, err := bh.repo.CountByClassification(ctx)
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "stats", err)
		return
	}
	now := bh.now()
	active, err := bh.repo.CountActiveByPlan(ctx, now)
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "stats", err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	stats := messages.Stats{
		TotalLeads:       total,
		ByClassification: counts,
		ActiveByPlan:     active,
		GeneratedAt:      now,
	}
	bh.send(ctx, api, chatID, messages.AdminStats(stats), statsKeyboard(counts))
}

// sendLeads lists the most recent leads, optionally of one classification.
func (bh *Handlers) sendLeads(ctx context.Context, api BotAPI, chatID int64, c types.Classification) {
	leads, err := bh.repo.ListLeads(ctx, types.LeadFilter{Classification: c, Limit: leadsPageSize})
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "leads", err)
		return
	}
	title := "Последние лиды"
	if c != "" {
		title = "Лиды " + string(c)
	}
	bh.send(ctx, api, chatID, messages.AdminLeads(title, leads), nil)
}

func (bh *Handlers) adminHot(ctx context.Context, api BotAPI, chatID int64) {
	leads, err := bh.repo.ListLeads(ctx, types.LeadFilter{
		ExcludeCustomers: true,
		MinScore:         hotLeadsMinScore,
		OrderByScore:     true,
		Limit:            hotLeadsLimit,
	})
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "hot", err)
		return
	}
	bh.send(ctx, api, chatID, messages.AdminLeads("🔥 Горячие лиды", leads), nil)
}

func (bh *Handlers) adminLead(ctx context.Context, api BotAPI, chatID, leadID int64) {
	lead, err := bh.repo.GetLead(ctx, leadID)
	if errors.Is(err, types.ErrNotFound) {
		bh.send(ctx, api, chatID, messages.AdminLeadNotFound(leadID), nil)
		return
	}
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "lead", err)
		return
	}
	subs, err := bh.repo.ListLeadSubscriptions(ctx, leadID)
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "lead", err)
		return
	}
	bh.send(ctx, api, chatID, messages.AdminLeadCard(*lead, subs), nil)
}

func (bh *Handlers) adminConversation(ctx context.Context, api BotAPI, chatID, leadID int64) {
	entries, err := bh.repo.RecentConversation(ctx, leadID, conversationLimit)
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "conversation", err)
		return
	}
	bh.send(ctx, api, chatID, messages.AdminConversation(leadID, entries), nil)
}

func (bh *Handlers) adminAddAccess(ctx context.Context, api BotAPI, chatID, leadID int64) {
	if bh.entitlements == nil {
		bh.adminFailed(ctx, api, chatID, "add_access", types.ErrCollaboratorUnavailable)
		return
	}
	sub, err := bh.entitlements.ActivateManual(ctx, leadID)
	if errors.Is(err, types.ErrNotFound) {
		bh.send(ctx, api, chatID, messages.AdminLeadNotFound(leadID), nil)
		return
	}
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "add_access", err)
		return
	}

	url := ""
	grant, err := bh.entitlements.GrantAccess(ctx, leadID)
	if err != nil {
		bh.logger.Warn("manual grant without link", "lead_id", leadID, "error", err)
	} else {
		url = grant.AccessURL
		bh.send(ctx, api, leadID, messages.AccessGranted(bh.leadLang(ctx, leadID), url), nil)
	}
	bh.send(ctx, api, chatID, messages.AdminAccessGranted(leadID, *sub, url), nil)
}

func (bh *Handlers) adminRemoveAccess(ctx context.Context, api BotAPI, chatID, leadID int64) {
	if bh.entitlements == nil {
		bh.adminFailed(ctx, api, chatID, "remove_access", types.ErrCollaboratorUnavailable)
		return
	}
	canceled, err := bh.entitlements.RevokeAccess(ctx, leadID)
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "remove_access", err)
		return
	}
	bh.send(ctx, api, chatID, messages.AdminAccessRemoved(leadID, canceled), nil)
}

func (bh *Handlers) adminSetStatus(ctx context.Context, api BotAPI, chatID int64, args []string) {
	const usage = "/set_status <id> <NEW|QUALIFIED|WARM|CUSTOMER|CHURNED|VIP>"
	if len(args) < 2 {
		bh.send(ctx, api, chatID, messages.AdminUsage(usage), nil)
		return
	}
	leadID, err := strconv.ParseInt(args[0], 10, 64)
	c, ok := types.ParseClassification(args[1])
	if err != nil || !ok {
		bh.send(ctx, api, chatID, messages.AdminUsage(usage), nil)
		return
	}
	err = bh.repo.SetClassification(ctx, leadID, c)
	if errors.Is(err, types.ErrNotFound) {
		bh.send(ctx, api, chatID, messages.AdminLeadNotFound(leadID), nil)
		return
	}
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "set_status", err)
		return
	}
	bh.send(ctx, api, chatID, messages.AdminStatusSet(leadID, c), nil)
}

// adminBroadcast keeps the text exactly as typed after the audience word.
func (bh *Handlers) adminBroadcast(ctx context.Context, api BotAPI, chatID int64, raw string) {
	const usage = "/broadcast <all|non_customers|customers> <текст>"
	rest := strings.TrimSpace(raw)
	if i := strings.IndexAny(rest, " \n\t"); i >= 0 {
		rest = strings.TrimSpace(rest[i:])
	} else {
		rest = ""
	}
	word := rest
	text := ""
	if i := strings.IndexAny(rest, " \n\t"); i >= 0 {
		word, text = rest[:i], strings.TrimSpace(rest[i:])
	}
	audience, ok := broadcast.ParseAudience(word)
	if !ok || text == "" {
		bh.send(ctx, api, chatID, messages.AdminUsage(usage), nil)
		return
	}
	if bh.broadcaster == nil {
		bh.adminFailed(ctx, api, chatID, "broadcast", types.MissingConfig("AMQP_URL"))
		return
	}
	res, err := bh.broadcaster.Enqueue(ctx, audience, text)
	if err != nil {
		bh.adminFailed(ctx, api, chatID, "broadcast", err)
		return
	}
	bh.send(ctx, api, chatID, messages.AdminBroadcastQueued(res.Queued), nil)
}

func (bh *Handlers) leadLang(ctx context.Context, leadID int64) i18n.Lang {
	if bh.prefs != nil {
		if p, err := bh.prefs.GetPreferences(ctx, leadID); err == nil && i18n.Valid(p.Lang) {
			return i18n.Parse(p.Lang)
		}
	}
	if lead, err := bh.repo.GetLead(ctx, leadID); err == nil {
		return i18n.FromLanguageCode(lead.LanguageCode)
	}
	return i18n.Default
}

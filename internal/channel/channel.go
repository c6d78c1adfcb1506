// Package channel wraps the Telegram calls that gate the club channel.
package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/hub-sales-bot/internal/messages"
	"github.com/BatmanBruc/hub-sales-bot/pkg/logging"
	"github.com/BatmanBruc/hub-sales-bot/types"
)

// DefaultUnbanDelay lets Telegram apply the ban before it is lifted.
const DefaultUnbanDelay = 2 * time.Second

const unbanTimeout = 10 * time.Second

// ChatAPI is the subset of *bot.Bot used here.
type ChatAPI interface {
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
	UnbanChatMember(ctx context.Context, params *bot.UnbanChatMemberParams) (bool, error)
	CreateChatInviteLink(ctx context.Context, params *bot.CreateChatInviteLinkParams) (*models.ChatInviteLink, error)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var _ ChatAPI = (*bot.Bot)(nil)

type Manager struct {
	api        ChatAPI
	channelID  int64
	unbanDelay time.Duration
	logger     *logging.Logger
}

func NewManager(api ChatAPI, channelID int64, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{api: api, channelID: channelID, unbanDelay: DefaultUnbanDelay, logger: logger}
}

// Revoke removes the lead from the channel without a permanent ban. Once
// the ban lands the unban always runs, even after ctx ends.
func (m *Manager) Revoke(ctx context.Context, leadID int64) error {
	if m.channelID == 0 {
		return types.MissingConfig("CLUB_CHANNEL_ID")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("channel: ban %d: %w", leadID, err)
	}
	if _, err := m.api.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: m.channelID,
		UserID: leadID,
	}); err != nil {
		return fmt.Errorf("channel: ban %d: %w", leadID, err)
	}

	time.Sleep(m.unbanDelay)

	unbanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unbanTimeout)
	defer cancel()
	if _, err := m.api.UnbanChatMember(unbanCtx, &bot.UnbanChatMemberParams{
		ChatID:       m.channelID,
		UserID:       leadID,
		OnlyIfBanned: true,
	}); err != nil {
		m.logger.Error("lead left banned", "lead_id", leadID, "channel_id", m.channelID, "error", err)
		return fmt.Errorf("channel: unban %d: %w", leadID, err)
	}
	m.logger.Info("channel membership revoked", "lead_id", leadID, "channel_id", m.channelID)
	return nil
}

// Invite creates a one-member invite link that expires after ttl.
func (m *Manager) Invite(ctx context.Context, leadID int64, ttl time.Duration) (string, error) {
	if m.channelID == 0 {
		return "", types.MissingConfig("CLUB_CHANNEL_ID")
	}
	params := &bot.CreateChatInviteLinkParams{
		ChatID:      m.channelID,
		Name:        fmt.Sprintf("lead %d", leadID),
		MemberLimit: 1,
	}
	if ttl > 0 {
		params.ExpireDate = int(time.Now().Add(ttl).Unix())
	}
	link, err := m.api.CreateChatInviteLink(ctx, params)
	if err != nil {
		return "", fmt.Errorf("channel: invite %d: %w", leadID, err)
	}
	return link.InviteLink, nil
}

// Notifier sends plain HTML messages to a lead's private chat. Link
// previews stay off so Telegram never fetches single-use access URLs.
type Notifier struct {
	api ChatAPI
}

func NewNotifier(api ChatAPI) *Notifier {
	return &Notifier{api: api}
}

func (n *Notifier) Notify(ctx context.Context, chatID int64, text string) error {
	_, err := n.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:             chatID,
		Text:               text,
		ParseMode:          messages.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
	})
	if err != nil {
		return fmt.Errorf("channel: notify %d: %w", chatID, err)
	}
	return nil
}

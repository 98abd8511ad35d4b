package services

import (
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/uaru-shit/joingate/internal/domain"
	"github.com/uaru-shit/joingate/pkg/utils"
	tb "gopkg.in/telebot.v4"
)

// AdminService decides who may run privileged commands.
type AdminService struct {
	bot      domain.Messenger
	logger   *slog.Logger
	adminIDs mapset.Set[int64]
}

func NewAdminService(bot domain.Messenger, logger *slog.Logger, adminIDs mapset.Set[int64]) *AdminService {
	return &AdminService{
		bot:      bot,
		logger:   logger,
		adminIDs: adminIDs,
	}
}

// IsAdmin trusts the allow-list in private chats and the chat's own admin list in groups.
// A failed member lookup counts as not admin.
func (s *AdminService) IsAdmin(user *tb.User, chat *tb.Chat) bool {
	if user == nil || chat == nil {
		return false
	}

	switch chat.Type {
	case tb.ChatPrivate:
		return s.adminIDs.Contains(user.ID)
	case tb.ChatGroup, tb.ChatSuperGroup:
		member, err := s.bot.ChatMemberOf(chat, user)
		if err != nil {
			s.logger.Error("cannot get chat member",
				slog.Int64("chat_id", chat.ID),
				slog.Int64("user_id", user.ID),
				utils.ErrorAttr(err))

			return false
		}

		return member != nil && utils.IsAdminRole(member.Role)
	default:
		return false
	}
}

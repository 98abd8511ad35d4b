package services

import (
	"strconv"
	"time"

	"github.com/codenoid/minikv"
	"github.com/uaru-shit/joingate/internal/domain"
	tb "gopkg.in/telebot.v4"
)

const defaultSessionKey = "default"

// SessionService caches per-chat session state; entries expire after the configured TTL.
type SessionService struct {
	kv  *minikv.KV
	now func() time.Time
}

func NewSessionService(ttl time.Duration) *SessionService {
	return &SessionService{
		kv:  minikv.New(ttl, ttl/2+time.Second),
		now: time.Now,
	}
}

// SessionKey is the chat id, else the user id, else a constant.
func SessionKey(chat *tb.Chat, user *tb.User) string {
	switch {
	case chat != nil:
		return strconv.FormatInt(chat.ID, 10)
	case user != nil:
		return strconv.FormatInt(user.ID, 10)
	default:
		return defaultSessionKey
	}
}

func (s *SessionService) Load(chat *tb.Chat, user *tb.User) domain.SessionState {
	key := SessionKey(chat, user)

	if v, found := s.kv.Get(key); found {
		if state, ok := v.(domain.SessionState); ok {
			return state
		}
	}

	state := domain.SessionState{Key: key}
	if chat != nil {
		state.ChatID = chat.ID
	}

	return state
}

func (s *SessionService) Save(state domain.SessionState) {
	if state.Key == "" {
		state.Key = defaultSessionKey
	}

	state.UpdatedAt = s.now()
	s.kv.Set(state.Key, state, minikv.DefaultExpiration)
}

func (s *SessionService) Forget(key string) {
	s.kv.Delete(key)
}

// Package telegram wraps the Bot API client: one cached client per channel
// token, shared rate limiting, and retry handling for flood control.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/ratelimit"

	"postline-bot/pkg/telegoapi"
)

// ErrNotConfigured means the channel has no bot token to publish with.
var ErrNotConfigured = errors.New("telegram: channel has no bot token configured")

const (
	maxSendRetries   = 3
	defaultRetryWait = 2 * time.Second
)

// Sender publishes messages on behalf of channels. Clients are created lazily
// per bot token and reused; all sends share one rate limiter.
type Sender struct {
	mu      sync.Mutex
	clients map[string]telegoapi.BotAPI
	limiter ratelimit.Limiter

	// newClient is swappable in tests.
	newClient func(token string) (telegoapi.BotAPI, error)
}

func NewSender() *Sender {
	return &Sender{
		clients: make(map[string]telegoapi.BotAPI),
		limiter: ratelimit.New(20),
		newClient: func(token string) (telegoapi.BotAPI, error) {
			return telego.NewBot(token)
		},
	}
}

func (s *Sender) clientFor(token string) (telegoapi.BotAPI, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrNotConfigured
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.clients[token]; ok {
		return client, nil
	}
	client, err := s.newClient(token)
	if err != nil {
		return nil, fmt.Errorf("creating bot client: %w", err)
	}
	s.clients[token] = client
	return client, nil
}

// chatID turns a stored channel identifier (@name or numeric chat ID) into
// the wire form.
func chatID(chat string) telego.ChatID {
	if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
		return tu.ID(id)
	}
	return tu.Username(chat)
}

// SendMessage sends a plain text message to the chat.
func (s *Sender) SendMessage(ctx context.Context, token, chat, text string) (*telego.Message, error) {
	client, err := s.clientFor(token)
	if err != nil {
		return nil, err
	}
	s.limiter.Take()
	return client.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: chatID(chat),
		Text:   text,
	})
}

// SendMediaGroup sends a media group, retrying on flood control with the
// wait time Telegram asks for.
func (s *Sender) SendMediaGroup(ctx context.Context, token, chat string, media []telego.InputMedia) ([]telego.Message, error) {
	client, err := s.clientFor(token)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxSendRetries; attempt++ {
		s.limiter.Take()
		sent, err := client.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
			ChatID: chatID(chat),
			Media:  media,
		})
		if err == nil {
			if attempt > 0 {
				log.Printf("[Telegram] Media group sent to %s after %d attempt(s)", chat, attempt+1)
			}
			return sent, nil
		}
		lastErr = err

		errStr := err.Error()
		if !strings.Contains(errStr, "Too Many Requests") && !strings.Contains(errStr, "429") {
			return nil, err
		}

		wait := defaultRetryWait
		if seconds, ok := parseRetryAfter(errStr); ok {
			wait = time.Duration(seconds) * time.Second
		}
		log.Printf("[Telegram] Rate limit hit sending to %s (attempt %d/%d), waiting %v",
			chat, attempt+1, maxSendRetries, wait)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("cancelled during rate limit wait: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("media group to %s failed after %d attempts: %w", chat, maxSendRetries, lastErr)
}

// IsForbidden reports whether the error means the bot lacks access to the
// chat (kicked, never added, or missing post rights).
func IsForbidden(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "403") ||
		strings.Contains(msg, "Forbidden") ||
		strings.Contains(msg, "not enough rights") ||
		strings.Contains(msg, "bot was kicked")
}

// parseRetryAfter extracts the retry duration from a flood control error
// string ("...: retry after 17").
func parseRetryAfter(errorString string) (int, bool) {
	var retryAfter int
	fields := strings.Fields(errorString)
	if len(fields) >= 3 && fields[len(fields)-2] == "after" {
		if _, err := fmt.Sscan(fields[len(fields)-1], &retryAfter); err == nil && retryAfter > 0 {
			return retryAfter, true
		}
	}
	return 0, false
}

// Package chat delivers queued reward messages to the hosts' Twitch chats.
// The engine writes chat_messages rows as part of a resolution; this sender
// periodically claims unsent rows, groups them by hosting user, and relays
// them with that user's own credentials. Delivery is best-effort and happens
// entirely outside the game's action path.
package chat

import (
	"context"
	"errors"
	"log"
	"time"

	"guess-the-drop/internal/db"

	twitch "github.com/gempir/go-twitch-irc/v4"
	"github.com/google/uuid"
)

const messageDelay = 250 * time.Millisecond

// Deliverer sends one batch of messages to one channel. Swapped out in
// tests.
type Deliverer interface {
	Deliver(ctx context.Context, login, accessToken string, messages []string) error
}

type Sender struct {
	queue     db.ChatQueue
	deliverer Deliverer
	refresher TokenRefresher
	interval  time.Duration
}

func NewSender(queue db.ChatQueue, interval time.Duration, refresher TokenRefresher) *Sender {
	return &Sender{
		queue:     queue,
		deliverer: &ircDeliverer{},
		refresher: refresher,
		interval:  interval,
	}
}

// Run flushes the queue on a fixed interval until ctx is cancelled.
func (s *Sender) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				log.Printf("chat flush failed error=%v", err)
			}
		}
	}
}

// Flush claims every queued message under a fresh lock id and hands each
// host's batch to the deliverer. Messages that could not be sent are
// released back into the queue for the next pass.
func (s *Sender) Flush(ctx context.Context) error {
	lockID := uuid.NewString()
	claimed, err := s.queue.ClaimChatMessages(ctx, lockID)
	if err != nil {
		return err
	}
	if claimed == 0 {
		return nil
	}

	messages, err := s.queue.MessagesByLock(ctx, lockID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	codes := make([]string, 0, len(messages))
	seen := make(map[string]struct{})
	for _, message := range messages {
		if _, ok := seen[message.GameCode]; ok {
			continue
		}
		seen[message.GameCode] = struct{}{}
		codes = append(codes, message.GameCode)
	}
	hosts, err := s.queue.GameHosts(ctx, codes)
	if err != nil {
		return err
	}

	byUser := make(map[string][]db.ChatMessage)
	var orphaned []uint
	for _, message := range messages {
		host, ok := hosts[message.GameCode]
		if !ok {
			orphaned = append(orphaned, message.ID)
			continue
		}
		byUser[host] = append(byUser[host], message)
	}
	// A queued message whose game vanished can never be delivered.
	if err := s.queue.MarkMessagesSent(ctx, orphaned); err != nil {
		log.Printf("chat orphan cleanup failed error=%v", err)
	}

	for userID, batch := range byUser {
		s.deliverBatch(ctx, userID, batch)
	}
	return nil
}

func (s *Sender) deliverBatch(ctx context.Context, userID string, batch []db.ChatMessage) {
	ids := make([]uint, 0, len(batch))
	for _, message := range batch {
		ids = append(ids, message.ID)
	}

	user, ok, err := s.queue.FindUser(ctx, userID)
	if err != nil || !ok {
		log.Printf("chat delivery skipped user=%s reason=user_lookup error=%v", userID, err)
		s.release(ctx, ids)
		return
	}
	auth, ok, err := s.queue.ChatSession(ctx, userID)
	if err != nil || !ok {
		log.Printf("chat delivery skipped user=%s reason=no_chat_session error=%v", userID, err)
		s.release(ctx, ids)
		return
	}

	token := auth.AccessToken
	if auth.Expiry > 0 && auth.Expiry < time.Now().Unix() {
		refreshed, err := s.refresher.Refresh(ctx, auth.RefreshToken)
		if err != nil {
			log.Printf("chat token refresh failed user=%s error=%v", userID, err)
			s.release(ctx, ids)
			return
		}
		if err := s.queue.UpdateSessionTokens(ctx, auth.ID, refreshed.AccessToken, refreshed.RefreshToken, refreshed.Expiry); err != nil {
			log.Printf("chat token update failed user=%s error=%v", userID, err)
		}
		token = refreshed.AccessToken
	}

	texts := make([]string, 0, len(batch))
	for _, message := range batch {
		texts = append(texts, message.Message)
	}
	if err := s.deliverer.Deliver(ctx, user.TwitchLogin, token, texts); err != nil {
		log.Printf("chat delivery failed user=%s error=%v", userID, err)
		s.release(ctx, ids)
		return
	}
	if err := s.queue.MarkMessagesSent(ctx, ids); err != nil {
		log.Printf("chat mark sent failed user=%s error=%v", userID, err)
	}
}

func (s *Sender) release(ctx context.Context, ids []uint) {
	if err := s.queue.ReleaseChatMessages(ctx, ids); err != nil {
		log.Printf("chat release failed error=%v", err)
	}
}

// ircDeliverer speaks to Twitch over IRC with the host's own login.
type ircDeliverer struct{}

func (d *ircDeliverer) Deliver(ctx context.Context, login, accessToken string, messages []string) error {
	client := twitch.NewClient(login, "oauth:"+accessToken)
	client.OnConnect(func() {
		go func() {
			for _, message := range messages {
				client.Say(login, message)
				time.Sleep(messageDelay)
			}
			_ = client.Disconnect()
		}()
	})
	client.Join(login)

	done := make(chan error, 1)
	go func() {
		done <- client.Connect()
	}()
	select {
	case <-ctx.Done():
		_ = client.Disconnect()
		return ctx.Err()
	case err := <-done:
		if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			return err
		}
		return nil
	}
}

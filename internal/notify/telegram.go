// Package notify delivers punch outcomes to the account owner.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"kintai/internal/config"
	"kintai/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier pushes one-way status messages to a single chat.
type TelegramNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
	logger *zerolog.Logger
}

func NewTelegramNotifier(cfg config.NotifyConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	logger.Info().Str("username", api.Self.UserName).Msg("telegram notifier connected")
	return &TelegramNotifier{api: api, chatID: cfg.TelegramChatID, logger: logger}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SubscribePunchEvents wires the notifier onto the event bus so every
// executed, failed, or skipped punch produces a message.
func (n *TelegramNotifier) SubscribePunchEvents(bus *events.EventBus) {
	handler := func(event *events.Event) error {
		var payload events.PunchEvent
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("decode punch event: %w", err)
		}
		text := formatPunchMessage(event.Type, payload)
		if err := n.Notify(context.Background(), text); err != nil {
			n.logger.Warn().Err(err).Str("event", event.Type).Msg("notification delivery failed")
			return err
		}
		return nil
	}
	bus.Subscribe(events.EventPunchExecuted, handler)
	bus.Subscribe(events.EventPunchFailed, handler)
	bus.Subscribe(events.EventPunchSkipped, handler)
	bus.Subscribe(events.EventPlanRefreshed, n.handlePlanRefreshed)
}

// handlePlanRefreshed summarizes the freshly computed day plan.
func (n *TelegramNotifier) handlePlanRefreshed(event *events.Event) error {
	var plan struct {
		State   string `json:"state"`
		Reason  string `json:"reason"`
		Execute []struct {
			Action string    `json:"action"`
			At     time.Time `json:"at"`
		} `json:"execute"`
	}
	if err := json.Unmarshal(event.Payload, &plan); err != nil {
		return fmt.Errorf("decode plan event: %w", err)
	}

	text := fmt.Sprintf("📋 Plan refreshed (state %s): %d punches scheduled", plan.State, len(plan.Execute))
	for _, p := range plan.Execute {
		text += fmt.Sprintf("\n• %s at %s", p.Action, p.At.Format("15:04"))
	}
	if plan.Reason != "" {
		text += "\n" + plan.Reason
	}
	if err := n.Notify(context.Background(), text); err != nil {
		n.logger.Warn().Err(err).Msg("notification delivery failed")
		return err
	}
	return nil
}

func formatPunchMessage(eventType string, p events.PunchEvent) string {
	stamp := p.Timestamp.Format("15:04")
	switch eventType {
	case events.EventPunchExecuted:
		return fmt.Sprintf("✅ %s recorded at %s (%s)", p.Action, stamp, p.Trigger)
	case events.EventPunchFailed:
		return fmt.Sprintf("❌ %s failed at %s: %s", p.Action, stamp, p.Error)
	default:
		return fmt.Sprintf("⏭ %s skipped at %s: %s", p.Action, stamp, p.Error)
	}
}

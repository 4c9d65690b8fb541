package notify

import (
	"encoding/json"
	"fmt"

	"tripline/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// botClient is the slice of the telegram API the notifier needs.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier forwards trip activity to a group chat: new trips, new
// participants, deletions. Per-module edits are deliberately not announced,
// they are too chatty for a group channel.
type TelegramNotifier struct {
	bot    botClient
	chatID int64
	logger zerolog.Logger

	unsubscribe []func()
}

func NewTelegramNotifier(token string, chatID int64, debug bool, logger *zerolog.Logger) (*TelegramNotifier, error) {
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	botAPI.Debug = debug

	return &TelegramNotifier{
		bot:    botAPI,
		chatID: chatID,
		logger: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// SubscribeToBus wires the notifier to trip lifecycle events.
func (n *TelegramNotifier) SubscribeToBus(bus *events.EventBus) {
	n.unsubscribe = append(n.unsubscribe,
		bus.Subscribe(events.EventTripCreated, n.onTripCreated),
		bus.Subscribe(events.EventTripDeleted, n.onTripDeleted),
		bus.Subscribe(events.EventParticipantJoined, n.onParticipantJoined),
	)
}

// Stop detaches all bus subscriptions.
func (n *TelegramNotifier) Stop() {
	for _, cancel := range n.unsubscribe {
		cancel()
	}
	n.unsubscribe = nil
}

func (n *TelegramNotifier) onTripCreated(event *events.Event) error {
	payload, err := decodeTripPayload(event)
	if err != nil {
		return err
	}

	title := tripTitleFromDoc(payload.Doc)
	if title == "" {
		title = payload.TripID
	}
	n.send(fmt.Sprintf("🧳 New trip: %s", title))
	return nil
}

func (n *TelegramNotifier) onTripDeleted(event *events.Event) error {
	payload, err := decodeTripPayload(event)
	if err != nil {
		return err
	}
	n.send(fmt.Sprintf("🗑 Trip deleted: %s", payload.TripID))
	return nil
}

func (n *TelegramNotifier) onParticipantJoined(event *events.Event) error {
	payload, err := decodeTripPayload(event)
	if err != nil {
		return err
	}
	n.send(fmt.Sprintf("👋 %s joined trip %s", payload.Actor, payload.TripID))
	return nil
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		n.logger.Error().Err(err).Msg("failed to send telegram notification")
	}
}

func decodeTripPayload(event *events.Event) (events.TripEventPayload, error) {
	var payload events.TripEventPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return payload, fmt.Errorf("failed to decode trip event: %w", err)
	}
	return payload, nil
}

func tripTitleFromDoc(doc json.RawMessage) string {
	if len(doc) == 0 {
		return ""
	}
	var partial struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(doc, &partial); err != nil {
		return ""
	}
	return partial.Title
}

package notify

import (
	"context"
	"fmt"
	"strings"

	"erpsync/internal/config"
	"erpsync/internal/events"
	"erpsync/internal/queue"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const outboxSize = 64

// Sender is the part of the Telegram client the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier alerts operators about connectivity changes, failed sync
// passes and dead-lettered actions. Messages are sent from Run so publishers
// never wait on Telegram.
type TelegramNotifier struct {
	sender  Sender
	chatIDs []int64
	outbox  chan string
	logger  *zerolog.Logger
}

// NewTelegramNotifier connects to the Bot API with the configured token.
func NewTelegramNotifier(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return New(bot, cfg.ChatIDs, logger), nil
}

func New(sender Sender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{
		sender:  sender,
		chatIDs: chatIDs,
		outbox:  make(chan string, outboxSize),
		logger:  logger,
	}
}

func (n *TelegramNotifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.EventConnectivityChanged, n.onConnectivityChanged)
	bus.Subscribe(events.EventSyncCompleted, n.onSyncCompleted)
	bus.Subscribe(events.EventActionRemoved, n.onActionRemoved)
}

// Run delivers queued messages until ctx is done.
func (n *TelegramNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-n.outbox:
			n.broadcast(text)
		}
	}
}

func (n *TelegramNotifier) broadcast(text string) {
	for _, chatID := range n.chatIDs {
		if _, err := n.sender.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Msg("telegram send error")
		}
	}
}

func (n *TelegramNotifier) post(text string) {
	select {
	case n.outbox <- text:
	default:
		n.logger.Warn().Str("text", text).Msg("telegram outbox full, dropping alert")
	}
}

func (n *TelegramNotifier) onConnectivityChanged(e *events.Event) error {
	var p events.ConnectivityPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if p.Online {
		n.post("ERP backend is reachable again.")
		return nil
	}
	n.post("ERP backend is unreachable. Mutations are being queued.")
	return nil
}

func (n *TelegramNotifier) onSyncCompleted(e *events.Event) error {
	var p events.SyncPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if p.Failed == 0 && p.DeadLettered == 0 {
		return nil
	}
	n.post(formatSyncAlert(p))
	return nil
}

func (n *TelegramNotifier) onActionRemoved(e *events.Event) error {
	var p events.ActionPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if p.Reason != queue.ReasonDeadLettered {
		return nil
	}
	n.post(fmt.Sprintf("Action %s (%s %s %s) gave up after its last retry and was moved to dead letters.",
		p.ActionID, p.Operation, p.Entity, p.Endpoint))
	return nil
}

func formatSyncAlert(p events.SyncPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync finished with errors: %d succeeded, %d failed", p.Succeeded, p.Failed)
	if p.DeadLettered > 0 {
		fmt.Fprintf(&b, ", %d dead-lettered", p.DeadLettered)
	}
	fmt.Fprintf(&b, ". %d actions still pending.", p.Pending)
	return b.String()
}

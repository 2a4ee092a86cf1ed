package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"erpsync/internal/events"
	"erpsync/internal/queue"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

type recordingSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.Text)
	}
	return out
}

func TestNotifierAlerts(t *testing.T) {
	logger := zerolog.Nop()
	bus := events.NewEventBus(&logger)
	sender := &recordingSender{}
	n := New(sender, []int64{42}, &logger)
	n.Subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	_ = bus.PublishJSON(events.EventConnectivityChanged, events.ConnectivityPayload{Online: false})
	// clean passes and manual removals stay quiet
	_ = bus.PublishJSON(events.EventSyncCompleted, events.SyncPayload{Succeeded: 3})
	_ = bus.PublishJSON(events.EventActionRemoved, events.ActionPayload{ActionID: "a0", Reason: queue.ReasonManual})
	_ = bus.PublishJSON(events.EventActionRemoved, events.ActionPayload{
		ActionID: "a1", Operation: "CREATE", Entity: "product", Endpoint: "/p", Reason: queue.ReasonDeadLettered,
	})
	_ = bus.PublishJSON(events.EventSyncCompleted, events.SyncPayload{Succeeded: 1, Failed: 2, DeadLettered: 1, Pending: 2})

	assert.Eventually(t, func() bool { return len(sender.texts()) == 3 }, time.Second, 10*time.Millisecond)
	texts := sender.texts()
	assert.Equal(t, "ERP backend is unreachable. Mutations are being queued.", texts[0])
	assert.Contains(t, texts[1], "a1 (CREATE product /p)")
	assert.Equal(t, "Sync finished with errors: 1 succeeded, 2 failed, 1 dead-lettered. 2 actions still pending.", texts[2])

	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Equal(t, int64(42), sender.sent[0].ChatID)
}

func TestNotifierBroadcastContinuesAfterSendError(t *testing.T) {
	sender := new(MockSender)
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool { return c.ChatID == 1 })).
		Return(tgbotapi.Message{}, errors.New("chat not found")).Once()
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.MessageConfig) bool { return c.ChatID == 2 })).
		Return(tgbotapi.Message{}, nil).Once()

	n := New(sender, []int64{1, 2}, nil)
	n.broadcast("hello")

	sender.AssertExpectations(t)
}

func TestNotifierDropsWhenOutboxFull(t *testing.T) {
	n := New(&recordingSender{}, []int64{1}, nil)
	for i := 0; i < outboxSize+5; i++ {
		n.post("x")
	}
	assert.Len(t, n.outbox, outboxSize)
}

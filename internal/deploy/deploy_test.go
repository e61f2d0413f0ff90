package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"dexgrad/internal/config"
	"dexgrad/pkg/ratelimit"
)

// mockWriter - mock для kafka.Writer
type mockWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

// mockPublisher - mock для Publisher
type mockPublisher struct {
	mu     sync.Mutex
	events []any
	topics []string
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, topic, _ string, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.events = append(m.events, event)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaPublisher{writer: w, writeTimeout: time.Second}

	err := p.Publish(context.Background(), "dex.deploy.requested", "42", DeployRequested{AccountID: 42, BrokerID: "myex", Reason: ReasonManual})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(w.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(w.messages))
	}
	msg := w.messages[0]
	if msg.Topic != "dex.deploy.requested" || string(msg.Key) != "42" {
		t.Errorf("unexpected message routing: topic=%s key=%s", msg.Topic, msg.Key)
	}

	var decoded DeployRequested
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.BrokerID != "myex" || decoded.Reason != ReasonManual {
		t.Errorf("decoded = %+v", decoded)
	}

	if err := p.Close(); err != nil || !w.closed {
		t.Error("Close should close writer")
	}
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	p := &KafkaPublisher{writer: w}

	if err := p.Publish(context.Background(), "t", "k", map[string]int{"a": 1}); err == nil {
		t.Error("expected error")
	}
}

func TestNewPublisher(t *testing.T) {
	kp := NewPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	if _, ok := kp.(*KafkaPublisher); !ok {
		t.Error("brokers configured: expected KafkaPublisher")
	}
	kp.Close()

	p := NewPublisher(config.KafkaConfig{})
	if _, ok := p.(*LogPublisher); !ok {
		t.Error("no brokers: expected LogPublisher")
	}
	if err := p.Publish(context.Background(), "t", "k", struct{}{}); err != nil {
		t.Errorf("LogPublisher.Publish() = %v", err)
	}
}

func TestTrigger_Request(t *testing.T) {
	pub := &mockPublisher{}
	trigger := NewTrigger(ratelimit.NewMemoryCooldown(5*time.Minute), pub, "dex.deploy.requested")

	event, err := trigger.Request(context.Background(), 1, "myex", ReasonFeesUpdated)
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	if event.AccountID != 1 || event.Reason != ReasonFeesUpdated {
		t.Errorf("event = %+v", event)
	}

	_, err = trigger.Request(context.Background(), 1, "myex", ReasonManual)
	if !errors.Is(err, ErrDeployCooldown) {
		t.Fatalf("expected ErrDeployCooldown, got %v", err)
	}
	var cdErr *CooldownError
	if !errors.As(err, &cdErr) || cdErr.RetryAfter <= 0 || cdErr.RetryAfter > 5*time.Minute {
		t.Errorf("unexpected retry after: %v", err)
	}

	// Другой аккаунт - свое окно
	if _, err := trigger.Request(context.Background(), 2, "other", ReasonManual); err != nil {
		t.Errorf("other account should not be gated: %v", err)
	}

	if len(pub.events) != 2 || pub.topics[0] != "dex.deploy.requested" {
		t.Errorf("published %d events to %v", len(pub.events), pub.topics)
	}
	if trigger.Window() != 5*time.Minute {
		t.Errorf("Window() = %v", trigger.Window())
	}
}

func TestTrigger_PublishFailureResetsCooldown(t *testing.T) {
	pub := &mockPublisher{err: errors.New("kafka down")}
	trigger := NewTrigger(ratelimit.NewMemoryCooldown(time.Hour), pub, "t")

	if _, err := trigger.Request(context.Background(), 1, "myex", ReasonManual); err == nil {
		t.Fatal("expected publish error")
	}

	pub.err = nil
	if _, err := trigger.Request(context.Background(), 1, "myex", ReasonManual); err != nil {
		t.Errorf("failed publish must not consume the window: %v", err)
	}
}

// Package deploy - публикация событий и триггер пересборки фронтенда DEX.
package deploy

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"

	"dexgrad/internal/config"
	"dexgrad/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Publisher публикует события во внешние системы
type Publisher interface {
	// Publish сериализует event в JSON и отправляет в topic с ключом key
	Publish(ctx context.Context, topic, key string, event any) error
	Close() error
}

// messageWriter - подмножество kafka.Writer
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher отправляет события в Kafka
//
// Topic задается на каждое сообщение, поэтому один writer обслуживает
// и события деплоя, и события градуации. Ключ - id аккаунта: события
// одного аккаунта попадают в одну партицию.
type KafkaPublisher struct {
	writer       messageWriter
	writeTimeout time.Duration
}

// NewKafkaPublisher создает publisher по конфигурации
func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return &KafkaPublisher{writer: writer, writeTimeout: cfg.WriteTimeout}
}

// Publish реализует Publisher
func (p *KafkaPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}

	if p.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.writeTimeout)
		defer cancel()
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close закрывает writer, дожидаясь отправки буфера
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher только логирует события (Kafka не настроена)
type LogPublisher struct {
	log *utils.Logger
}

// NewLogPublisher создает publisher без внешней доставки
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{log: utils.L().WithComponent("events")}
}

// Publish реализует Publisher
func (p *LogPublisher) Publish(_ context.Context, topic, key string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event for %s: %w", topic, err)
	}
	p.log.Info("event published",
		utils.String("topic", topic),
		utils.String("key", key),
		utils.String("payload", string(data)),
	)
	return nil
}

// Close реализует Publisher
func (p *LogPublisher) Close() error { return nil }

// NewPublisher выбирает реализацию: Kafka, если заданы брокеры
func NewPublisher(cfg config.KafkaConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return NewLogPublisher()
	}
	return NewKafkaPublisher(cfg)
}

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)

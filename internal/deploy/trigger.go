package deploy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dexgrad/pkg/ratelimit"
	"dexgrad/pkg/utils"
)

// ErrDeployCooldown - пересборка для аккаунта уже запрашивалась в текущем окне
var ErrDeployCooldown = errors.New("deployment cooldown active")

// CooldownError несет время до следующей разрешенной пересборки
type CooldownError struct {
	RetryAfter time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrDeployCooldown, e.RetryAfter.Round(time.Second))
}

// Is позволяет errors.Is(err, ErrDeployCooldown)
func (e *CooldownError) Is(target error) bool {
	return target == ErrDeployCooldown
}

// Причины пересборки
const (
	ReasonFeesUpdated = "fees_updated"
	ReasonGraduation  = "graduation"
	ReasonManual      = "manual"
)

// DeployRequested - событие запроса пересборки
type DeployRequested struct {
	AccountID   int64     `json:"account_id"`
	BrokerID    string    `json:"broker_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// Trigger запрашивает пересборку фронтенда DEX не чаще одного раза за окно
type Trigger struct {
	cooldown  ratelimit.Cooldown
	publisher Publisher
	topic     string
	now       func() time.Time
	log       *utils.Logger
}

// NewTrigger создает триггер
func NewTrigger(cooldown ratelimit.Cooldown, publisher Publisher, topic string) *Trigger {
	return &Trigger{
		cooldown:  cooldown,
		publisher: publisher,
		topic:     topic,
		now:       time.Now,
		log:       utils.L().WithComponent("deploy"),
	}
}

// Request публикует событие пересборки
//
// В окне cooldown возвращает *CooldownError. Если публикация не удалась,
// окно освобождается, чтобы запрос можно было повторить сразу.
func (t *Trigger) Request(ctx context.Context, accountID int64, brokerID, reason string) (*DeployRequested, error) {
	key := strconv.FormatInt(accountID, 10)

	ok, retryAfter, err := t.cooldown.Acquire(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("deploy cooldown: %w", err)
	}
	if !ok {
		return nil, &CooldownError{RetryAfter: retryAfter}
	}

	event := &DeployRequested{
		AccountID:   accountID,
		BrokerID:    brokerID,
		Reason:      reason,
		RequestedAt: t.now().UTC(),
	}

	if err := t.publisher.Publish(ctx, t.topic, key, event); err != nil {
		if resetErr := t.cooldown.Reset(context.WithoutCancel(ctx), key); resetErr != nil {
			t.log.Warn("failed to reset deploy cooldown", utils.AccountID(accountID), utils.Err(resetErr))
		}
		return nil, err
	}

	t.log.Info("deployment requested",
		utils.AccountID(accountID),
		utils.BrokerID(brokerID),
		utils.String("reason", reason),
	)
	return event, nil
}

// Window возвращает длительность окна cooldown
func (t *Trigger) Window() time.Duration {
	return t.cooldown.Window()
}

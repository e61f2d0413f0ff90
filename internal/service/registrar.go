package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dexgrad/internal/models"
	"dexgrad/internal/repository"
	"dexgrad/pkg/retry"
	"dexgrad/pkg/utils"
)

// RegistrarConfig - параметры регистратора
type RegistrarConfig struct {
	Timeout  time.Duration // верхняя граница записи и отката, не зависит от клиента
	Rollback retry.Config  // повторы компенсирующего удаления
}

// RegistrationResult - результат регистрации брокера
type RegistrationResult struct {
	BrokerID          string
	BrokerIndex       int64
	AlreadyRegistered bool // запись уже была в обоих хранилищах
	Resumed           bool // запись была только в одном хранилище и дописана
}

// BrokerPresence - наличие broker id в хранилищах
type BrokerPresence struct {
	Primary *models.BrokerRecord
	Partner *models.BrokerRecord
}

// Index возвращает индекс уже существующей записи (0, если записей нет)
func (p *BrokerPresence) Index() int64 {
	switch {
	case p.Primary != nil:
		return p.Primary.BrokerIndex
	case p.Partner != nil:
		return p.Partner.BrokerIndex
	default:
		return 0
	}
}

// Empty - записей нет ни в одном хранилище
func (p *BrokerPresence) Empty() bool {
	return p.Primary == nil && p.Partner == nil
}

// ownedBy - все найденные записи принадлежат admin
func (p *BrokerPresence) ownedBy(admin int64) bool {
	if p.Primary != nil && p.Primary.AdminAccountID != admin {
		return false
	}
	if p.Partner != nil && p.Partner.AdminAccountID != admin {
		return false
	}
	return true
}

// DeregisterError - удаление не завершилось во всех хранилищах
type DeregisterError struct {
	BrokerID  string
	Remaining []string // хранилища, где запись осталась
	Err       error
}

func (e *DeregisterError) Error() string {
	return fmt.Sprintf("deregister %s: still present in %s: %v", e.BrokerID, strings.Join(e.Remaining, ", "), e.Err)
}

func (e *DeregisterError) Unwrap() error {
	return e.Err
}

// Registrar записывает broker в два независимых хранилища
//
// Общей транзакции нет, поэтому порядок фиксирован: сначала primary, затем
// partner. Если partner не принял запись, запись в primary удаляется
// компенсирующим удалением с ограниченными повторами. Если и откат не удался,
// фиксируется consistency alert для ручной сверки.
type Registrar struct {
	primary BrokerStoreInterface
	partner BrokerStoreInterface
	cfg     RegistrarConfig
	log     *utils.Logger
}

// NewRegistrar создает регистратор
func NewRegistrar(primary, partner BrokerStoreInterface, cfg RegistrarConfig) *Registrar {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Rollback.MaxAttempts <= 0 {
		cfg.Rollback = retry.RollbackConfig()
	}
	return &Registrar{
		primary: primary,
		partner: partner,
		cfg:     cfg,
		log:     utils.L().WithComponent("registrar"),
	}
}

// Inspect возвращает записи broker id в обоих хранилищах
func (r *Registrar) Inspect(ctx context.Context, brokerID string) (*BrokerPresence, error) {
	primary, err := r.get(ctx, r.primary, brokerID)
	if err != nil {
		return nil, err
	}
	partner, err := r.get(ctx, r.partner, brokerID)
	if err != nil {
		return nil, err
	}
	return &BrokerPresence{Primary: primary, Partner: partner}, nil
}

// CheckAvailable проверяет, что broker id свободен или уже принадлежит admin
func (r *Registrar) CheckAvailable(ctx context.Context, brokerID string, adminAccountID int64) (*BrokerPresence, error) {
	presence, err := r.Inspect(ctx, brokerID)
	if err != nil {
		return nil, newError(CodeBrokerRegistrationFailed, err)
	}
	if !presence.ownedBy(adminAccountID) {
		return nil, newErrorf(CodeBrokerIDTaken, nil, "Broker ID %q is already taken, try a different one", brokerID)
	}
	return presence, nil
}

func (r *Registrar) get(ctx context.Context, store BrokerStoreInterface, brokerID string) (*models.BrokerRecord, error) {
	rec, err := store.Get(ctx, brokerID)
	if errors.Is(err, repository.ErrBrokerNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup in %s store: %w", store.Name(), err)
	}
	return rec, nil
}

// Register записывает broker в оба хранилища с одним индексом
//
// Выполняется до конца независимо от отмены ctx вызывающего: начатая
// запись завершается либо откатывается. Повторный вызов для уже полностью
// зарегистрированного broker - успех без записей.
func (r *Registrar) Register(ctx context.Context, rec *models.BrokerRecord, txHash string) (*RegistrationResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	log := r.log.With(
		utils.AccountID(rec.AdminAccountID),
		utils.BrokerID(rec.BrokerID),
		utils.TxHash(txHash),
	)

	presence, err := r.Inspect(ctx, rec.BrokerID)
	if err != nil {
		return nil, newError(CodeBrokerRegistrationFailed, err)
	}
	if !presence.ownedBy(rec.AdminAccountID) {
		return nil, newErrorf(CodeBrokerIDTaken, nil, "Broker ID %q is already taken, try a different one", rec.BrokerID)
	}

	primary, partner := presence.Primary, presence.Partner
	switch {
	case primary != nil && partner != nil:
		if primary.BrokerIndex != partner.BrokerIndex {
			r.consistencyAlert(log, rec, "", "broker index differs between stores",
				fmt.Errorf("primary index %d, partner index %d", primary.BrokerIndex, partner.BrokerIndex))
			return nil, newError(CodeProvisioningInconsistent, nil)
		}
		log.Info("broker already registered", utils.BrokerIndex(primary.BrokerIndex))
		return &RegistrationResult{BrokerID: rec.BrokerID, BrokerIndex: primary.BrokerIndex, AlreadyRegistered: true}, nil

	case primary != nil:
		// Предыдущая попытка оборвалась после primary: дописываем partner с тем же индексом
		record := *rec
		record.BrokerIndex = primary.BrokerIndex
		log.Warn("resuming registration, partner store missing", utils.BrokerIndex(record.BrokerIndex))
		if err := r.writePartner(ctx, log, &record, txHash); err != nil {
			return nil, err
		}
		return &RegistrationResult{BrokerID: rec.BrokerID, BrokerIndex: record.BrokerIndex, Resumed: true}, nil

	case partner != nil:
		record := *rec
		record.BrokerIndex = partner.BrokerIndex
		log.Warn("resuming registration, primary store missing", utils.BrokerIndex(record.BrokerIndex))
		if err := r.insert(ctx, r.primary, &record); err != nil {
			log.Error("primary write failed, removing orphaned partner record", utils.Err(err))
			r.compensate(ctx, log, r.partner, &record, txHash)
			return nil, registrationError(err, rec.BrokerID)
		}
		return &RegistrationResult{BrokerID: rec.BrokerID, BrokerIndex: record.BrokerIndex, Resumed: true}, nil
	}

	if err := r.insert(ctx, r.primary, rec); err != nil {
		log.Warn("primary write failed", utils.Store(r.primary.Name()), utils.Err(err))
		return nil, registrationError(err, rec.BrokerID)
	}
	if err := r.writePartner(ctx, log, rec, txHash); err != nil {
		return nil, err
	}

	log.Info("broker registered", utils.BrokerIndex(rec.BrokerIndex))
	return &RegistrationResult{BrokerID: rec.BrokerID, BrokerIndex: rec.BrokerIndex}, nil
}

// writePartner пишет partner; при ошибке откатывает primary
func (r *Registrar) writePartner(ctx context.Context, log *utils.Logger, rec *models.BrokerRecord, txHash string) error {
	// partner хранит только идентичность, комиссии применяет primary
	identity := &models.BrokerRecord{
		BrokerID:       rec.BrokerID,
		BrokerIndex:    rec.BrokerIndex,
		AdminAccountID: rec.AdminAccountID,
	}
	err := r.insert(ctx, r.partner, identity)
	if err == nil {
		return nil
	}

	log.Warn("partner write failed, rolling back primary",
		utils.Store(r.partner.Name()),
		utils.BrokerIndex(rec.BrokerIndex),
		utils.Err(err),
	)
	if !r.compensate(ctx, log, r.primary, rec, txHash) {
		return newError(CodeProvisioningInconsistent, err)
	}
	return registrationError(err, rec.BrokerID)
}

// compensate удаляет запись из store с повторами; false - откат не удался
func (r *Registrar) compensate(ctx context.Context, log *utils.Logger, store BrokerStoreInterface, rec *models.BrokerRecord, txHash string) bool {
	cfg := r.cfg.Rollback
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		log.Warn("rollback attempt failed",
			utils.Store(store.Name()),
			utils.Attempt(attempt),
			utils.Duration("retry_in", delay),
			utils.Err(err),
		)
	}

	err := retry.Do(ctx, func(ctx context.Context) error {
		err := store.Delete(ctx, rec.BrokerID)
		if errors.Is(err, repository.ErrBrokerNotFound) {
			return nil
		}
		return err
	}, cfg)

	if err != nil {
		RegistrarRollbacks.WithLabelValues("failed").Inc()
		RegistrarWrites.WithLabelValues(store.Name(), "delete", "error").Inc()
		r.consistencyAlert(log, rec, store.Name(), "rollback exhausted, broker left in one store", err)
		return false
	}

	RegistrarRollbacks.WithLabelValues("ok").Inc()
	RegistrarWrites.WithLabelValues(store.Name(), "delete", "ok").Inc()
	log.Info("rollback completed", utils.Store(store.Name()))
	return true
}

func (r *Registrar) insert(ctx context.Context, store BrokerStoreInterface, rec *models.BrokerRecord) error {
	err := store.Insert(ctx, rec)
	result := "ok"
	if err != nil {
		result = "error"
	}
	RegistrarWrites.WithLabelValues(store.Name(), "insert", result).Inc()
	return err
}

// consistencyAlert фиксирует рассогласование, требующее ручной сверки
func (r *Registrar) consistencyAlert(log *utils.Logger, rec *models.BrokerRecord, store, msg string, err error) {
	RegistrarConsistencyAlerts.Inc()
	fields := []utils.Field{
		utils.ConsistencyAlert(),
		utils.BrokerIndex(rec.BrokerIndex),
		utils.Err(err),
	}
	if store != "" {
		fields = append(fields, utils.Store(store))
	}
	// Отмена по таймауту отличается от исчерпанных повторов при ручной сверке
	if retry.IsExhausted(err) {
		fields = append(fields, utils.Bool("retries_exhausted", true))
	}
	log.Error(msg, fields...)
}

// registrationError переводит ошибку записи в код
func registrationError(err error, brokerID string) error {
	if errors.Is(err, repository.ErrBrokerExists) {
		return newErrorf(CodeBrokerIDTaken, err, "Broker ID %q is already taken, try a different one", brokerID)
	}
	return newError(CodeBrokerRegistrationFailed, err)
}

// Deregister удаляет broker из обоих хранилищ (partner, затем primary)
//
// Отсутствие записи не ошибка. Если удаление не прошло, *DeregisterError
// перечисляет хранилища, где запись осталась.
func (r *Registrar) Deregister(ctx context.Context, brokerID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.Timeout)
	defer cancel()

	var (
		remaining []string
		errs      []error
	)
	for _, store := range []BrokerStoreInterface{r.partner, r.primary} {
		err := store.Delete(ctx, brokerID)
		switch {
		case err == nil:
			RegistrarWrites.WithLabelValues(store.Name(), "delete", "ok").Inc()
		case errors.Is(err, repository.ErrBrokerNotFound):
		default:
			RegistrarWrites.WithLabelValues(store.Name(), "delete", "error").Inc()
			remaining = append(remaining, store.Name())
			errs = append(errs, err)
		}
	}

	if len(remaining) > 0 {
		r.log.Error("deregister incomplete",
			utils.BrokerID(brokerID),
			utils.Strings("remaining", remaining),
		)
		return &DeregisterError{BrokerID: brokerID, Remaining: remaining, Err: errors.Join(errs...)}
	}

	r.log.Info("broker deregistered", utils.BrokerID(brokerID))
	return nil
}

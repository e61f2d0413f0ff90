package service

import "dexgrad/internal/models"

// ValidTransitions определяет допустимые переходы градуации
//
// Возврата в ungraduated нет: оплата в сети необратима.
var ValidTransitions = map[models.GraduationState][]models.GraduationState{
	models.GraduationStateUngraduated:     {models.GraduationStatePendingApproval},
	models.GraduationStatePendingApproval: {models.GraduationStateApproved}, // решение оператора
	models.GraduationStateApproved:        {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to models.GraduationState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition возвращает INVALID_STATE_TRANSITION для недопустимого перехода
func checkTransition(from, to models.GraduationState) error {
	if CanTransition(from, to) {
		return nil
	}
	return newErrorf(CodeInvalidStateTransition, nil, "cannot move graduation from %s to %s", from, to)
}

// BuildStatus собирает статус градуации аккаунта
//
// claim - потраченный платеж аккаунта (nil, если его нет).
func BuildStatus(account *models.Account, claim *models.GraduationTransaction) *models.GraduationStatus {
	status := &models.GraduationStatus{
		State:             account.GraduationState,
		PreferredBrokerID: account.PreferredBrokerID,
		CurrentBrokerID:   account.BrokerID,
		Approved:          account.GraduationState == models.GraduationStateApproved,
		BrokerIndex:       account.BrokerIndex,
	}
	if claim != nil {
		hash := claim.TxHash
		status.TxHash = &hash
		// Платеж потрачен, а broker так и не создан: нужен retry
		status.NeedsRetry = account.GraduationState == models.GraduationStateUngraduated
	}
	return status
}

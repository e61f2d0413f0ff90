package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики градуации
// ============================================================
//
// Алерты:
// - RegistrarConsistencyAlerts > 0 - хранилища брокеров разошлись,
//   нужна ручная сверка
// - рост outcome="RPC_UNAVAILABLE" - проблемы с узлами сети

// GraduationOutcomes - результаты попыток градуации по коду
// (outcome="success" для успешных)
var GraduationOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dexgrad",
		Subsystem: "graduation",
		Name:      "outcomes_total",
		Help:      "Graduation attempts by outcome code",
	},
	[]string{"operation", "outcome"},
)

// VerificationLatency - время полной проверки платежа
var VerificationLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dexgrad",
		Subsystem: "graduation",
		Name:      "verification_duration_seconds",
		Help:      "Time to verify a graduation payment on chain",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	},
	[]string{"chain"},
)

// RPCLatency - время одного запроса receipt к узлу
var RPCLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dexgrad",
		Subsystem: "chain",
		Name:      "rpc_duration_seconds",
		Help:      "Chain RPC receipt lookup latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	},
	[]string{"chain"},
)

// RegistrarWrites - записи и удаления в хранилищах брокеров
var RegistrarWrites = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dexgrad",
		Subsystem: "registrar",
		Name:      "writes_total",
		Help:      "Broker store operations by store, operation and result",
	},
	[]string{"store", "op", "result"},
)

// RegistrarRollbacks - компенсирующие удаления из основного хранилища
var RegistrarRollbacks = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dexgrad",
		Subsystem: "registrar",
		Name:      "rollbacks_total",
		Help:      "Compensating deletes after partial registration",
	},
	[]string{"result"},
)

// RegistrarConsistencyAlerts - хранилища остались рассогласованными
var RegistrarConsistencyAlerts = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "dexgrad",
		Subsystem: "registrar",
		Name:      "consistency_alerts_total",
		Help:      "Broker stores left diverged, manual reconciliation required",
	},
)

// FeeUpdates - изменения комиссий
var FeeUpdates = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dexgrad",
		Subsystem: "fees",
		Name:      "updates_total",
		Help:      "Fee update attempts by result",
	},
	[]string{"result"},
)

// recordOutcome увеличивает счетчик результата операции
func recordOutcome(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(CodeOf(err))
	}
	GraduationOutcomes.WithLabelValues(operation, outcome).Inc()
}

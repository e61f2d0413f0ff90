package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dexgrad/internal/api/handlers"
	"dexgrad/internal/api/middleware"
	"dexgrad/internal/service"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	GraduationService service.GraduationServiceInterface
	FeeService        service.FeeServiceInterface
	AuthService       service.AuthServiceInterface
	DeployService     service.DeployServiceInterface

	// HealthChecks - проверки зависимостей для /health
	HealthChecks map[string]handlers.HealthCheck

	AllowedOrigins    []string
	AdminUser         string
	AdminPasswordHash string // bcrypt
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /auth/
//	│   ├── POST /nonce - сообщение для подписи
//	│   ├── POST /login - вход подписью кошелька
//	│   ├── POST /logout - завершение сессии (auth)
//	│   └── GET /me - текущий аккаунт (auth)
//	├── /graduation/ (auth)
//	│   ├── POST /verify-transaction - проверка платежа и создание broker
//	│   ├── POST /retry - повтор провижининга
//	│   └── GET /status - состояние градуации
//	├── /fees (auth)
//	│   ├── GET - текущие комиссии
//	│   └── PUT - изменение комиссий
//	├── /dex/ (auth)
//	│   └── POST /deploy - пересборка фронтенда
//	└── /admin/ (basic auth)
//	    ├── POST /accounts/{id}/approve - одобрение broker
//	    └── DELETE /brokers/{brokerId} - удаление broker
//
// /health - проверка зависимостей
// /metrics - prometheus
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. Auth или AdminAuth (только для защищенных маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	// Глобальные middleware (применяются ко всем маршрутам)
	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.AllowedOrigins))

	api := router.PathPrefix("/api/v1").Subrouter()

	// Auth routes
	if deps.AuthService != nil {
		authHandler := handlers.NewAuthHandler(deps.AuthService)
		requireAuth := middleware.Auth(deps.AuthService)

		api.HandleFunc("/auth/nonce", authHandler.Nonce).Methods("POST", "OPTIONS")
		api.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")
		api.HandleFunc("/auth/logout", authHandler.Logout).Methods("POST", "OPTIONS")
		api.Handle("/auth/me", requireAuth(http.HandlerFunc(authHandler.Me))).Methods("GET", "OPTIONS")

		// Защищенные маршруты аккаунта
		protected := api.NewRoute().Subrouter()
		protected.Use(requireAuth)

		if deps.GraduationService != nil {
			graduationHandler := handlers.NewGraduationHandler(deps.GraduationService)
			protected.HandleFunc("/graduation/verify-transaction", graduationHandler.VerifyTransaction).Methods("POST", "OPTIONS")
			protected.HandleFunc("/graduation/retry", graduationHandler.Retry).Methods("POST", "OPTIONS")
			protected.HandleFunc("/graduation/status", graduationHandler.GetStatus).Methods("GET", "OPTIONS")
		}

		if deps.FeeService != nil {
			feeHandler := handlers.NewFeeHandler(deps.FeeService)
			protected.HandleFunc("/fees", feeHandler.GetFees).Methods("GET", "OPTIONS")
			protected.HandleFunc("/fees", feeHandler.UpdateFees).Methods("PUT", "OPTIONS")
		}

		if deps.DeployService != nil {
			deployHandler := handlers.NewDeployHandler(deps.DeployService)
			protected.HandleFunc("/dex/deploy", deployHandler.RequestDeploy).Methods("POST", "OPTIONS")
		}
	}

	// Admin routes
	if deps.GraduationService != nil {
		adminHandler := handlers.NewAdminHandler(deps.GraduationService)
		admin := api.PathPrefix("/admin").Subrouter()
		admin.Use(middleware.AdminAuth(deps.AdminUser, deps.AdminPasswordHash))

		admin.HandleFunc("/accounts/{id:[0-9]+}/approve", adminHandler.ApproveAccount).Methods("POST")
		admin.HandleFunc("/brokers/{brokerId}", adminHandler.DeregisterBroker).Methods("DELETE")
	}

	// Health check и метрики
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks)
	router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

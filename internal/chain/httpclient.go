// Package chain - доступ к EVM узлам через JSON-RPC.
package chain

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// HTTPClientConfig содержит настройки транспорта RPC клиента
type HTTPClientConfig struct {
	ConnectTimeout        time.Duration // таймаут установки TCP соединения
	ResponseHeaderTimeout time.Duration // ожидание заголовков ответа узла
	TLSHandshakeTimeout   time.Duration

	// Connection pooling: один пул на все сети
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	KeepAliveInterval time.Duration
}

// DefaultHTTPClientConfig возвращает конфигурацию по умолчанию
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout:        5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		KeepAliveInterval: 30 * time.Second,
	}
}

// NewHTTPClient создает http.Client для RPC узлов
//
// Общего таймаута у клиента нет: верхнюю границу задает context запроса.
func NewHTTPClient(config HTTPClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			// Не ждем соединения дольше, чем осталось до дедлайна запроса
			if deadline, ok := ctx.Deadline(); ok {
				if remaining := time.Until(deadline); remaining < config.ConnectTimeout {
					d := &net.Dialer{Timeout: remaining, KeepAlive: config.KeepAliveInterval}
					return d.DialContext(ctx, network, addr)
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
	}

	return &http.Client{Transport: transport}
}

// CloseIdle закрывает idle соединения клиента (graceful shutdown)
func CloseIdle(client *http.Client) {
	if transport, ok := client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

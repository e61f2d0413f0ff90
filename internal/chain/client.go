package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"

	"dexgrad/internal/config"
	"dexgrad/internal/models"
	"dexgrad/pkg/retry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxResponseSize - предел тела ответа узла (receipt с большим числом логов)
const maxResponseSize = 8 << 20

// ErrEndpointNotConfigured - для сети не задан RPC URL
var ErrEndpointNotConfigured = errors.New("rpc endpoint not configured")

// rpcInvalidParams - код JSON-RPC "invalid params"
const rpcInvalidParams = -32602

// UnavailableError - узел не ответил или ответил ошибкой
//
// Повторяемая: отсутствие ответа не означает отсутствие транзакции.
// Исключение - отказ узла в параметрах запроса, он возвращается сразу.
type UnavailableError struct {
	Chain models.Chain
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s rpc unavailable: %v", e.Chain, e.Err)
}

func (e *UnavailableError) Unwrap() error   { return e.Err }
func (e *UnavailableError) Retryable() bool { return true }

// RPCError - объект error из ответа JSON-RPC
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Log - запись лога из receipt
type Log struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Receipt - квитанция транзакции (eth_getTransactionReceipt)
type Receipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	From            string `json:"from"`
	To              string `json:"to"`
	Status          string `json:"status"`
	Logs            []Log  `json:"logs"`
}

// Succeeded - статус 0x1
func (r *Receipt) Succeeded() bool {
	return r.Status == "0x1"
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      uint64              `json:"id"`
	Result  jsoniter.RawMessage `json:"result"`
	Error   *RPCError           `json:"error"`
}

type endpoint struct {
	url     string
	limiter *rate.Limiter
}

// Client - JSON-RPC клиент для поддерживаемых сетей
//
// У каждой сети свой rate limiter, чтобы всплеск запросов не упирался
// в лимиты провайдера. Таймаут вызова задает вызывающий через context.
type Client struct {
	http      *http.Client
	endpoints map[models.Chain]*endpoint
	retry     retry.Config
	nextID    atomic.Uint64
}

// NewClient создает клиент по конфигурации сетей
//
// Сети без RPC URL пропускаются: запрос к ним вернет ErrEndpointNotConfigured.
func NewClient(chains map[models.Chain]config.ChainConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(DefaultHTTPClientConfig())
	}

	endpoints := make(map[models.Chain]*endpoint, len(chains))
	for chain, cc := range chains {
		if cc.RPCURL == "" {
			continue
		}
		limit := rate.Inf
		if cc.RPCRateLimit > 0 {
			limit = rate.Limit(cc.RPCRateLimit)
		}
		burst := cc.RPCBurst
		if burst <= 0 {
			burst = 1
		}
		endpoints[chain] = &endpoint{
			url:     cc.RPCURL,
			limiter: rate.NewLimiter(limit, burst),
		}
	}

	return &Client{
		http:      httpClient,
		endpoints: endpoints,
		retry:     retry.RPCConfig(),
	}
}

// HasEndpoint проверяет, настроен ли RPC для сети
func (c *Client) HasEndpoint(chain models.Chain) bool {
	_, ok := c.endpoints[chain]
	return ok
}

// TransactionReceipt возвращает receipt транзакции
//
// (nil, nil) - узел не знает транзакцию (result = null).
// Сбои транспорта, таймауты и ошибки узла возвращаются как *UnavailableError.
func (c *Client) TransactionReceipt(ctx context.Context, chain models.Chain, txHash string) (*Receipt, error) {
	return call[*Receipt](ctx, c, chain, "eth_getTransactionReceipt", []any{txHash})
}

// call выполняет JSON-RPC вызов с повторами на временных ошибках
func call[T any](ctx context.Context, c *Client, chain models.Chain, method string, params []any) (T, error) {
	var zero T
	ep, ok := c.endpoints[chain]
	if !ok {
		return zero, fmt.Errorf("%s: %w", chain, ErrEndpointNotConfigured)
	}

	result, err := retry.DoWithResult(ctx, func(ctx context.Context) (T, error) {
		var out T
		err := c.callOnce(ctx, chain, ep, method, params, &out)
		return out, err
	}, c.retry)
	if err == nil {
		return result, nil
	}

	var exhausted *retry.ExhaustedError
	var permanent *retry.PermanentError
	switch {
	case errors.As(err, &exhausted):
		err = exhausted.Err
	case errors.As(err, &permanent):
		err = permanent.Err
	}
	return zero, err
}

func (c *Client) callOnce(ctx context.Context, chain models.Chain, ep *endpoint, method string, params []any, out any) error {
	unavailable := func(err error) error {
		return &UnavailableError{Chain: chain, Err: err}
	}

	if err := ep.limiter.Wait(ctx); err != nil {
		return unavailable(fmt.Errorf("rate limiter: %w", err))
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return unavailable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return unavailable(fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return unavailable(fmt.Errorf("http %d after %s", resp.StatusCode, time.Since(start).Round(time.Millisecond)))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return unavailable(fmt.Errorf("decode response: %w", err))
	}
	if rpcResp.Error != nil {
		if rpcResp.Error.Code == rpcInvalidParams {
			return retry.Permanent(unavailable(rpcResp.Error))
		}
		return unavailable(rpcResp.Error)
	}

	if len(rpcResp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return unavailable(fmt.Errorf("decode %s result: %w", method, err))
	}
	return nil
}

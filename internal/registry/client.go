// Package registry - клиент публичного реестра broker id торговой инфраструктуры.
package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/singleflight"

	"dexgrad/internal/config"
	"dexgrad/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	cacheKey        = "broker_ids"
	maxResponseSize = 4 << 20
)

// listResponse - ответ реестра
type listResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Rows []struct {
			BrokerID string `json:"broker_id"`
		} `json:"rows"`
	} `json:"data"`
}

// Client - кеширующий клиент реестра
//
// Список целиком кешируется на CacheTTL. Параллельные промахи кеша
// схлопываются в один HTTP запрос.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
	cache   *expirable.LRU[string, map[string]struct{}]
	group   singleflight.Group
	log     *utils.Logger
}

// NewClient создает клиент. Пустой URL отключает проверку по реестру.
func NewClient(cfg config.RegistryConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		url:     cfg.URL,
		timeout: timeout,
		http:    httpClient,
		cache:   expirable.NewLRU[string, map[string]struct{}](1, nil, ttl),
		log:     utils.L().WithComponent("registry"),
	}
}

// Enabled - задан ли URL реестра
func (c *Client) Enabled() bool {
	return c.url != ""
}

// ListBrokerIDs возвращает все зарегистрированные broker id (lowercase)
func (c *Client) ListBrokerIDs(ctx context.Context) ([]string, error) {
	set, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

// Contains проверяет, занят ли broker id в реестре (без учета регистра)
func (c *Client) Contains(ctx context.Context, brokerID string) (bool, error) {
	set, err := c.load(ctx)
	if err != nil {
		return false, err
	}
	_, ok := set[strings.ToLower(brokerID)]
	return ok, nil
}

// Invalidate сбрасывает кеш (после регистрации нового брокера)
func (c *Client) Invalidate() {
	c.cache.Purge()
}

func (c *Client) load(ctx context.Context) (map[string]struct{}, error) {
	if !c.Enabled() {
		return map[string]struct{}{}, nil
	}
	if set, ok := c.cache.Get(cacheKey); ok {
		return set, nil
	}

	ch := c.group.DoChan(cacheKey, func() (any, error) {
		if set, ok := c.cache.Get(cacheKey); ok {
			return set, nil
		}
		// Запрос общий для всех ожидающих: отмена одного вызывающего его не прерывает
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()

		set, err := c.fetch(fetchCtx)
		if err != nil {
			return nil, err
		}
		c.cache.Add(cacheKey, set)
		c.log.Debug("registry refreshed", utils.Int("broker_ids", len(set)))
		return set, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]struct{}), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) fetch(ctx context.Context) (map[string]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned http %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read registry response: %w", err)
	}

	var body listResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("registry returned success=false")
	}

	set := make(map[string]struct{}, len(body.Data.Rows))
	for _, row := range body.Data.Rows {
		if row.BrokerID != "" {
			set[strings.ToLower(row.BrokerID)] = struct{}{}
		}
	}
	return set, nil
}

// Package backend предоставляет GraphQL-клиент удалённого сервиса кошелька.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConfigured возвращается, если адрес сервиса не задан.
	ErrNotConfigured = errors.New("backend client not configured")
	// ErrUnauthorized возвращается, если сервер отклонил учётные данные.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrGraphQL возвращается, если ответ содержит ошибки GraphQL.
	ErrGraphQL = errors.New("graphql error")
)

// Client инкапсулирует HTTP-взаимодействие с сервисом кошелька.
// Заголовок авторизации, установленный через SetAuthToken, добавляется ко всем последующим запросам.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client
	limiter    *rate.Limiter

	mu            sync.RWMutex
	authorization string
}

// NewClient создаёт клиент для сервиса по указанному адресу.
func NewClient(baseURL string) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	rc.HTTPClient.Timeout = 5 * time.Second

	return &Client{
		baseURL:    base,
		httpClient: rc,
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
	}
}

// SetAuthToken устанавливает значение заголовка Authorization. Пустая строка удаляет заголовок.
func (c *Client) SetAuthToken(bearer string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authorization = bearer
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// do выполняет запрос и декодирует поле data.<field> в out.
func (c *Client) do(ctx context.Context, query string, vars map[string]any, field string, out any) error {
	if c == nil || c.baseURL == "" {
		return ErrNotConfigured
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.RLock()
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}
	c.mu.RUnlock()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if msg := gjson.GetBytes(data, "errors.0.message"); msg.Exists() {
		if code := gjson.GetBytes(data, "errors.0.extensions.code"); code.String() == "UNAUTHENTICATED" {
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg.String())
		}
		return fmt.Errorf("%w: %s", ErrGraphQL, msg.String())
	}

	result := gjson.GetBytes(data, "data."+field)
	if !result.Exists() {
		return fmt.Errorf("%w: missing data.%s", ErrGraphQL, field)
	}

	if err := json.Unmarshal([]byte(result.Raw), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

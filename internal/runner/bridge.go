package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/shaiso/Formata/internal/machine"
)

const defaultBridgeTimeout = 60 * time.Second

// BridgeExecutor — executor, ходящий по HTTP в browser-agent sidecar.
//
// Сам runner не трогает браузер: всю работу с DOM выполняет отдельный
// процесс (bridge), а runner шлёт ему действия и читает результаты.
// Таймаут конкретного действия задаёт state machine через context.
//
// Протокол: POST {base}/v1/actions
//
//	Request:  {"platform": ..., "job_ref": ..., "action": {"kind": ..., "selector_hint": ..., "value": ...}}
//	Response: {"success": ..., "error": ..., "signal": ..., "value": ..., "more_steps": ...}
type BridgeExecutor struct {
	baseURL string
	client  *http.Client
}

// bridgeRequest — тело запроса к bridge.
type bridgeRequest struct {
	Platform string         `json:"platform,omitempty"`
	JobRef   string         `json:"job_ref,omitempty"`
	Action   machine.Action `json:"action"`
}

// NewBridgeExecutor создаёт BridgeExecutor.
// client может быть nil — тогда используется клиент с общим таймаутом.
func NewBridgeExecutor(baseURL string, client *http.Client) *BridgeExecutor {
	if client == nil {
		client = &http.Client{Timeout: defaultBridgeTimeout}
	}
	return &BridgeExecutor{
		baseURL: baseURL,
		client:  client,
	}
}

// Bind возвращает executor, помечающий действия контекстом заявки.
// Bridge держит по сессии браузера на заявку и маршрутизирует действия
// по паре platform/job_ref.
func (e *BridgeExecutor) Bind(platform, jobRef string) machine.Executor {
	return &boundExecutor{bridge: e, platform: platform, jobRef: jobRef}
}

// boundExecutor — BridgeExecutor, привязанный к одной заявке.
type boundExecutor struct {
	bridge   *BridgeExecutor
	platform string
	jobRef   string
}

// Execute отправляет действие bridge'у и разбирает результат.
func (b *boundExecutor) Execute(ctx context.Context, action machine.Action) (*machine.ActionResult, error) {
	e := b.bridge
	body, err := json.Marshal(bridgeRequest{
		Platform: b.platform,
		JobRef:   b.jobRef,
		Action:   action,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal action: %v", ErrBridgeRequest, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/actions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrBridgeRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrBridgeRequest, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrBridgeRequest, resp.StatusCode, truncate(string(respBody), 200))
	}

	var result machine.ActionResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrBridgeRequest, err)
	}

	return &result, nil
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// BridgeURL возвращает адрес bridge из окружения.
func BridgeURL() string {
	if url := os.Getenv("BRIDGE_URL"); url != "" {
		return url
	}
	return "http://localhost:8700"
}

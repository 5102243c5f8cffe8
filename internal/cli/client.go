package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ApplicationResponse — заявка из API.
type ApplicationResponse struct {
	ID         string           `json:"id"`
	Platform   string           `json:"platform"`
	JobRef     string           `json:"job_ref"`
	ProfileID  string           `json:"profile_id"`
	State      string           `json:"state"`
	StepIndex  int              `json:"step_index"`
	History    []map[string]any `json:"history,omitempty"`
	ErrorLog   []map[string]any `json:"error_log,omitempty"`
	Outcome    string           `json:"outcome,omitempty"`
	Deferred   bool             `json:"deferred"`
	StartedAt  string           `json:"started_at,omitempty"`
	FinishedAt string           `json:"finished_at,omitempty"`
	CreatedAt  string           `json:"created_at"`
}

// ProgressResponse — прогресс заявки из API.
type ProgressResponse struct {
	ApplicationID string           `json:"application_id"`
	State         string           `json:"state"`
	Progress      ProgressSnapshot `json:"progress"`
}

// ProgressSnapshot — снимок прогресса.
type ProgressSnapshot struct {
	Phase           string            `json:"phase"`
	StepIndex       int               `json:"step_index"`
	TotalSteps      int               `json:"total_steps"`
	Percentage      float64           `json:"percentage"`
	PhaseTimestamps map[string]string `json:"phase_timestamps,omitempty"`
}

// WindowResponse — окно отправки из API.
type WindowResponse struct {
	ID          string `json:"id"`
	ProfileID   string `json:"profile_id"`
	Platform    string `json:"platform,omitempty"`
	Name        string `json:"name,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Enabled     bool   `json:"enabled"`
	NextDueAt   string `json:"next_due_at,omitempty"`
	LastRunAt   string `json:"last_run_at,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// TargetResetResponse — подтверждение сброса цели из API.
type TargetResetResponse struct {
	Platform string `json:"platform"`
	Reset    bool   `json:"reset"`
}

// --- Request types ---

// CreateApplicationRequest — создание заявки.
type CreateApplicationRequest struct {
	Platform  string          `json:"platform"`
	JobRef    string          `json:"job_ref"`
	ProfileID string          `json:"profile_id"`
	Config    json.RawMessage `json:"config"`
	Options   json.RawMessage `json:"options,omitempty"`
	Deferred  bool            `json:"deferred,omitempty"`
}

// CreateWindowRequest — создание окна отправки.
type CreateWindowRequest struct {
	ProfileID   string `json:"profile_id"`
	Platform    string `json:"platform,omitempty"`
	Name        string `json:"name,omitempty"`
	CronExpr    string `json:"cron_expr,omitempty"`
	IntervalSec int    `json:"interval_sec,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	BatchSize   int    `json:"batch_size,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// UpdateWindowRequest — обновление окна отправки.
type UpdateWindowRequest struct {
	Name        *string `json:"name,omitempty"`
	CronExpr    *string `json:"cron_expr,omitempty"`
	IntervalSec *int    `json:"interval_sec,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
	BatchSize   *int    `json:"batch_size,omitempty"`
}

// ListApplicationsOpts — параметры фильтрации заявок.
type ListApplicationsOpts struct {
	ProfileID string
	Platform  string
	State     string
	Limit     int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Formata API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Applications ---

// ListApplications возвращает список заявок с фильтрацией.
func (c *Client) ListApplications(opts ListApplicationsOpts) ([]ApplicationResponse, error) {
	params := url.Values{}
	if opts.ProfileID != "" {
		params.Set("profile_id", opts.ProfileID)
	}
	if opts.Platform != "" {
		params.Set("platform", opts.Platform)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var apps []ApplicationResponse
	err := c.list("/api/v1/applications", params, &apps)
	return apps, err
}

// CreateApplication создаёт заявку.
func (c *Client) CreateApplication(req CreateApplicationRequest) (*ApplicationResponse, error) {
	var app ApplicationResponse
	err := c.post("/api/v1/applications", req, &app)
	return &app, err
}

// GetApplication возвращает заявку по ID.
func (c *Client) GetApplication(id string) (*ApplicationResponse, error) {
	var app ApplicationResponse
	err := c.get("/api/v1/applications/"+id, &app)
	return &app, err
}

// CancelApplication запрашивает отмену заявки.
func (c *Client) CancelApplication(id string) (*ApplicationResponse, error) {
	var app ApplicationResponse
	err := c.post("/api/v1/applications/"+id+"/cancel", nil, &app)
	return &app, err
}

// GetProgress возвращает прогресс заявки.
func (c *Client) GetProgress(id string) (*ProgressResponse, error) {
	var progress ProgressResponse
	err := c.get("/api/v1/applications/"+id+"/progress", &progress)
	return &progress, err
}

// --- Submission windows ---

// ListWindows возвращает окна отправки. Если profileID не пустой — фильтрует.
func (c *Client) ListWindows(profileID string) ([]WindowResponse, error) {
	params := url.Values{}
	if profileID != "" {
		params.Set("profile_id", profileID)
	}

	var windows []WindowResponse
	err := c.list("/api/v1/submission-windows", params, &windows)
	return windows, err
}

// CreateWindow создаёт окно отправки.
func (c *Client) CreateWindow(req CreateWindowRequest) (*WindowResponse, error) {
	var window WindowResponse
	err := c.post("/api/v1/submission-windows", req, &window)
	return &window, err
}

// GetWindow возвращает окно отправки по ID.
func (c *Client) GetWindow(id string) (*WindowResponse, error) {
	var window WindowResponse
	err := c.get("/api/v1/submission-windows/"+id, &window)
	return &window, err
}

// UpdateWindow обновляет окно отправки.
func (c *Client) UpdateWindow(id string, req UpdateWindowRequest) (*WindowResponse, error) {
	var window WindowResponse
	err := c.put("/api/v1/submission-windows/"+id, req, &window)
	return &window, err
}

// DeleteWindow удаляет окно отправки.
func (c *Client) DeleteWindow(id string) error {
	return c.delete("/api/v1/submission-windows/" + id)
}

// EnableWindow включает окно отправки.
func (c *Client) EnableWindow(id string) (*WindowResponse, error) {
	var window WindowResponse
	body := map[string]bool{"enabled": true}
	err := c.put("/api/v1/submission-windows/"+id+"/enabled", body, &window)
	return &window, err
}

// DisableWindow выключает окно отправки.
func (c *Client) DisableWindow(id string) (*WindowResponse, error) {
	var window WindowResponse
	body := map[string]bool{"enabled": false}
	err := c.put("/api/v1/submission-windows/"+id+"/enabled", body, &window)
	return &window, err
}

// --- Targets ---

// ResetTarget сбрасывает адаптивное состояние цели.
func (c *Client) ResetTarget(platform string) (*TargetResetResponse, error) {
	var reset TargetResetResponse
	err := c.post("/api/v1/targets/"+platform+"/reset", nil, &reset)
	return &reset, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}

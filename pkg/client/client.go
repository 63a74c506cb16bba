package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/elsanchez/resfetch/internal/domain"
)

// GetDefaultSocketPath retorna el path del socket usando XDG_RUNTIME_DIR
func GetDefaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		// Fallback: construir con UID
		runtimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}

	return filepath.Join(runtimeDir, "resfetch.sock")
}

// Client representa un cliente del daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient crea un cliente con socket path personalizado
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = GetDefaultSocketPath()
	}
	return &Client{socketPath: socketPath, timeout: 30 * time.Second}
}

// NewDefaultClient crea un cliente con el socket path por defecto
func NewDefaultClient() *Client {
	return NewClient("")
}

// Request representa una petición al daemon
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Response representa una respuesta del daemon
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Send envía una petición al daemon y retorna la respuesta
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w (is resfetchd running?)", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// call envía action con payload y decodifica Data en out
func (c *Client) call(ctx context.Context, action string, payload interface{}, out interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		raw = data
	}

	resp, err := c.Send(ctx, &Request{Action: action, Payload: raw})
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("%s failed: %s", action, resp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Ping verifica que el daemon responde
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// AddResult es la respuesta del daemon al encolar objetivos
type AddResult struct {
	RunID string  `json:"run_id"`
	IDs   []int64 `json:"ids"`
	Count int     `json:"count"`
}

// Add encola objetivos y URLs de página bajo un nuevo run
func (c *Client) Add(ctx context.Context, targets []domain.TargetSpec, pageURLs []string) (*AddResult, error) {
	payload := map[string]interface{}{
		"targets":   targets,
		"page_urls": pageURLs,
	}

	var result AddResult
	if err := c.call(ctx, "add", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status obtiene un objetivo encolado con su informe
func (c *Client) Status(ctx context.Context, id int64) (*domain.Submission, error) {
	var sub domain.Submission
	if err := c.call(ctx, "status", map[string]int64{"id": id}, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// List lista los objetivos recientes, o los de un run si runID no es vacío
func (c *Client) List(ctx context.Context, limit int, runID string) ([]*domain.Submission, error) {
	payload := map[string]interface{}{"limit": limit}
	if runID != "" {
		payload["run_id"] = runID
	}

	var result struct {
		Submissions []*domain.Submission `json:"submissions"`
	}
	if err := c.call(ctx, "list", payload, &result); err != nil {
		return nil, err
	}
	return result.Submissions, nil
}

// RunReport son los resultados de un run agregados por objetivo
type RunReport struct {
	RunID    string                       `json:"run_id"`
	Pending  int                          `json:"pending"`
	Results  map[string]domain.TaskResult `json:"results"`
	Outcomes map[domain.Outcome]int       `json:"outcomes"`
}

// Report obtiene el informe agregado de un run
func (c *Client) Report(ctx context.Context, runID string) (*RunReport, error) {
	var report RunReport
	if err := c.call(ctx, "report", map[string]string{"run_id": runID}, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// Stats obtiene las estadísticas de la cola
func (c *Client) Stats(ctx context.Context) (map[string]int, error) {
	var stats map[string]int
	if err := c.call(ctx, "stats", nil, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

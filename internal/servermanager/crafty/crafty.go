// Package crafty drives a backend server hosted under Crafty Controller,
// via its REST API's server action and stats endpoints.
package crafty

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"go.wardproxy.dev/ward/internal/servermanager"
)

const requestTimeout = 10 * time.Second

// Manager calls a Crafty Controller instance's API for one server.
type Manager struct {
	panelURL string
	apiToken string
	serverID string

	client *fasthttp.Client
}

var _ servermanager.Manager = (*Manager)(nil)

func init() {
	servermanager.RegisterProvider(servermanager.KindCrafty, func(opts servermanager.Options) (servermanager.Manager, error) {
		return New(opts.PanelURL, opts.APIKey, opts.ServerID), nil
	})
}

// New builds a Crafty-backed manager. panelURL is Crafty's base URL,
// apiToken a bearer token, serverID the target server's UUID.
func New(panelURL, apiToken, serverID string) *Manager {
	return &Manager{
		panelURL: panelURL,
		apiToken: apiToken,
		serverID: serverID,
		client:   &fasthttp.Client{},
	}
}

type statsResponse struct {
	Data struct {
		Running bool `json:"running"`
		Crashed bool `json:"crashed"`
		Updating bool `json:"updating"`
	} `json:"data"`
}

func (m *Manager) GetStatus(ctx context.Context) (servermanager.Status, error) {
	body, err := m.do(ctx, fasthttp.MethodGet, "/api/v2/servers/"+m.serverID+"/stats", nil)
	if err != nil {
		return servermanager.StatusUnknown, err
	}
	var resp statsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return servermanager.StatusUnknown, fmt.Errorf("crafty: decode stats: %w", err)
	}
	switch {
	case resp.Data.Crashed:
		return servermanager.StatusCrashed, nil
	case resp.Data.Updating:
		return servermanager.StatusStarting, nil
	case resp.Data.Running:
		return servermanager.StatusRunning, nil
	default:
		return servermanager.StatusStopped, nil
	}
}

func (m *Manager) Start(ctx context.Context) error   { return m.action(ctx, "start_server") }
func (m *Manager) Stop(ctx context.Context) error    { return m.action(ctx, "stop_server") }
func (m *Manager) Restart(ctx context.Context) error { return m.action(ctx, "restart_server") }

func (m *Manager) action(ctx context.Context, action string) error {
	_, err := m.do(ctx, fasthttp.MethodPost, "/api/v2/servers/"+m.serverID+"/action/"+action, nil)
	return err
}

func (m *Manager) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.panelURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+m.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(requestTimeout)
	}

	if err := m.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("crafty: request %s %s: %w", method, path, err)
	}
	if resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("crafty: %s %s returned status %d", method, path, resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}

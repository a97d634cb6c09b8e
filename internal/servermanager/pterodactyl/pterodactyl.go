// Package pterodactyl drives a backend server hosted on a Pterodactyl
// panel, via its client API's power and resources endpoints.
package pterodactyl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"go.wardproxy.dev/ward/internal/servermanager"
)

const requestTimeout = 10 * time.Second

// Manager calls a Pterodactyl panel's client API for one server.
type Manager struct {
	panelURL string
	apiKey   string
	serverID string

	client *fasthttp.Client
}

var _ servermanager.Manager = (*Manager)(nil)

func init() {
	servermanager.RegisterProvider(servermanager.KindPterodactyl, func(opts servermanager.Options) (servermanager.Manager, error) {
		return New(opts.PanelURL, opts.APIKey, opts.ServerID), nil
	})
}

// New builds a Pterodactyl-backed manager. panelURL is the panel's base
// URL (e.g. "https://panel.example.com"), apiKey a client API key scoped
// to serverID.
func New(panelURL, apiKey, serverID string) *Manager {
	return &Manager{
		panelURL: panelURL,
		apiKey:   apiKey,
		serverID: serverID,
		client:   &fasthttp.Client{},
	}
}

type resourcesResponse struct {
	Attributes struct {
		CurrentState string `json:"current_state"`
	} `json:"attributes"`
}

func (m *Manager) GetStatus(ctx context.Context) (servermanager.Status, error) {
	body, err := m.do(ctx, fasthttp.MethodGet, "/api/client/servers/"+m.serverID+"/resources", nil)
	if err != nil {
		return servermanager.StatusUnknown, err
	}
	var resp resourcesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return servermanager.StatusUnknown, fmt.Errorf("pterodactyl: decode resources: %w", err)
	}
	return mapState(resp.Attributes.CurrentState), nil
}

func mapState(state string) servermanager.Status {
	switch state {
	case "running":
		return servermanager.StatusRunning
	case "starting":
		return servermanager.StatusStarting
	case "stopping":
		return servermanager.StatusStopping
	case "offline":
		return servermanager.StatusStopped
	default:
		return servermanager.StatusUnknown
	}
}

func (m *Manager) Start(ctx context.Context) error   { return m.power(ctx, "start") }
func (m *Manager) Stop(ctx context.Context) error    { return m.power(ctx, "stop") }
func (m *Manager) Restart(ctx context.Context) error { return m.power(ctx, "restart") }

func (m *Manager) power(ctx context.Context, signal string) error {
	payload, err := json.Marshal(map[string]string{"signal": signal})
	if err != nil {
		return err
	}
	_, err = m.do(ctx, fasthttp.MethodPost, "/api/client/servers/"+m.serverID+"/power", payload)
	return err
}

func (m *Manager) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(m.panelURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
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
		return nil, fmt.Errorf("pterodactyl: request %s %s: %w", method, path, err)
	}
	if resp.StatusCode() >= 300 {
		return nil, fmt.Errorf("pterodactyl: %s %s returned status %d", method, path, resp.StatusCode())
	}
	return append([]byte(nil), resp.Body()...), nil
}

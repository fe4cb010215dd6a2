package dashboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mmonastyrskiy/HeavenGate/pkg/log"
)

const (
	// DefaultHost is the dashboard's default bind address.
	DefaultHost = "127.0.0.1"
	// DefaultPort is the dashboard's default listen port.
	DefaultPort = 8081

	requestTimeout = 30 * time.Second
)

// Notifier is the narrow interface the proxy depends on, so tests can
// substitute a fake without standing up an HTTP server.
type Notifier interface {
	NotifyUserRegistered(clientIP, serverID string, isMalicious bool)
}

// userRegisteredPayload mirrors the JSON body the original dashboard
// API call builds by hand: {ClientIP, Path, IsMalicious, Timestamp}.
type userRegisteredPayload struct {
	ClientIP    string `json:"ClientIP"`
	Path        string `json:"Path"`
	IsMalicious bool   `json:"IsMalicious"`
	Timestamp   string `json:"Timestamp"`
}

// Client is a fire-and-forget HTTP notifier for the external
// dashboard process. A non-2xx response or network error is logged
// and otherwise ignored — the proxy's data plane never blocks or fails
// on the dashboard's behalf.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client pointed at http://{host}:{port}. An empty
// host or zero port fall back to the package defaults.
func New(host string, port int) *Client {
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d", host, port),
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// NotifyUserRegistered posts the routing decision to the dashboard in
// a detached goroutine; callers never block on it.
func (c *Client) NotifyUserRegistered(clientIP, serverID string, isMalicious bool) {
	go c.send(clientIP, serverID, isMalicious)
}

func (c *Client) send(clientIP, serverID string, isMalicious bool) {
	logger := log.WithComponent("dashboard")

	payload := userRegisteredPayload{
		ClientIP:    clientIP,
		Path:        serverID,
		IsMalicious: isMalicious,
		Timestamp:   time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to marshal dashboard payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/user_registered", bytes.NewReader(body))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to build dashboard request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("error connecting to the dashboard")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn().Int("status", resp.StatusCode).Msg("dashboard returned non-2xx response")
	}
}

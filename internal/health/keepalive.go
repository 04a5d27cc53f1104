package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	logx "fleetbot/pkg/logx"
)

// DefaultKeepAliveEvery matches the idle window of free hosting tiers.
const DefaultKeepAliveEvery = 2 * time.Minute

// Pinger requests <base>/health so the host sees regular inbound traffic.
type Pinger struct {
	url    string
	client *http.Client
	log    logx.Logger
}

func NewPinger(baseURL string, log logx.Logger) *Pinger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pinger{
		url:    strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/health",
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

func (p *Pinger) URL() string { return p.url }

// Ping performs one request and returns the server timestamp.
func (p *Pinger) Ping(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("keepalive: status %d", resp.StatusCode)
	}
	var v healthView
	if err := json.Unmarshal(body, &v); err != nil {
		return "", fmt.Errorf("keepalive: decode: %w", err)
	}
	return v.Timestamp, nil
}

// Run is the interval job: it pings once and logs the outcome.
func (p *Pinger) Run(ctx context.Context) {
	ts, err := p.Ping(ctx)
	if err != nil {
		p.log.Warn("keepalive ping failed", logx.String("url", p.url), logx.Err(err))
		return
	}
	p.log.Debug("keepalive ping ok", logx.String("timestamp", ts))
}

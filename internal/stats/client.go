package stats

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "fleetbot/pkg/logx"
)

const (
	maxBodyBytes = 4 << 20
	maxLogBody   = 2000
)

// Config points the client at the statistics API.
type Config struct {
	BaseURL     string
	TopPath     string // must contain "{period}"
	WeekPath    string
	MonthlyPath string // empty skips the monthly bonus request
	Timeout     time.Duration
}

// HTTPDoer is the subset of *http.Client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches and merges leaderboards. It never retries and never caches.
type Client struct {
	cfg  Config
	http HTTPDoer
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// SetHTTPClient replaces the HTTP transport (tests).
func (c *Client) SetHTTPClient(d HTTPDoer) { c.http = d }

type endpoint int

const (
	epTop endpoint = iota
	epWeek
	epMonthly
)

func (e endpoint) String() string {
	switch e {
	case epTop:
		return "top"
	case epWeek:
		return "week"
	default:
		return "monthly"
	}
}

type call struct {
	ep  endpoint
	url string
}

type outcome struct {
	status int
	body   []byte
	err    error
}

// plan lists the requests a period needs. A week report's top list already
// carries the weekly bonus sum, so the week endpoint is not requested twice.
func (c *Client) plan(p Period) []call {
	calls := []call{{ep: epTop, url: c.cfg.BaseURL + strings.ReplaceAll(c.cfg.TopPath, "{period}", string(p))}}
	if p.Daily() && c.cfg.WeekPath != "" {
		calls = append(calls, call{ep: epWeek, url: c.cfg.BaseURL + c.cfg.WeekPath})
	}
	if c.cfg.MonthlyPath != "" {
		calls = append(calls, call{ep: epMonthly, url: c.cfg.BaseURL + c.cfg.MonthlyPath})
	}
	return calls
}

// Fetch retrieves the leaderboard for p. All required requests run
// concurrently and must all succeed; otherwise the result is absent (nil,
// false) and the cause is logged with the raw upstream body.
func (c *Client) Fetch(ctx context.Context, p Period) (*Report, bool) {
	if !p.Valid() {
		c.log.Error("fetch requested for unknown period", logx.String("period", string(p)))
		return nil, false
	}
	log := c.log.With(logx.String("period", string(p)), logx.String("fetch_id", uuid.NewString()))
	start := time.Now()

	calls := c.plan(p)
	outs := make([]outcome, len(calls))
	var wg sync.WaitGroup
	for i := range calls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outs[i] = c.get(ctx, calls[i].url)
		}(i)
	}
	wg.Wait()

	statuses := make([]logx.Field, 0, len(calls))
	for i, cl := range calls {
		statuses = append(statuses, logx.Int("status_"+cl.ep.String(), outs[i].status))
	}
	log.Debug("stats responses received", append(statuses, logx.Duration("took", time.Since(start)))...)

	ok := true
	for i, cl := range calls {
		o := outs[i]
		switch {
		case o.err != nil:
			log.Error("stats request failed", logx.String("endpoint", cl.ep.String()), logx.String("url", cl.url), logx.Err(o.err))
			ok = false
		case o.status < 200 || o.status > 299:
			log.Error("stats request returned error status",
				logx.String("endpoint", cl.ep.String()),
				logx.String("url", cl.url),
				logx.Int("status", o.status),
				logx.String("body", clip(o.body)),
			)
			ok = false
		}
	}
	if !ok {
		return nil, false
	}

	payloads := make(map[endpoint]payload, len(calls))
	for i, cl := range calls {
		pl, shape, err := decodePayload(outs[i].body)
		if err != nil {
			log.Error("stats response parse failed",
				logx.String("endpoint", cl.ep.String()),
				logx.String("shape", shape),
				logx.Err(err),
				logx.String("body", clip(outs[i].body)),
			)
			return nil, false
		}
		log.Debug("stats payload decoded", logx.String("endpoint", cl.ep.String()), logx.String("shape", shape))
		payloads[cl.ep] = pl
	}

	rep := merge(p, payloads)
	log.Info("stats fetched", logx.Int("drivers", len(rep.TopList)), logx.Duration("took", time.Since(start)))
	return rep, true
}

// merge builds the report: the period's top list plus the weekly bonus sum
// (from the week payload for daily periods) and the monthly bonus.
func merge(p Period, payloads map[endpoint]payload) *Report {
	top := payloads[epTop]
	rep := &Report{
		Period:         p,
		TopList:        top.TopList,
		WeeklyBonusSum: top.WeeklyBonusSum,
		MonthlyBonus:   top.MonthlyBonus,
	}
	if rep.TopList == nil {
		rep.TopList = []DriverRecord{}
	}
	if wk, ok := payloads[epWeek]; ok && p.Daily() {
		rep.WeeklyBonusSum = wk.WeeklyBonusSum
	}
	if mo, ok := payloads[epMonthly]; ok {
		rep.MonthlyBonus = mo.MonthlyBonus
	}
	return rep
}

func (c *Client) get(ctx context.Context, url string) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return outcome{err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return outcome{err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return outcome{status: resp.StatusCode, err: fmt.Errorf("read body: %w", err)}
	}
	return outcome{status: resp.StatusCode, body: body}
}

func clip(b []byte) string {
	s := string(b)
	if len(s) <= maxLogBody {
		return s
	}
	return s[:maxLogBody] + "...(truncated)"
}

// Package zabbix is a JSON-RPC 2.0 client for the Zabbix API covering
// the calls alarmdesk needs: login, host and event listing, event
// acknowledgement and version probing.
package zabbix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// RequestTimeout bounds every call to the API.
const RequestTimeout = 30 * time.Second

// acknowledge (2) | add message (4)
const ackAction = 6

// Observer is notified after every RPC with the method name and
// "ok" or "error". Used for metrics.
type Observer func(method, outcome string)

// Client talks to one Zabbix API endpoint. The session token is cached and
// renewed once when the server reports it expired. Safe for concurrent use.
type Client struct {
	http     *resty.Client
	url      string
	username string
	password string
	logger   *zap.Logger
	observe  Observer
	nextID   atomic.Int64

	mu    sync.Mutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithObserver registers a per-request callback.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observe = o }
}

// New creates a client for the API endpoint url (typically
// https://host/zabbix/api_jsonrpc.php).
func New(url, username, password string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetTimeout(RequestTimeout).
			SetHeader("Content-Type", "application/json-rpc").
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "alarmdesk/1.0"),
		url:      url,
		username: username,
		password: password,
		logger:   zap.NewNop(),
		observe:  func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      int64  `json:"id"`
	Auth    string `json:"auth,omitempty"`
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// rpc performs a single request. token may be empty for unauthenticated methods.
func (c *Client) rpc(ctx context.Context, method string, params any, token string, out any) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.observe(method, outcome)
	}()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(request{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1), Auth: token}).
		Post(c.url)
	if err != nil {
		return &UpstreamError{Method: method, Err: err}
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return &UpstreamError{Method: method, StatusCode: resp.StatusCode(), Err: errors.New(resp.Status())}
	}

	var r response
	if err := json.Unmarshal(resp.Body(), &r); err != nil {
		return &UpstreamError{Method: method, StatusCode: resp.StatusCode(), Err: fmt.Errorf("decode response: %w", err)}
	}
	if r.Error != nil {
		return &UpstreamError{Method: method, RPC: r.Error, Err: errors.New(r.Error.Message)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Result, out); err != nil {
		return &UpstreamError{Method: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// Authenticate logs in with the configured credentials and caches the token.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loginLocked(ctx)
}

func (c *Client) loginLocked(ctx context.Context) error {
	var token string
	params := map[string]string{"username": c.username, "password": c.password}
	if err := c.rpc(ctx, "user.login", params, "", &token); err != nil {
		c.token = ""
		return &AuthError{Err: err}
	}
	if token == "" {
		return &AuthError{Err: errors.New("empty session token")}
	}
	c.token = token
	c.logger.Debug("authenticated with zabbix api")
	return nil
}

// session returns the cached token, logging in first if there is none.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		if err := c.loginLocked(ctx); err != nil {
			return "", err
		}
	}
	return c.token, nil
}

// invalidate drops token if it is still the cached one.
func (c *Client) invalidate(token string) {
	c.mu.Lock()
	if c.token == token {
		c.token = ""
	}
	c.mu.Unlock()
}

// call runs an authenticated method, re-authenticating and retrying once
// when the server rejects the session.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	token, err := c.session(ctx)
	if err != nil {
		return err
	}
	err = c.rpc(ctx, method, params, token, out)
	if !isSessionError(err) {
		return err
	}

	c.logger.Info("zabbix session expired, re-authenticating", zap.String("method", method))
	c.invalidate(token)
	if token, err = c.session(ctx); err != nil {
		return err
	}
	return c.rpc(ctx, method, params, token, out)
}

// ListHosts returns every host visible to the API user. filter entries are
// merged into the host.get parameters.
func (c *Client) ListHosts(ctx context.Context, filter HostFilter) ([]Host, error) {
	params := map[string]any{
		"output":           []string{"hostid", "host", "name", "status", "available"},
		"selectInterfaces": []string{"ip"},
	}
	for k, v := range filter {
		params[k] = v
	}

	hosts := []Host{}
	if err := c.call(ctx, "host.get", params, &hosts); err != nil {
		return nil, err
	}
	if hosts == nil {
		hosts = []Host{}
	}
	return hosts, nil
}

// ListEvents returns events with since <= clock < until, newest first.
// objectIDs optionally restricts the events to those trigger ids.
func (c *Client) ListEvents(ctx context.Context, since, until time.Time, objectIDs []string) ([]Event, error) {
	from, till := clockWindow(since, until)
	if from > till {
		return []Event{}, nil
	}
	params := map[string]any{
		"output": []string{
			"eventid", "source", "object", "objectid", "clock",
			"value", "acknowledged", "name", "severity",
		},
		"selectHosts": []string{"hostid"},
		"time_from":   from,
		"time_till":   till,
		"sortfield":   []string{"clock", "eventid"},
		"sortorder":   "DESC",
	}
	if len(objectIDs) > 0 {
		params["objectids"] = objectIDs
	}

	events := []Event{}
	if err := c.call(ctx, "event.get", params, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []Event{}
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time().After(events[j].Time())
	})
	return events, nil
}

// AcknowledgeEvent acknowledges eventID with note as the message.
func (c *Client) AcknowledgeEvent(ctx context.Context, eventID, note string) (bool, error) {
	params := map[string]any{
		"eventids": []string{eventID},
		"action":   ackAction,
		"message":  note,
	}
	if err := c.call(ctx, "event.acknowledge", params, nil); err != nil {
		return false, err
	}
	return true, nil
}

// Version returns the API version. It needs no session and doubles as a
// connectivity probe.
func (c *Client) Version(ctx context.Context) (string, error) {
	var v string
	if err := c.rpc(ctx, "apiinfo.version", map[string]any{}, "", &v); err != nil {
		return "", err
	}
	return v, nil
}

// clockWindow maps [since, until) onto the inclusive whole-second bounds
// event.get filters on. Event clocks are whole seconds, so a clock c is in
// the window exactly when ceil(since) <= c <= ceil(until)-1.
func clockWindow(since, until time.Time) (from, till int64) {
	return ceilUnix(since), ceilUnix(until) - 1
}

func ceilUnix(t time.Time) int64 {
	sec := t.Unix()
	if t.After(time.Unix(sec, 0)) {
		sec++
	}
	return sec
}

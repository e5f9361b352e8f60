// Package client is an HTTP client for the wshub admin API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/wshub/pkg/admin"
	"github.com/getmockd/wshub/pkg/registry"
)

var (
	// ErrNotFound is matched by errors for 404 responses.
	ErrNotFound = errors.New("not found")
	// ErrConflict is matched by errors for 409 responses.
	ErrConflict = errors.New("conflict")
)

// APIError is a non-2xx response from the admin API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is maps 404 and 409 onto ErrNotFound and ErrConflict.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	}
	return false
}

// Client talks to one admin API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a client for baseURL. A bare host:port gets an http scheme.
func New(baseURL string, opts ...Option) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks if the server is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Status returns the server status.
func (c *Client) Status(ctx context.Context) (*admin.StatusResponse, error) {
	var out admin.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListClients returns connection ids, limited to route when not empty.
func (c *Client) ListClients(ctx context.Context, route string) ([]string, error) {
	var out admin.ClientListResponse
	if err := c.do(ctx, http.MethodGet, "/clients", routeQuery(route), nil, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}

// ListRoutes returns the routes with live connections.
func (c *Client) ListRoutes(ctx context.Context) ([]string, error) {
	var out admin.RouteListResponse
	if err := c.do(ctx, http.MethodGet, "/routes", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Routes, nil
}

// Describe returns a snapshot of one connection.
func (c *Client) Describe(ctx context.Context, id string) (*registry.ConnInfo, error) {
	var out registry.ConnInfo
	if err := c.do(ctx, http.MethodGet, "/clients/"+url.PathEscape(id), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Send writes payload to one connection.
func (c *Client) Send(ctx context.Context, id string, payload []byte, route string) error {
	return c.do(ctx, http.MethodPost, "/clients/"+url.PathEscape(id)+"/send", routeQuery(route), payload, nil)
}

// Broadcast writes payload to every connection, or to those on route, and
// returns how many writes succeeded.
func (c *Client) Broadcast(ctx context.Context, payload []byte, route string) (int, error) {
	var out admin.SendResponse
	if err := c.do(ctx, http.MethodPost, "/broadcast", routeQuery(route), payload, &out); err != nil {
		return 0, err
	}
	return out.Sent, nil
}

// SendToTagExpression writes payload to every connection matching expr.
func (c *Client) SendToTagExpression(ctx context.Context, expr string, payload []byte, route string) (int, error) {
	q := routeQuery(route)
	q.Set("expr", expr)
	var out admin.SendResponse
	if err := c.do(ctx, http.MethodPost, "/expression/send", q, payload, &out); err != nil {
		return 0, err
	}
	return out.Sent, nil
}

// Close closes a connection with reason.
func (c *Client) Close(ctx context.Context, id, reason string) error {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", reason)
	}
	return c.do(ctx, http.MethodDelete, "/clients/"+url.PathEscape(id), q, nil, nil)
}

// Rename moves a connection to a new id.
func (c *Client) Rename(ctx context.Context, id, newID string) error {
	return c.do(ctx, http.MethodPost, "/clients/"+url.PathEscape(id)+"/rename/"+url.PathEscape(newID), nil, nil, nil)
}

// Tag attaches tag to a connection.
func (c *Client) Tag(ctx context.Context, id, tag string) error {
	return c.do(ctx, http.MethodPost, "/clients/"+url.PathEscape(id)+"/tags/"+url.PathEscape(tag), nil, nil, nil)
}

// Untag removes tag from a connection.
func (c *Client) Untag(ctx context.Context, id, tag string) error {
	return c.do(ctx, http.MethodDelete, "/clients/"+url.PathEscape(id)+"/tags/"+url.PathEscape(tag), nil, nil, nil)
}

// ClientsByTagExpression returns the ids matching expr.
func (c *Client) ClientsByTagExpression(ctx context.Context, expr string) ([]string, error) {
	var out admin.ClientListResponse
	q := url.Values{"expr": {expr}}
	if err := c.do(ctx, http.MethodGet, "/expression/clients", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}

// CountClients returns the number of connections, limited to route when not
// empty.
func (c *Client) CountClients(ctx context.Context, route string) (int, error) {
	var out admin.CountResponse
	if err := c.do(ctx, http.MethodGet, "/clients/count", routeQuery(route), nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// TagsOf returns the tags of one connection.
func (c *Client) TagsOf(ctx context.Context, id string) ([]string, error) {
	var out admin.TagListResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "tags"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// ClearTags removes every tag from a connection.
func (c *Client) ClearTags(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "tags"), nil, nil, nil)
}

// ListTags returns every tag held by at least one connection.
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	var out admin.TagListResponse
	if err := c.do(ctx, http.MethodGet, "/tags", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// ClientsWithTag returns the ids carrying tag.
func (c *Client) ClientsWithTag(ctx context.Context, tag string) ([]string, error) {
	var out admin.ClientListResponse
	if err := c.do(ctx, http.MethodGet, "/tags/"+url.PathEscape(tag)+"/clients", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}

// TagCount returns how many connections carry tag.
func (c *Client) TagCount(ctx context.Context, tag string) (int, error) {
	var out admin.CountResponse
	if err := c.do(ctx, http.MethodGet, "/tags/"+url.PathEscape(tag)+"/count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// SendToTag writes payload to every connection carrying tag.
func (c *Client) SendToTag(ctx context.Context, tag string, payload []byte, route string) (int, error) {
	var out admin.SendResponse
	if err := c.do(ctx, http.MethodPost, "/tags/"+url.PathEscape(tag)+"/send", routeQuery(route), payload, &out); err != nil {
		return 0, err
	}
	return out.Sent, nil
}

// Info returns one info value of a connection.
func (c *Client) Info(ctx context.Context, id, key string) (string, error) {
	var out admin.ValueResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "info", key), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

// SetInfo stores an info value on a connection.
func (c *Client) SetInfo(ctx context.Context, id, key, value string) error {
	return c.do(ctx, http.MethodPut, clientPath(id, "info", key), nil, []byte(value), nil)
}

// DeleteInfo removes one info value.
func (c *Client) DeleteInfo(ctx context.Context, id, key string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "info", key), nil, nil, nil)
}

// AllInfo returns every info value of a connection.
func (c *Client) AllInfo(ctx context.Context, id string) (map[string]string, error) {
	out := map[string]string{}
	if err := c.do(ctx, http.MethodGet, clientPath(id, "info"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// InfoKeys returns the info keys of a connection.
func (c *Client) InfoKeys(ctx context.Context, id string) ([]string, error) {
	var out admin.KeyListResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "info", "keys"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Keys, nil
}

// ClearInfo removes every info value of a connection.
func (c *Client) ClearInfo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "info"), nil, nil, nil)
}

// SearchInfo returns the ids whose info key compares to value under op
// (see registry.Operators). An empty op means eq.
func (c *Client) SearchInfo(ctx context.Context, key, op, value, route string) ([]string, error) {
	q := routeQuery(route)
	q.Set("key", key)
	q.Set("value", value)
	if op != "" {
		q.Set("op", op)
	}
	var out admin.ClientListResponse
	if err := c.do(ctx, http.MethodGet, "/info/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Clients, nil
}

// Global returns a global value.
func (c *Client) Global(ctx context.Context, key string) (string, error) {
	var out admin.ValueResponse
	if err := c.do(ctx, http.MethodGet, "/global/"+url.PathEscape(key), nil, nil, &out); err != nil {
		return "", err
	}
	return out.Value, nil
}

// SetGlobal stores a global value. A zero ttl keeps it until deleted.
func (c *Client) SetGlobal(ctx context.Context, key, value string, ttl time.Duration) error {
	q := url.Values{}
	if ttl > 0 {
		q.Set("ttl", ttl.String())
	}
	return c.do(ctx, http.MethodPut, "/global/"+url.PathEscape(key), q, []byte(value), nil)
}

// GlobalExists reports whether a global key is set.
func (c *Client) GlobalExists(ctx context.Context, key string) (bool, error) {
	var out admin.ExistsResponse
	if err := c.do(ctx, http.MethodGet, "/global/"+url.PathEscape(key)+"/exists", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// DeleteGlobal removes a global key.
func (c *Client) DeleteGlobal(ctx context.Context, key string) error {
	return c.do(ctx, http.MethodDelete, "/global/"+url.PathEscape(key), nil, nil, nil)
}

// EnablePing schedules keep-alive pings. A zero interval pings once.
func (c *Client) EnablePing(ctx context.Context, id string, interval time.Duration) error {
	q := url.Values{}
	if interval > 0 {
		q.Set("interval", interval.String())
	}
	return c.do(ctx, http.MethodPost, clientPath(id, "ping"), q, nil, nil)
}

// DisablePing stops keep-alive pings.
func (c *Client) DisablePing(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "ping"), nil, nil, nil)
}

// PingTime returns the last measured round trip of a connection.
func (c *Client) PingTime(ctx context.Context, id string) (time.Duration, error) {
	var out admin.PingResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "ping"), nil, nil, &out); err != nil {
		return 0, err
	}
	return time.Duration(out.LatencyMs * float64(time.Millisecond)), nil
}

// EnableQueue starts the outbound message log. Zero bounds use the server
// defaults.
func (c *Client) EnableQueue(ctx context.Context, id string, maxEntries int, maxAge time.Duration) error {
	q := url.Values{}
	if maxEntries > 0 {
		q.Set("maxEntries", strconv.Itoa(maxEntries))
	}
	if maxAge > 0 {
		q.Set("maxAge", maxAge.String())
	}
	return c.do(ctx, http.MethodPost, clientPath(id, "queue"), q, nil, nil)
}

// DisableQueue stops the outbound message log.
func (c *Client) DisableQueue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "queue"), nil, nil, nil)
}

// Queue returns the logged outbound messages of a connection.
func (c *Client) Queue(ctx context.Context, id string) ([]registry.QueuedMessage, error) {
	var out admin.QueueResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "queue"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// QueueCounter returns the outbound message counter of a connection.
func (c *Client) QueueCounter(ctx context.Context, id string) (int64, error) {
	var out admin.CounterResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "queue", "counter"), nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Counter, nil
}

// ClearQueue drops the logged outbound messages.
func (c *Client) ClearQueue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "queue", "messages"), nil, nil, nil)
}

// ActivateGhost keeps a connection registered after its socket goes away.
func (c *Client) ActivateGhost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, clientPath(id, "ghost"), nil, nil, nil)
}

// ReleaseGhost ends ghost mode and tears the connection down.
func (c *Client) ReleaseGhost(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, clientPath(id, "ghost"), nil, nil, nil)
}

// IsGhost reports whether a connection is in ghost mode.
func (c *Client) IsGhost(ctx context.Context, id string) (bool, error) {
	var out admin.GhostResponse
	if err := c.do(ctx, http.MethodGet, clientPath(id, "ghost"), nil, nil, &out); err != nil {
		return false, err
	}
	return out.Ghost, nil
}

// clientPath joins /clients/{id} with further segments, escaping each.
func clientPath(id string, segments ...string) string {
	var b strings.Builder
	b.WriteString("/clients/")
	b.WriteString(url.PathEscape(id))
	for _, s := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(s))
	}
	return b.String()
}

func routeQuery(route string) url.Values {
	q := url.Values{}
	if route != "" {
		q.Set("route", route)
	}
	return q
}

// do sends one request. A non-nil body is sent as an octet stream; out, when
// set, receives the decoded JSON response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body []byte, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var errResp admin.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil {
		apiErr.Code = errResp.Error
		apiErr.Message = errResp.Message
	}
	return apiErr
}

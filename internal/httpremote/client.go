// Package httpremote is a REST-ish HTTP implementation of the engine's
// remote-collaborator ports (ports.RemoteTable, ports.ObjectStore,
// ports.CompatClient): BaseURL plus *http.Client plus sentinel errors for
// common HTTP error classes. Realtime transport (ports.RealtimeClient)
// has no HTTP analogue here; the demo CLI runs without realtime ingress
// wired (see cmd/syncctl), matching Engine's documented "Realtime nil
// disables realtime ingress entirely" contract.
package httpremote

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
	"time"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Sentinel errors for common HTTP error classes. ErrForbidden's text is
// what usererror.Classify's permission-denied detection keys off.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("permission denied")
	ErrNotFound     = errors.New("not found")
)

// Client is an HTTP client for a table-API-shaped sync backend.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New constructs a Client with a 30s request timeout.
func New(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode == http.StatusForbidden {
		return ErrForbidden
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// --- ports.RemoteTable ---

func (c *Client) SelectSince(ctx context.Context, kind entitykind.Kind, since time.Time) ([]ports.Row, error) {
	q := url.Values{}
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	var wire []map[string]any
	if err := c.do(ctx, http.MethodGet, "/v1/tables/"+string(kind)+"?"+q.Encode(), nil, &wire); err != nil {
		return nil, err
	}
	return toRows(kind, wire), nil
}

func (c *Client) SelectIDs(ctx context.Context, kind entitykind.Kind) ([]string, error) {
	var ids []string
	if err := c.do(ctx, http.MethodGet, "/v1/tables/"+string(kind)+"/ids", nil, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (c *Client) SelectByIDs(ctx context.Context, kind entitykind.Kind, ids []string) ([]ports.Row, error) {
	var wire []map[string]any
	body := map[string]any{"ids": ids}
	if err := c.do(ctx, http.MethodPost, "/v1/tables/"+string(kind)+"/select", body, &wire); err != nil {
		return nil, err
	}
	return toRows(kind, wire), nil
}

func (c *Client) Upsert(ctx context.Context, kind entitykind.Kind, rows []ports.Row) error {
	return c.do(ctx, http.MethodPost, "/v1/tables/"+string(kind)+"/upsert", fromRows(rows), nil)
}

func (c *Client) Insert(ctx context.Context, kind entitykind.Kind, rows []ports.Row) error {
	return c.do(ctx, http.MethodPost, "/v1/tables/"+string(kind)+"/insert", fromRows(rows), nil)
}

func (c *Client) UpdateByID(ctx context.Context, kind entitykind.Kind, id string, fields map[string]any) error {
	return c.do(ctx, http.MethodPatch, "/v1/tables/"+string(kind)+"/"+id, fields, nil)
}

func toRows(kind entitykind.Kind, wire []map[string]any) []ports.Row {
	out := make([]ports.Row, len(wire))
	for i, fields := range wire {
		out[i] = ports.Row{Kind: kind, Fields: fields}
	}
	return out
}

func fromRows(rows []ports.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r.Fields
	}
	return out
}

// --- ports.ObjectStore ---

// Upload writes data to the "avatars" bucket under key via a raw PUT,
// carrying cacheControl and contentType as request headers. Upsert is
// implicit: the server-side PUT replaces any existing object at the key.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string, cacheControl time.Duration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.BaseURL+"/v1/storage/avatars/"+key, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "max-age="+strconv.Itoa(int(cacheControl.Seconds())))
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("upload avatar %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload avatar %s: status %d: %s", key, resp.StatusCode, string(data))
	}
	return nil
}

// PublicURL returns the assumed-public-read download URL for key.
func (c *Client) PublicURL(key string) string {
	return c.BaseURL + "/v1/storage/avatars/" + key
}

// --- ports.CompatClient ---

type compatResponse struct {
	Compatible        bool   `json:"compatible"`
	MinVersion        string `json:"min_version"`
	CurrentVersion    string `json:"current_version"`
	ForceUpdate       bool   `json:"force_update"`
	MigrationRequired bool   `json:"migration_required"`
	Message           string `json:"message"`
}

func (c *Client) CheckVersionCompat(ctx context.Context, platform, clientVersion string) (ports.CompatStatus, error) {
	var resp compatResponse
	body := map[string]string{"platform": platform, "client_version": clientVersion}
	if err := c.do(ctx, http.MethodPost, "/v1/compat/check", body, &resp); err != nil {
		return ports.CompatUnknown, err
	}
	switch {
	case resp.ForceUpdate:
		return ports.CompatUpdateRequired, nil
	case !resp.Compatible:
		return ports.CompatUpdateAvailable, nil
	default:
		return ports.CompatCompatible, nil
	}
}

var (
	_ ports.RemoteTable  = (*Client)(nil)
	_ ports.ObjectStore  = (*Client)(nil)
	_ ports.CompatClient = (*Client)(nil)
)

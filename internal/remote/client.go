// Package remote talks to the fitness backend's sync endpoints.
package remote

import (
	"alcyxob/fitness-sync/internal/domain"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API is the subset of the backend the sync engines consume.
type API interface {
	Create(ctx context.Context, token string, family domain.Family, req UploadRequest) (domain.Ack, error)
	Patch(ctx context.Context, token string, family domain.Family, remoteID string, req UploadRequest) (domain.Ack, error)
	ListChanges(ctx context.Context, token string, family domain.Family, since *time.Time) (ChangeSet, error)
}

// UploadRequest is the body of a create or patch call.
type UploadRequest struct {
	LocalID string          `json:"localId"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ChangeSet is a pull response. ServerTime is the server's clock at the moment
// the query ran and becomes the next checkpoint.
type ChangeSet struct {
	Records    []domain.RemoteRecord `json:"records"`
	ServerTime time.Time             `json:"serverTime"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// Transient reports whether retrying later could succeed.
func (e *StatusError) Transient() bool {
	return e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsTransient classifies an error from this package. Transport failures are transient.
func IsTransient(err error) bool {
	var status *StatusError
	if errors.As(err, &status) {
		return status.Transient()
	}
	return err != nil
}

// Client implements API over HTTP+JSON.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient constructs a client with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// BaseURL returns the backend root, used by the reachability probe.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Create posts a never-synced entity.
func (c *Client) Create(ctx context.Context, token string, family domain.Family, req UploadRequest) (domain.Ack, error) {
	var ack domain.Ack
	path := fmt.Sprintf("/api/v1/sync/%s", family.PathSegment())
	if err := c.do(ctx, http.MethodPost, path, token, req, &ack); err != nil {
		return domain.Ack{}, err
	}
	if ack.RemoteID == "" {
		return domain.Ack{}, fmt.Errorf("create %s: empty remote id in ack", family)
	}
	if ack.LocalID == "" {
		ack.LocalID = req.LocalID
	}
	return ack, nil
}

// Patch sends the full current payload of an already-created entity.
func (c *Client) Patch(ctx context.Context, token string, family domain.Family, remoteID string, req UploadRequest) (domain.Ack, error) {
	var ack domain.Ack
	path := fmt.Sprintf("/api/v1/sync/%s/%s", family.PathSegment(), url.PathEscape(remoteID))
	if err := c.do(ctx, http.MethodPatch, path, token, req, &ack); err != nil {
		return domain.Ack{}, err
	}
	if ack.RemoteID == "" {
		ack.RemoteID = remoteID
	}
	if ack.LocalID == "" {
		ack.LocalID = req.LocalID
	}
	return ack, nil
}

// ListChanges fetches records changed after since; nil since means full history.
func (c *Client) ListChanges(ctx context.Context, token string, family domain.Family, since *time.Time) (ChangeSet, error) {
	path := fmt.Sprintf("/api/v1/sync/%s/changes", family.PathSegment())
	if since != nil {
		path += "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
	}
	var changes ChangeSet
	if err := c.do(ctx, http.MethodGet, path, token, nil, &changes); err != nil {
		return ChangeSet{}, err
	}
	for i := range changes.Records {
		if changes.Records[i].Family == "" {
			changes.Records[i].Family = family
		}
	}
	return changes, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

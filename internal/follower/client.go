package follower

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/protocol"
)

// ErrSuperseded is returned by FetchSnapshot when a newer fetch started before
// this one finished. The result of the older fetch is discarded.
var ErrSuperseded = errors.New("snapshot request superseded")

// Client is an HTTP client for the runview read API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	fetchSeq    uint64
	cancelFetch context.CancelFunc
}

// NewClient creates a new runview client. httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
}

// ErrorResponse represents an error response from the server.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SnapshotResponse is a full snapshot with its stream position.
type SnapshotResponse struct {
	Snapshot *domain.Snapshot
	Cursor   int64
	BridgeID string
}

// LifecycleResponse is either the envelopes after a cursor or a gap.
type LifecycleResponse struct {
	Envelopes []domain.LifecycleEnvelope `json:"envelopes"`
	Gap       *domain.BackfillGap        `json:"gap"`
}

// FetchSnapshot calls GET /v1/snapshot. Starting a fetch cancels the one in
// flight, which then returns ErrSuperseded.
func (c *Client) FetchSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	c.mu.Lock()
	if c.cancelFetch != nil {
		c.cancelFetch()
	}
	c.fetchSeq++
	seq := c.fetchSeq
	fetchCtx, cancel := context.WithCancel(ctx)
	c.cancelFetch = cancel
	c.mu.Unlock()
	defer cancel()

	result, err := c.getSnapshot(fetchCtx)

	c.mu.Lock()
	superseded := seq != c.fetchSeq
	if !superseded {
		c.cancelFetch = nil
	}
	c.mu.Unlock()

	if superseded {
		return nil, ErrSuperseded
	}
	return result, err
}

func (c *Client) getSnapshot(ctx context.Context) (*SnapshotResponse, error) {
	resp, err := c.get(ctx, "/v1/snapshot")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	cursor, err := strconv.ParseInt(resp.Header.Get(protocol.HeaderLifecycleCursor), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s header: %w", protocol.HeaderLifecycleCursor, err)
	}

	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}

	return &SnapshotResponse{
		Snapshot: &snap,
		Cursor:   cursor,
		BridgeID: resp.Header.Get(protocol.HeaderLifecycleBridge),
	}, nil
}

// FetchLifecycle calls GET /v1/lifecycle?after=N.
func (c *Client) FetchLifecycle(ctx context.Context, after int64) (*LifecycleResponse, error) {
	resp, err := c.get(ctx, "/v1/lifecycle?after="+strconv.FormatInt(after, 10))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out LifecycleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode lifecycle response: %w", err)
	}
	return &out, nil
}

// FetchRunEvents calls GET /v1/runs/:run_id/events.
func (c *Client) FetchRunEvents(ctx context.Context, runID string, afterTs int64, types []string, limit int) ([]domain.ArchivedEvent, error) {
	q := url.Values{}
	if afterTs > 0 {
		q.Set("after", strconv.FormatInt(afterTs, 10))
	}
	if len(types) > 0 {
		q.Set("types", strings.Join(types, ","))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/runs/" + url.PathEscape(runID) + "/events"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}

	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Events []domain.ArchivedEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode run events: %w", err)
	}
	return out.Events, nil
}

// StreamURL returns the websocket URL of the stream, resuming after cursor
// when it is non-nil.
func (c *Client) StreamURL(cursor *int64) string {
	u := c.baseURL + "/v1/stream"
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	if cursor != nil {
		u += "?cursor=" + strconv.FormatInt(*cursor, 10)
	}
	return u
}

// get issues a GET and returns the response when it is 200 OK. The caller
// closes the body.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

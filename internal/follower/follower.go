// Package follower keeps a consumer's view in sync with a runview server: it
// follows the websocket stream, resynchronizes on gaps and falls back to
// polling full snapshots while the stream is down.
package follower

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xiaot623/runview/internal/domain"
	"github.com/xiaot623/runview/internal/protocol"
	"github.com/xiaot623/runview/internal/viewstate"
)

// Default timings of a Follower.
const (
	DefaultPollInterval   = 2 * time.Second
	DefaultReconnectDelay = time.Second
	DefaultReadTimeout    = 60 * time.Second
)

// UpdateKind says what changed in an Update.
type UpdateKind string

const (
	UpdateSnapshot     UpdateKind = "snapshot"
	UpdateLifecycle    UpdateKind = "lifecycle"
	UpdateGap          UpdateKind = "gap"
	UpdateConnectivity UpdateKind = "connectivity"
)

// Update is reported to Config.OnUpdate after the view changed.
type Update struct {
	Kind         UpdateKind
	Decision     viewstate.Decision
	Envelope     domain.LifecycleEnvelope
	Gap          domain.BackfillGap
	Connectivity viewstate.Connectivity
}

// Config configures a Follower.
type Config struct {
	BaseURL        string
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	ReadTimeout    time.Duration
	HTTPClient     *http.Client
	// OnUpdate is called synchronously from the follower's goroutines.
	OnUpdate func(Update)
}

// Follower drives a viewstate.Store from a server.
type Follower struct {
	cfg    Config
	client *Client
	store  *viewstate.Store
	dialer *websocket.Dialer
	logger *zap.Logger

	mu       sync.Mutex
	bridgeID string

	pollMu     sync.Mutex
	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// New creates a Follower feeding store. A nil store gets a default one.
func New(cfg Config, store *viewstate.Store, logger *zap.Logger) *Follower {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if store == nil {
		store = viewstate.NewStore(domain.DefaultEventLimit)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Follower{
		cfg:    cfg,
		client: NewClient(cfg.BaseURL, cfg.HTTPClient),
		store:  store,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger: logger.With(zap.String("component", "follower")),
	}
}

// Store returns the view the follower maintains.
func (f *Follower) Store() *viewstate.Store {
	return f.store
}

// Client returns the HTTP client of the follower.
func (f *Follower) Client() *Client {
	return f.client
}

// Refresh fetches a full snapshot and applies it. A superseded fetch returns
// ErrSuperseded and leaves the view alone.
func (f *Follower) Refresh(ctx context.Context) error {
	resp, err := f.client.FetchSnapshot(ctx)
	if err != nil {
		return err
	}
	f.setBridge(resp.BridgeID)
	decision := f.store.ApplySnapshot(resp.Snapshot, resp.Cursor)
	f.emit(Update{Kind: UpdateSnapshot, Decision: decision})
	return nil
}

// Run follows the stream until ctx is done. While the stream is down it polls
// snapshots and redials after ReconnectDelay.
func (f *Follower) Run(ctx context.Context) error {
	defer f.stopPolling()

	for {
		conn, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
			return f.dial(ctx)
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(f.cfg.ReconnectDelay)),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				f.logger.Debug("stream dial failed", zap.Error(err), zap.Duration("retry_in", next))
				f.startPolling(ctx)
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				f.setConnectivity(viewstate.ConnectivityOffline)
				return nil
			}
			return err
		}

		f.stopPolling()
		f.setConnectivity(viewstate.ConnectivityLive)
		err = f.consume(ctx, conn)
		if ctx.Err() != nil {
			f.setConnectivity(viewstate.ConnectivityOffline)
			return nil
		}
		f.logger.Info("stream disconnected", zap.Error(err))
		f.startPolling(ctx)

		select {
		case <-ctx.Done():
			f.setConnectivity(viewstate.ConnectivityOffline)
			return nil
		case <-time.After(f.cfg.ReconnectDelay):
		}
	}
}

// dial opens the stream, resuming from the view's cursor when the view is in
// sync with the same server instance.
func (f *Follower) dial(ctx context.Context) (*websocket.Conn, error) {
	var cursor *int64
	if f.store.Current() != nil && !f.store.NeedsResync() {
		c := f.store.Cursor()
		cursor = &c
	}

	conn, resp, err := f.dialer.DialContext(ctx, f.client.StreamURL(cursor), nil)
	if err != nil {
		return nil, err
	}
	bridgeID := resp.Header.Get(protocol.HeaderLifecycleBridge)

	if known := f.knownBridge(); cursor != nil && known != "" && bridgeID != known {
		// The cursor was numbered by another server instance.
		f.logger.Info("server restarted, resubscribing from a full snapshot",
			zap.String("previous_bridge", known), zap.String("bridge", bridgeID))
		conn.Close()
		conn, resp, err = f.dialer.DialContext(ctx, f.client.StreamURL(nil), nil)
		if err != nil {
			return nil, err
		}
		bridgeID = resp.Header.Get(protocol.HeaderLifecycleBridge)
	}

	f.setBridge(bridgeID)
	return conn, nil
}

func (f *Follower) consume(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(f.cfg.ReadTimeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			f.logger.Warn("skipping undecodable frame", zap.Error(err))
			continue
		}
		if err := f.handleFrame(ctx, msg); err != nil {
			return err
		}
	}
}

// handleFrame applies one frame. An error means the view cannot follow this
// connection any further.
func (f *Follower) handleFrame(ctx context.Context, msg interface{}) error {
	switch m := msg.(type) {
	case *protocol.SnapshotMessage:
		if m.Snapshot == nil {
			return nil
		}
		decision := f.store.ApplySnapshot(m.Snapshot, m.Cursor)
		f.emit(Update{Kind: UpdateSnapshot, Decision: decision})

	case *protocol.LifecycleMessage:
		env := m.Envelope()
		if decision, applied := f.store.ApplyEnvelope(env); applied {
			f.emit(Update{Kind: UpdateLifecycle, Decision: decision, Envelope: env})
		}

	case *protocol.BackfillGapMessage:
		f.store.ApplyGap(m.BackfillGap)
		f.emit(Update{Kind: UpdateGap, Gap: m.BackfillGap})
		// Frames queue on the socket meanwhile, so they apply after the snapshot.
		// Without it the stream is useless; redialing resubscribes without a
		// cursor while the poll loop keeps retrying the fetch.
		if err := f.Refresh(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
			f.logger.Warn("resync after backfill gap failed", zap.Error(err))
			return fmt.Errorf("resync after backfill gap: %w", err)
		}
	}
	return nil
}

// startPolling marks the stream down and polls snapshots until stopPolling.
// It does nothing while a poll loop is running.
func (f *Follower) startPolling(ctx context.Context) {
	f.pollMu.Lock()
	defer f.pollMu.Unlock()
	if f.pollCancel != nil {
		return
	}
	f.setConnectivity(viewstate.ConnectivityPolling)

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	f.pollCancel, f.pollDone = cancel, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(f.cfg.PollInterval)
		defer ticker.Stop()

		for {
			err := f.Refresh(pollCtx)
			switch {
			case pollCtx.Err() != nil:
				return
			case err == nil:
				f.setConnectivity(viewstate.ConnectivityPolling)
			case !errors.Is(err, ErrSuperseded):
				f.logger.Debug("snapshot poll failed", zap.Error(err))
				f.setConnectivity(viewstate.ConnectivityOffline)
			}

			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stopPolling stops the poll loop and waits for it to exit.
func (f *Follower) stopPolling() {
	f.pollMu.Lock()
	cancel, done := f.pollCancel, f.pollDone
	f.pollCancel, f.pollDone = nil, nil
	f.pollMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (f *Follower) setConnectivity(c viewstate.Connectivity) {
	if f.store.Connectivity() == c {
		return
	}
	f.store.SetConnectivity(c)
	f.emit(Update{Kind: UpdateConnectivity, Connectivity: c})
}

func (f *Follower) knownBridge() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bridgeID
}

func (f *Follower) setBridge(id string) {
	if id == "" {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bridgeID = id
}

func (f *Follower) emit(u Update) {
	if f.cfg.OnUpdate != nil {
		f.cfg.OnUpdate(u)
	}
}

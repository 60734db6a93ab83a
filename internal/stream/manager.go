// Package stream implements the resilient streaming client for the market
// data feed: a single connection manager that keeps the desired subscription
// set correct across disconnects, recovers from transient failures with
// exponential backoff, honors server rate limits, and exposes the latest tick
// per instrument without ever blocking the caller.
//
// The manager is an explicit state machine driven by one event-loop
// goroutine. Network events, timer fires, and public calls are posted onto a
// single channel, so every state transition is atomic with respect to all
// other events. Timers are named handles owned by the loop; Destroy stops
// them all and a destroyed flag is re-checked before every callback.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tickstream/internal/model"
)

var (
	// ErrDestroyed is returned by every public call after Destroy.
	ErrDestroyed = errors.New("stream manager destroyed")

	// ErrNotEligible is the terminal dial error when the pre-flight check
	// definitively reports the client may not connect.
	ErrNotEligible = errors.New("feed reported client not eligible to connect")

	// ErrInvalidMode is returned for subscription modes the feed does not know.
	ErrInvalidMode = errors.New("invalid subscription mode")
)

// ManagerConfig configures a streaming manager. Zero values get defaults.
type ManagerConfig struct {
	WSURL       string // e.g. "wss://stream.example.com/market"; token is appended as ?token=
	AccessToken string

	// Eligibility is the optional pre-flight check run before each dial.
	Eligibility EligibilityChecker

	HeartbeatInterval   time.Duration // ping cadence while connected (default 30s)
	HealthCheckInterval time.Duration // staleness watchdog cadence (default 60s)
	StaleThreshold      time.Duration // inbound silence before a nudge ping (default 120s)
	ConnectTimeout      time.Duration // upper bound on one connection attempt (default 10s)

	// DefaultCooldown applies when a rate-limit frame omits retryAfter.
	DefaultCooldown time.Duration // default 60s

	BackoffBase time.Duration // default 1s
	BackoffMax  time.Duration // default 30s
	MaxAttempts int           // default 10

	BatchSize  int           // max tokens per subscribe frame (default 50)
	BatchDelay time.Duration // stagger between subscription chunks (default 100ms)

	// Observer exports counters to an external metrics system. Optional.
	Observer Observer
}

func (c *ManagerConfig) applyDefaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 60 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 120 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.DefaultCooldown <= 0 {
		c.DefaultCooldown = 60 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchDelay <= 0 {
		c.BatchDelay = 100 * time.Millisecond
	}
	if c.Observer == nil {
		c.Observer = noopObserver{}
	}
}

// timerKind names the timers the manager owns.
type timerKind int

const (
	timerReconnect timerKind = iota
	timerHeartbeat
	timerHealth
	timerRateLimit
	timerDrain
	timerCount
)

// Events posted to the manager loop.
type (
	evConnect     struct{}
	evDestroy     struct{}
	evSubscribe   struct {
		tokens []int64
		mode   Mode
	}
	evUnsubscribe struct{ tokens []int64 }
	evSetMode     struct {
		tokens []int64
		mode   Mode
	}
	evSend    struct{ frame OutboundFrame }
	evDialOK  struct {
		gen  int
		conn *websocket.Conn
	}
	evDialErr struct {
		gen      int
		err      error
		terminal bool
	}
	evFrame struct {
		gen  int
		data []byte
	}
	evClosed struct {
		gen  int
		code int
		err  error
	}
	evTimer struct{ kind timerKind }
)

// Manager owns exactly one feed connection and every timer attached to it.
// Construct with New, release with Destroy — mandatory on every code path
// that stops using the manager.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger
	obs    Observer
	cache  *Cache

	events chan interface{}
	done   chan struct{}

	destroyed   atomic.Bool
	stateMirror atomic.Int32

	// Everything below is owned by the event loop.
	state    State
	conn     *websocket.Conn
	gen      int // connection generation; events from stale generations are dropped
	attempt  int
	registry *Registry
	queue    outQueue
	gate     rateGate
	draining bool
	timers   [timerCount]*time.Timer

	stats statsBox

	// Callbacks are invoked from the event loop. Set them before Connect;
	// none fires after Destroy.
	OnStateChange func(state State, message string)
	OnTick        func(t model.Tick)
	OnOrderUpdate func(data []byte)
	OnError       func(code, message string)
}

// New creates a manager and starts its event loop. The manager begins in the
// disconnected state; call Connect to open the feed.
func New(cfg ManagerConfig, logger *slog.Logger) *Manager {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "stream"),
		obs:      cfg.Observer,
		cache:    NewCache(),
		events:   make(chan interface{}, 256),
		done:     make(chan struct{}),
		state:    StateDisconnected,
		registry: NewRegistry(),
	}

	go m.run()
	return m
}

// ── Public API ──
// All calls are non-blocking: they post an intent onto the event loop.

// Connect opens the feed connection. No-op if an attempt is already in
// flight or a socket is already open.
func (m *Manager) Connect() error {
	if m.destroyed.Load() {
		return ErrDestroyed
	}
	m.post(evConnect{})
	return nil
}

// Subscribe registers tokens at the given mode and pushes subscribe frames,
// batched in chunks of at most BatchSize.
func (m *Manager) Subscribe(tokens []int64, mode Mode) error {
	if m.destroyed.Load() {
		return ErrDestroyed
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if len(tokens) == 0 {
		return nil
	}
	m.post(evSubscribe{tokens: append([]int64(nil), tokens...), mode: mode})
	return nil
}

// Unsubscribe removes tokens from the registry and pushes an unsubscribe
// frame for exactly those tokens, regardless of connection state.
func (m *Manager) Unsubscribe(tokens []int64) error {
	if m.destroyed.Load() {
		return ErrDestroyed
	}
	if len(tokens) == 0 {
		return nil
	}
	m.post(evUnsubscribe{tokens: append([]int64(nil), tokens...)})
	return nil
}

// SetMode changes the data-detail mode for tokens that are already
// subscribed and pushes a setMode frame for them.
func (m *Manager) SetMode(tokens []int64, mode Mode) error {
	if m.destroyed.Load() {
		return ErrDestroyed
	}
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if len(tokens) == 0 {
		return nil
	}
	m.post(evSetMode{tokens: append([]int64(nil), tokens...), mode: mode})
	return nil
}

// Ping requests an application-level ping. Like every send it is queued when
// the transport is down or rate-limited, and it drains the queue otherwise.
func (m *Manager) Ping() error {
	if m.destroyed.Load() {
		return ErrDestroyed
	}
	m.post(evSend{frame: OutboundFrame{Action: ActionPing}})
	return nil
}

// Destroy makes the manager permanently inert: every timer is cancelled, the
// transport is closed with a normal close code, and no callback fires
// afterward. Idempotent. Must not be called from within a callback.
func (m *Manager) Destroy() {
	if !m.destroyed.CompareAndSwap(false, true) {
		return
	}
	m.post(evDestroy{})
	<-m.done
}

// State returns the current connection state.
func (m *Manager) State() State {
	return State(m.stateMirror.Load())
}

// Stats returns a snapshot of the streaming counters.
func (m *Manager) Stats() Stats {
	return m.stats.snapshot()
}

// Cache returns the latest-tick-per-instrument view. Safe for concurrent
// reads at any rate.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// ── Event loop ──

// post delivers an event to the loop. Returns false when the loop has
// already exited; the caller then owns any resource the event carries.
func (m *Manager) post(ev interface{}) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) run() {
	for ev := range m.events {
		if m.destroyed.Load() {
			if _, ok := ev.(evDestroy); !ok {
				discardEvent(ev)
				continue
			}
		}
		if quit := m.handle(ev); quit {
			break
		}
	}
	close(m.done)

	// A dial racing Destroy may still have delivered a fresh socket.
	for {
		select {
		case ev := <-m.events:
			discardEvent(ev)
		default:
			return
		}
	}
}

// discardEvent releases resources carried by an event that will never be
// handled.
func discardEvent(ev interface{}) {
	if e, ok := ev.(evDialOK); ok {
		e.conn.Close()
	}
}

func (m *Manager) handle(ev interface{}) (quit bool) {
	switch e := ev.(type) {
	case evConnect:
		m.handleConnect()
	case evDestroy:
		m.teardown()
		return true
	case evSubscribe:
		m.handleSubscribe(e.tokens, e.mode)
	case evUnsubscribe:
		m.handleUnsubscribe(e.tokens)
	case evSetMode:
		m.handleSetMode(e.tokens, e.mode)
	case evSend:
		m.enqueue(e.frame)
		m.drain()
	case evDialOK:
		m.handleDialOK(e)
	case evDialErr:
		m.handleDialErr(e)
	case evFrame:
		if e.gen == m.gen {
			m.dispatch(e.data)
		}
	case evClosed:
		m.handleClosed(e)
	case evTimer:
		m.handleTimer(e.kind)
	}
	return false
}

func (m *Manager) handleConnect() {
	switch m.state {
	case StateConnecting, StateConnected, StateNotReady, StateReconnecting:
		// Attempt already in flight or socket already open.
		m.logger.Debug("connect ignored", "state", m.state.String())
		return
	}
	// Explicit connect from a terminal state starts a fresh backoff cycle.
	m.attempt = 0
	m.startAttempt()
}

func (m *Manager) startAttempt() {
	m.setState(StateConnecting, "opening feed connection")
	m.gen++
	go m.dial(m.gen)
}

// dial runs off the loop; it only posts events back.
func (m *Manager) dial(gen int) {
	deadline := time.Now().Add(m.cfg.ConnectTimeout)

	if m.cfg.Eligibility != nil {
		ctx, cancel := context.WithDeadline(context.Background(), deadline)
		ok, err := m.cfg.Eligibility.CanConnect(ctx)
		cancel()
		if err != nil {
			m.post(evDialErr{gen: gen, err: err})
			return
		}
		if !ok {
			m.post(evDialErr{gen: gen, err: ErrNotEligible, terminal: true})
			return
		}
	}

	u := m.cfg.WSURL
	if m.cfg.AccessToken != "" {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		u += sep + "token=" + url.QueryEscape(m.cfg.AccessToken)
	}

	dialer := websocket.Dialer{HandshakeTimeout: time.Until(deadline)}
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		m.post(evDialErr{gen: gen, err: err})
		return
	}
	if !m.post(evDialOK{gen: gen, conn: conn}) {
		conn.Close()
	}
}

func (m *Manager) handleDialOK(e evDialOK) {
	if e.gen != m.gen || m.destroyed.Load() {
		e.conn.Close()
		return
	}

	m.conn = e.conn
	m.attempt = 0
	now := time.Now()
	m.stats.connected(now)
	m.setState(StateConnected, "feed connected")

	go m.readLoop(e.gen, e.conn)

	// Replay supersedes subscription frames queued while down; the registry
	// is the source of truth for a fresh connection.
	m.dropSubscriptionFrames()
	for _, f := range m.registry.Batches(m.cfg.BatchSize) {
		m.enqueue(f)
	}
	m.drain()

	m.armTimer(timerHeartbeat, m.cfg.HeartbeatInterval)
	m.armTimer(timerHealth, m.cfg.HealthCheckInterval)
}

func (m *Manager) handleDialErr(e evDialErr) {
	if e.gen != m.gen {
		return
	}
	if e.terminal {
		// The service has already signaled it cannot serve this client;
		// retrying the socket would be churn.
		m.setState(StateError, e.err.Error())
		m.emitError("NOT_ELIGIBLE", e.err.Error())
		return
	}
	m.logger.Warn("connection attempt failed", "error", e.err)
	m.scheduleReconnect(e.err.Error())
}

func (m *Manager) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.post(evClosed{gen: gen, code: closeCode(err), err: err})
			return
		}
		m.post(evFrame{gen: gen, data: data})
	}
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return 0
}

func (m *Manager) handleClosed(e evClosed) {
	if e.gen != m.gen {
		return
	}

	m.stopTimer(timerHeartbeat)
	m.stopTimer(timerHealth)
	m.stopTimer(timerDrain)
	m.draining = false
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	// Frames still in flight from the old socket are stale now.
	m.gen++

	switch e.code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		// Deliberate teardown; no auto-reconnect.
		m.setState(StateDisconnected, fmt.Sprintf("feed closed (code %d)", e.code))
	default:
		m.scheduleReconnect(fmt.Sprintf("connection lost: %v", e.err))
	}
}

func (m *Manager) scheduleReconnect(reason string) {
	if m.timers[timerReconnect] != nil {
		// A reconnect is already pending; never schedule two.
		return
	}
	if m.attempt >= m.cfg.MaxAttempts {
		m.setState(StateError, "reconnect attempts exhausted")
		m.emitError("RECONNECT_EXHAUSTED", reason)
		return
	}

	delay := BackoffDelay(m.attempt, m.cfg.BackoffBase, m.cfg.BackoffMax)
	m.attempt++
	m.setState(StateReconnecting, reason)
	m.obs.ReconnectScheduled()
	m.logger.Warn("reconnect scheduled",
		"attempt", m.attempt,
		"delay", delay,
		"reason", reason,
	)
	m.armTimer(timerReconnect, delay)
}

func (m *Manager) handleTimer(kind timerKind) {
	switch kind {
	case timerReconnect:
		m.timers[timerReconnect] = nil
		m.startAttempt()

	case timerHeartbeat:
		m.armTimer(timerHeartbeat, m.cfg.HeartbeatInterval)
		if m.state.live() {
			m.enqueue(OutboundFrame{Action: ActionPing, Timestamp: time.Now().UnixMilli()})
			m.drain()
		}

	case timerHealth:
		m.armTimer(timerHealth, m.cfg.HealthCheckInterval)
		if m.state.live() && time.Since(m.stats.lastActivity()) > m.cfg.StaleThreshold {
			// A nudge, not a failure signal: actual failures surface as
			// transport close or error events.
			m.logger.Warn("no inbound activity, nudging feed",
				"stale_for", time.Since(m.stats.lastActivity()),
			)
			m.enqueue(OutboundFrame{Action: ActionPing, Timestamp: time.Now().UnixMilli()})
			m.drain()
		}

	case timerRateLimit:
		m.timers[timerRateLimit] = nil
		m.gate.open()
		m.logger.Info("rate limit cooldown elapsed")
		// The queue is NOT flushed here; it drains on the next send
		// attempt or reconnect, preserving FIFO order.

	case timerDrain:
		m.timers[timerDrain] = nil
		m.draining = false
		m.drain()
	}
}

// ── Subscription intents ──

func (m *Manager) handleSubscribe(tokens []int64, mode Mode) {
	m.registry.Set(tokens, mode)
	m.stats.setSubscriptions(m.registry.Len())
	for _, chunk := range chunkTokens(tokens, m.cfg.BatchSize) {
		m.enqueue(OutboundFrame{Action: ActionSubscribe, Tokens: chunk, Mode: mode})
	}
	m.drain()
}

func (m *Manager) handleUnsubscribe(tokens []int64) {
	m.registry.Remove(tokens)
	m.stats.setSubscriptions(m.registry.Len())
	for _, chunk := range chunkTokens(tokens, m.cfg.BatchSize) {
		m.enqueue(OutboundFrame{Action: ActionUnsubscribe, Tokens: chunk})
	}
	m.drain()
}

func (m *Manager) handleSetMode(tokens []int64, mode Mode) {
	changed := make([]int64, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := m.registry.Mode(t); ok {
			changed = append(changed, t)
		}
	}
	if len(changed) == 0 {
		return
	}
	m.registry.Set(changed, mode)
	for _, chunk := range chunkTokens(changed, m.cfg.BatchSize) {
		m.enqueue(OutboundFrame{Action: ActionSetMode, Tokens: chunk, Mode: mode})
	}
	m.drain()
}

// ── Outbound path ──

func (m *Manager) enqueue(f OutboundFrame) {
	m.queue.push(f)
	m.obs.SendQueued()
}

// drain sends queued frames in FIFO order while the transport is live and
// the rate gate open. Subscription frames are staggered by BatchDelay.
func (m *Manager) drain() {
	if m.draining {
		return
	}
	if m.conn == nil || !m.state.live() {
		return
	}

	for {
		if m.gate.isLimited(time.Now()) {
			return
		}
		f, ok := m.queue.pop()
		if !ok {
			return
		}
		if err := m.writeFrame(f); err != nil {
			m.logger.Error("frame write failed", "action", f.Action, "error", err)
			m.queue.pushFront(f)
			// The read loop surfaces the broken socket as a close event.
			return
		}
		if f.staggered() && m.queue.len() > 0 {
			m.draining = true
			m.armTimer(timerDrain, m.cfg.BatchDelay)
			return
		}
	}
}

func (m *Manager) writeFrame(f OutboundFrame) error {
	if f.Timestamp == 0 {
		f.Timestamp = time.Now().UnixMilli()
	}
	return m.conn.WriteJSON(f)
}

// dropSubscriptionFrames removes queued subscribe/unsubscribe/setMode frames
// before a registry replay; the replay already carries the final desired set.
func (m *Manager) dropSubscriptionFrames() {
	kept := m.queue.items[:0]
	for _, f := range m.queue.items {
		if !f.staggered() {
			kept = append(kept, f)
		}
	}
	m.queue.items = kept
}

// ── Timers, state, teardown ──

func (m *Manager) armTimer(kind timerKind, d time.Duration) {
	if m.destroyed.Load() {
		return
	}
	m.stopTimer(kind)
	m.timers[kind] = time.AfterFunc(d, func() {
		if m.destroyed.Load() {
			return
		}
		m.post(evTimer{kind: kind})
	})
}

func (m *Manager) stopTimer(kind timerKind) {
	if t := m.timers[kind]; t != nil {
		t.Stop()
		m.timers[kind] = nil
	}
}

func (m *Manager) setState(s State, message string) {
	if m.destroyed.Load() || s == m.state {
		return
	}
	prev := m.state
	m.state = s
	m.stateMirror.Store(int32(s))
	m.obs.StateChanged(s.String())
	m.logger.Info("connection state change",
		"from", prev.String(),
		"to", s.String(),
		"message", message,
	)
	if m.OnStateChange != nil {
		m.OnStateChange(s, message)
	}
}

func (m *Manager) emitError(code, message string) {
	if m.destroyed.Load() || m.OnError == nil {
		return
	}
	m.OnError(code, message)
}

func (m *Manager) teardown() {
	for k := timerKind(0); k < timerCount; k++ {
		m.stopTimer(k)
	}
	if m.conn != nil {
		m.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		m.conn.Close()
		m.conn = nil
	}
	m.gen++
	m.state = StateDisconnected
	m.stateMirror.Store(int32(StateDisconnected))
	m.logger.Info("stream manager destroyed")
}

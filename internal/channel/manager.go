// Package channel supervises one push-based status channel per job id: it dials,
// fans events out to listeners, reconnects with exponential backoff and tears the
// channel down once a terminal event has been delivered.
package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"structurizer/internal/models"
	"structurizer/internal/translator"
)

// Close codes used by the manager.
const (
	CloseNormal   = websocket.CloseNormalClosure
	CloseAbnormal = websocket.CloseAbnormalClosure
)

// ErrRetriesExhausted is carried by the synthetic terminal event sent when the
// reconnect budget is used up.
var ErrRetriesExhausted = errors.New("connection lost, retries exhausted")

// Conn is one open duplex channel. ReadMessage returns a *websocket.CloseError when
// the peer closes the channel.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close(code int, reason string) error
}

// Dialer opens the status channel for a job.
type Dialer interface {
	Dial(ctx context.Context, jobID string) (Conn, error)
}

// Timer is a pending reconnect.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d without blocking the caller.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Listener receives events for one job id. Either callback may be nil.
type Listener struct {
	OnEvent func(models.StatusEvent)
	OnError func(error)
}

// Options configures reconnection and dialing.
type Options struct {
	BaseDelay   time.Duration
	MaxAttempts int
	DialTimeout time.Duration
	AfterFunc   AfterFunc
}

func (o Options) withDefaults() Options {
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxAttempts < 0 {
		o.MaxAttempts = 0
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.AfterFunc == nil {
		o.AfterFunc = realAfterFunc
	}
	return o
}

type channel struct {
	jobID     string
	listeners []Listener
	conn      Conn
	dialing   bool
	gen       uint64
	attempts  int
	backoff   backoff.BackOff
	timer     Timer
}

// Manager owns every status channel of the session. It is safe for concurrent use;
// listeners are never invoked while the manager's lock is held.
type Manager struct {
	dialer Dialer
	opts   Options

	mu       sync.Mutex
	channels map[string]*channel
}

// NewManager creates a manager that dials through d.
func NewManager(d Dialer, opts Options) *Manager {
	return &Manager{
		dialer:   d,
		opts:     opts.withDefaults(),
		channels: make(map[string]*channel),
	}
}

// newBackoff yields base*2^n for attempt n and stops after MaxAttempts retries.
func (m *Manager) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.opts.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = m.opts.BaseDelay << uint(m.opts.MaxAttempts)
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(m.opts.MaxAttempts))
}

// Subscribe registers l for jobID, opening a channel if none exists. It returns
// immediately; events arrive later on the channel's reader goroutine.
func (m *Manager) Subscribe(jobID string, l Listener) error {
	if jobID == "" {
		return models.ErrEmptyJobID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.channels[jobID]; ok {
		ch.listeners = append(ch.listeners, l)
		return nil
	}

	ch := &channel{
		jobID:     jobID,
		listeners: []Listener{l},
		backoff:   m.newBackoff(),
	}
	m.channels[jobID] = ch
	m.open(ch)
	return nil
}

// Unsubscribe closes the channel for jobID with a normal closure and forgets it.
// Calling it for an unknown id is a no-op.
func (m *Manager) Unsubscribe(jobID string) {
	m.mu.Lock()
	ch, ok := m.channels[jobID]
	var conn Conn
	if ok {
		conn = m.detach(ch)
	}
	m.mu.Unlock()

	if ok {
		closeConn(jobID, conn, "unsubscribed")
	}
}

// UnsubscribeAll tears down every channel and pending reconnect.
func (m *Manager) UnsubscribeAll() {
	m.mu.Lock()
	conns := make(map[string]Conn, len(m.channels))
	for jobID, ch := range m.channels {
		conns[jobID] = m.detach(ch)
	}
	m.mu.Unlock()

	for jobID, conn := range conns {
		closeConn(jobID, conn, "session closed")
	}
}

// Active reports whether bookkeeping exists for jobID.
func (m *Manager) Active(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[jobID]
	return ok
}

// ListenerCount returns the number of listeners registered for jobID.
func (m *Manager) ListenerCount(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ch, ok := m.channels[jobID]; ok {
		return len(ch.listeners)
	}
	return 0
}

// detach removes ch from the registry, stops its timer and hands back the open
// connection, if any, for the caller to close. Caller holds m.mu.
func (m *Manager) detach(ch *channel) Conn {
	delete(m.channels, ch.jobID)
	if ch.timer != nil {
		ch.timer.Stop()
		ch.timer = nil
	}
	conn := ch.conn
	ch.conn = nil
	return conn
}

func closeConn(jobID string, conn Conn, reason string) {
	if conn == nil {
		return
	}
	if err := conn.Close(CloseNormal, reason); err != nil {
		log.WithField("job_id", jobID).Debugf("closing status channel: %v", err)
	}
}

// current reports whether ch is still registered and gen is its latest connection.
// Caller holds m.mu.
func (m *Manager) current(ch *channel, gen uint64) bool {
	return m.channels[ch.jobID] == ch && ch.gen == gen
}

// open starts dialing on a new goroutine. Caller holds m.mu.
func (m *Manager) open(ch *channel) {
	ch.gen++
	ch.dialing = true
	go m.dial(ch, ch.gen)
}

func (m *Manager) dial(ch *channel, gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DialTimeout)
	conn, err := m.dialer.Dial(ctx, ch.jobID)
	cancel()

	m.mu.Lock()
	if !m.current(ch, gen) {
		m.mu.Unlock()
		if err == nil {
			_ = conn.Close(CloseNormal, "unsubscribed")
		}
		return
	}
	ch.dialing = false
	if err != nil {
		listeners := append([]Listener(nil), ch.listeners...)
		m.mu.Unlock()

		log.WithField("job_id", ch.jobID).Warnf("status channel dial failed: %v", err)
		notifyError(listeners, err)
		m.handleClose(ch, gen, CloseAbnormal)
		return
	}
	ch.conn = conn
	ch.attempts = 0
	ch.backoff.Reset()
	m.mu.Unlock()

	log.WithField("job_id", ch.jobID).Info("status channel open")
	m.readLoop(ch, gen, conn)
}

func (m *Manager) readLoop(ch *channel, gen uint64, conn Conn) {
	logger := log.WithField("job_id", ch.jobID)
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			code := CloseAbnormal
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				code = closeErr.Code
			} else if listeners, ok := m.listenersFor(ch, gen); ok {
				logger.Warnf("status channel transport error: %v", err)
				notifyError(listeners, err)
			}
			m.handleClose(ch, gen, code)
			return
		}

		var ev models.StatusEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warnf("dropping malformed status message: %v", err)
			continue
		}

		listeners, ok := m.listenersFor(ch, gen)
		if !ok {
			return
		}
		for _, l := range listeners {
			if l.OnEvent != nil {
				l.OnEvent(ev)
			}
		}

		if translator.IsTerminal(ev) {
			m.teardown(ch, gen)
			return
		}
	}
}

func (m *Manager) listenersFor(ch *channel, gen uint64) ([]Listener, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.current(ch, gen) {
		return nil, false
	}
	return append([]Listener(nil), ch.listeners...), true
}

// teardown closes the channel after a terminal event; nothing further is expected.
func (m *Manager) teardown(ch *channel, gen uint64) {
	m.mu.Lock()
	if !m.current(ch, gen) {
		m.mu.Unlock()
		return
	}
	conn := m.detach(ch)
	m.mu.Unlock()

	log.WithField("job_id", ch.jobID).Info("terminal event delivered, closing status channel")
	closeConn(ch.jobID, conn, "terminal event")
}

func (m *Manager) handleClose(ch *channel, gen uint64, code int) {
	logger := log.WithField("job_id", ch.jobID)

	m.mu.Lock()
	if !m.current(ch, gen) {
		m.mu.Unlock()
		return
	}
	ch.conn = nil

	if code == CloseNormal {
		m.detach(ch)
		m.mu.Unlock()
		logger.Info("status channel closed normally")
		return
	}

	delay := ch.backoff.NextBackOff()
	if delay == backoff.Stop {
		m.detach(ch)
		listeners := append([]Listener(nil), ch.listeners...)
		attempts := ch.attempts
		m.mu.Unlock()

		logger.WithField("attempts", attempts).Error("status channel lost, reconnect attempts exhausted")
		synthetic := models.StatusEvent{
			Status: string(translator.StatusFailed),
			Error:  ErrRetriesExhausted.Error(),
		}
		for _, l := range listeners {
			if l.OnEvent != nil {
				l.OnEvent(synthetic)
			}
		}
		return
	}

	attempt := ch.attempts
	ch.attempts++
	ch.timer = m.opts.AfterFunc(delay, func() { m.reconnect(ch) })
	m.mu.Unlock()

	logger.WithFields(log.Fields{"code": code, "attempt": attempt, "delay": delay}).
		Warn("status channel closed unexpectedly, scheduling reconnect")
}

func (m *Manager) reconnect(ch *channel) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.channels[ch.jobID] != ch {
		return
	}
	ch.timer = nil
	if ch.conn != nil || ch.dialing {
		log.WithField("job_id", ch.jobID).Debug("status channel already open, skipping reconnect")
		return
	}
	m.open(ch)
}

func notifyError(listeners []Listener, err error) {
	for _, l := range listeners {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
}

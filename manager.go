package rtu

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State is the Manager's connection state
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Opener produces a configured handle for p. OpenHandle is the default.
type Opener func(p Params, opts ...Option) (*Handle, error)

// Stats counts executor activity since the Manager was created
type Stats struct {
	Operations        uint64
	TransportFailures uint64
	Reconnects        uint64
	ReconnectFailures uint64
	Retries           uint64
}

// Manager owns zero or one live Handle and the parameters that opened it.
// All methods are safe for concurrent use; they are serialized on one
// mutex, matching the single in-flight request a half-duplex bus allows.
type Manager struct {
	mu         sync.Mutex
	codec      Codec
	logger     *zap.Logger
	opener     Opener
	handleOpts []Option
	debug      bool

	handle *Handle
	last   *Params
	stats  Stats
}

// ManagerOption is a functional option for a Manager
type ManagerOption func(*Manager)

// WithOpener replaces the function used to open handles
func WithOpener(opener Opener) ManagerOption {
	return func(m *Manager) {
		if opener != nil {
			m.opener = opener
		}
	}
}

// WithHandleOptions sets the options passed to the opener on every open,
// including reconnects
func WithHandleOptions(opts ...Option) ManagerOption {
	return func(m *Manager) {
		m.handleOpts = append(m.handleOpts, opts...)
	}
}

// WithDebug logs every operation at debug level
func WithDebug(debug bool) ManagerOption {
	return func(m *Manager) {
		m.debug = debug
	}
}

// NewManager creates a disconnected Manager that runs operations through
// codec. A nil logger disables logging. With a nil codec every operation
// fails with ErrInvalidArgument.
func NewManager(codec Codec, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if codec == nil {
		codec = noCodec{}
	}
	m := &Manager{
		codec:  codec,
		logger: logger,
		opener: OpenHandle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open closes any current handle and opens a new one with p. On success p
// becomes the parameter set used by Reconnect. On failure the manager is
// left disconnected and the previously recorded parameters are kept.
func (m *Manager) Open(p Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openLocked(p)
}

func (m *Manager) openLocked(p Params) error {
	m.closeLocked()

	opts := make([]Option, 0, len(m.handleOpts)+1)
	opts = append(opts, WithLogger(m.logger))
	opts = append(opts, m.handleOpts...)

	h, err := m.opener(p, opts...)
	if err != nil {
		m.logger.Error("open failed", zap.String("device", p.Device), zap.Error(err))
		return fmt.Errorf("%w: %s: %w", ErrConnect, p.Device, err)
	}

	m.handle = h
	m.last = &p
	m.logger.Info("connected", zap.Stringer("params", h.Params()))
	return nil
}

// Close releases the current handle, if any. Closing a closed or never
// opened manager succeeds.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *Manager) closeLocked() error {
	if m.handle == nil {
		return nil
	}
	h := m.handle
	m.handle = nil
	if err := h.Close(); err != nil {
		// The descriptor is gone either way; report but stay disconnected
		m.logger.Warn("close failed", zap.String("device", h.Params().Device), zap.Error(err))
		return err
	}
	m.logger.Debug("closed", zap.String("device", h.Params().Device))
	return nil
}

// Reconnect closes the current handle and reopens with the last successful
// parameters.
func (m *Manager) Reconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectLocked()
}

func (m *Manager) reconnectLocked() error {
	if m.last == nil {
		m.closeLocked()
		return ErrNoPriorConnection
	}
	m.stats.Reconnects++
	if err := m.openLocked(*m.last); err != nil {
		m.stats.ReconnectFailures++
		return err
	}
	return nil
}

// State reports whether a handle is currently open
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != nil {
		return Connected
	}
	return Disconnected
}

// Params returns the last parameters that opened successfully
func (m *Manager) Params() (Params, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Params{}, false
	}
	return *m.last, true
}

// Fd exposes the raw descriptor of the live handle for collaborators that
// share the physical line. The descriptor stays valid only until the next
// Close or Reconnect; use WithLink for guarded access.
func (m *Manager) Fd() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return -1, false
	}
	return m.handle.Fd(), true
}

// WithLink runs fn with the live handle while holding the manager lock, so
// raw traffic never interleaves with protocol requests or a reconnect. No
// retry is attempted.
func (m *Manager) WithLink(fn func(Link) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return ErrNotConnected
	}
	return fn(m.handle)
}

// Stats returns a snapshot of the executor counters
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

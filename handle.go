package rtu

import (
	"sync"
	"time"
)

// Handle is one open, configured serial session: exactly one Device plus
// the protocol session state. It implements Link. A Handle is owned by a
// single Manager; once closed it cannot be reopened. Close is safe against
// concurrent I/O on the same Handle.
type Handle struct {
	mu     sync.Mutex
	dev    Device
	params Params
	config Config
	closed bool
}

// Ensure Handle implements Link at compile time
var _ Link = (*Handle)(nil)

// NewHandle wraps an already configured Device. OpenHandle uses it for tty
// devices; other Device implementations (simulators, bridges) can use it
// directly.
func NewHandle(dev Device, p Params, opts ...Option) (*Handle, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return newHandle(dev, p, config), nil
}

func newHandle(dev Device, p Params, config Config) *Handle {
	return &Handle{dev: dev, params: p, config: config}
}

// Close releases the device. It is safe to call more than once.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	return h.dev.Close()
}

// Closed reports whether Close has been called
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Device calls hold h.mu so Close waits for an in-flight read or write.
// Reads on a tty are bounded by the handle timeouts.

func (h *Handle) Read(buf []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	return h.dev.Read(buf)
}

func (h *Handle) Write(data []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	return h.dev.Write(data)
}

// ReadTimeout waits at most timeout for input
func (h *Handle) ReadTimeout(buf []byte, timeout time.Duration) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrHandleClosed
	}
	return h.dev.ReadTimeout(buf, timeout)
}

// Flush discards pending input and output
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	return h.dev.Flush()
}

// Drain blocks until queued output has left the transmitter
func (h *Handle) Drain() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	return h.dev.Drain()
}

// Fd returns the OS descriptor, or -1 once closed
func (h *Handle) Fd() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return -1
	}
	return h.dev.Fd()
}

func (h *Handle) Params() Params                 { return h.params }
func (h *Handle) SlaveID() byte                  { return byte(h.params.SlaveID) }
func (h *Handle) ResponseTimeout() time.Duration { return h.config.ResponseTimeout }
func (h *Handle) ByteTimeout() time.Duration     { return h.config.ByteTimeout }
func (h *Handle) ErrorRecovery() bool            { return h.config.ErrorRecovery }

package rtu

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice is an in-memory Device that records traffic
type fakeDevice struct {
	mu      sync.Mutex
	fd      int
	written []byte
	rx      []byte
	closes  int
	flushes int
	late    int // calls that reached the device after Close
	onClose func()
}

func (d *fakeDevice) Read(buf []byte) (int, error) { return d.ReadTimeout(buf, 0) }

func (d *fakeDevice) ReadTimeout(buf []byte, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closes > 0 {
		d.late++
	}
	if len(d.rx) == 0 {
		return 0, ErrReadTimeout
	}
	n := copy(buf, d.rx)
	d.rx = d.rx[n:]
	return n, nil
}

func (d *fakeDevice) Write(data []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closes > 0 {
		d.late++
	}
	d.written = append(d.written, data...)
	return len(data), nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	d.closes++
	first := d.closes == 1
	d.mu.Unlock()
	if first && d.onClose != nil {
		d.onClose()
	}
	return nil
}

func (d *fakeDevice) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flushes++
	d.rx = nil
	return nil
}

func (d *fakeDevice) Drain() error { return nil }
func (d *fakeDevice) Fd() int      { return d.fd }

func TestNewHandle(t *testing.T) {
	dev := &fakeDevice{fd: 7}
	p := DefaultParams("/dev/ttyFAKE")
	p.SlaveID = 12

	h, err := NewHandle(dev, p, WithResponseTimeout(time.Second), WithByteTimeout(50*time.Millisecond), WithErrorRecovery(false))
	require.NoError(t, err)

	assert.Equal(t, p, h.Params())
	assert.Equal(t, byte(12), h.SlaveID())
	assert.Equal(t, time.Second, h.ResponseTimeout())
	assert.Equal(t, 50*time.Millisecond, h.ByteTimeout())
	assert.False(t, h.ErrorRecovery())
	assert.Equal(t, 7, h.Fd())
	assert.False(t, h.Closed())
}

func TestNewHandleRejectsInvalid(t *testing.T) {
	p := DefaultParams("/dev/ttyFAKE")
	p.SlaveID = 0
	_, err := NewHandle(&fakeDevice{}, p)
	assert.ErrorIs(t, err, ErrUnsupportedConfig)

	_, err = NewHandle(&fakeDevice{}, DefaultParams("/dev/ttyFAKE"), WithByteTimeout(-1))
	assert.ErrorIs(t, err, ErrUnsupportedConfig)
}

func TestHandleIO(t *testing.T) {
	dev := &fakeDevice{fd: 3, rx: []byte{0xAA, 0xBB}}
	h, err := NewHandle(dev, DefaultParams("/dev/ttyFAKE"))
	require.NoError(t, err)

	n, err := h.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, dev.written)

	buf := make([]byte, 4)
	n, err = h.ReadTimeout(buf, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, buf[:n])

	_, err = h.Read(buf)
	assert.ErrorIs(t, err, ErrReadTimeout)

	require.NoError(t, h.Flush())
	require.NoError(t, h.Drain())
	assert.Equal(t, 1, dev.flushes)
}

func TestHandleCloseReleasesOnce(t *testing.T) {
	dev := &fakeDevice{fd: 9}
	h, err := NewHandle(dev, DefaultParams("/dev/ttyFAKE"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, h.Close())
	}
	assert.Equal(t, 1, dev.closes)
	assert.True(t, h.Closed())
	assert.Equal(t, -1, h.Fd())

	_, err = h.Write([]byte{1})
	assert.ErrorIs(t, err, ErrHandleClosed)
	_, err = h.ReadTimeout(make([]byte, 1), time.Millisecond)
	assert.ErrorIs(t, err, ErrHandleClosed)
	assert.ErrorIs(t, h.Flush(), ErrHandleClosed)
	assert.ErrorIs(t, h.Drain(), ErrHandleClosed)
}

func TestHandleCloseWaitsForIO(t *testing.T) {
	dev := &fakeDevice{fd: 9}
	h, err := NewHandle(dev, DefaultParams("/dev/ttyFAKE"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 4)
			for j := 0; j < 200; j++ {
				_, _ = h.Write([]byte{0x01})
				_, _ = h.ReadTimeout(buf, time.Millisecond)
			}
		}()
	}
	time.Sleep(time.Millisecond)
	require.NoError(t, h.Close())
	wg.Wait()

	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Zero(t, dev.late)
	assert.Equal(t, 1, dev.closes)
}

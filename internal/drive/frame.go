// Package drive encodes the drive/steer command used on the bus, both as
// the raw 8-byte frame and as Modbus registers and coils.
package drive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/allbin/go-rtu"
)

// FrameSize is the length of a raw drive frame on the wire
const FrameSize = 8

// Control bits in byte 4
const (
	bitValid    = 1 << 0
	bitForward  = 1 << 1
	bitBackward = 1 << 2
)

var (
	ErrFrameSize  = errors.New("drive frame must be 8 bytes")
	ErrShortWrite = errors.New("drive frame partially written")
)

// Frame is one drive/steer command
type Frame struct {
	RPM      uint16
	Angle    int16 // hundredths of a degree
	Valid    bool
	Forward  bool
	Backward bool
}

// Degrees returns the steering angle in degrees
func (f Frame) Degrees() float64 {
	return float64(f.Angle) / 100
}

func (f Frame) String() string {
	return fmt.Sprintf("RPM=%d Angle=%.2f° Fwd=%t Bwd=%t", f.RPM, f.Degrees(), f.Forward, f.Backward)
}

// Encode lays the frame out little-endian; bytes 5-7 are reserved zero
func (f Frame) Encode() [FrameSize]byte {
	var buf [FrameSize]byte
	binary.LittleEndian.PutUint16(buf[0:], f.RPM)
	binary.LittleEndian.PutUint16(buf[2:], uint16(f.Angle))
	if f.Valid {
		buf[4] |= bitValid
	}
	if f.Forward {
		buf[4] |= bitForward
	}
	if f.Backward {
		buf[4] |= bitBackward
	}
	return buf
}

// Decode parses a raw frame. Reserved bytes are ignored.
func Decode(buf []byte) (Frame, error) {
	if len(buf) != FrameSize {
		return Frame{}, fmt.Errorf("%w: got %d", ErrFrameSize, len(buf))
	}
	return Frame{
		RPM:      binary.LittleEndian.Uint16(buf[0:]),
		Angle:    int16(binary.LittleEndian.Uint16(buf[2:])),
		Valid:    buf[4]&bitValid != 0,
		Forward:  buf[4]&bitForward != 0,
		Backward: buf[4]&bitBackward != 0,
	}, nil
}

// Write sends f as one raw frame and waits for it to leave the
// transmitter, so the RS-485 driver releases the bus before the next
// request.
func Write(l rtu.Link, f Frame) error {
	buf := f.Encode()
	n, err := l.Write(buf[:])
	if err != nil {
		return fmt.Errorf("write drive frame: %w", err)
	}
	if n != FrameSize {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, FrameSize)
	}
	return l.Drain()
}

// Read waits up to timeout for the next complete raw frame
func Read(l rtu.Link, timeout time.Duration) (Frame, error) {
	buf := make([]byte, FrameSize)
	got := 0
	deadline := time.Now().Add(timeout)
	for got < FrameSize {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Frame{}, fmt.Errorf("%w after %d bytes", rtu.ErrReadTimeout, got)
		}
		n, err := l.ReadTimeout(buf[got:], remaining)
		if err != nil {
			if got > 0 && errors.Is(err, rtu.ErrReadTimeout) {
				return Frame{}, fmt.Errorf("%w after %d bytes", rtu.ErrReadTimeout, got)
			}
			return Frame{}, err
		}
		got += n
	}
	return Decode(buf)
}

// Step is one point of a drive profile
type Step struct {
	RPM   int
	Angle int16 // hundredths of a degree
}

// Frame converts the step to a raw frame
func (s Step) Frame() Frame {
	return Frame{
		RPM:      uint16(s.RPM),
		Angle:    s.Angle,
		Valid:    true,
		Forward:  s.RPM > 0,
		Backward: s.RPM < 0,
	}
}

// Registers is the step as holding registers 0-1: rpm and angle
func (s Step) Registers() []uint16 {
	return []uint16{uint16(s.RPM), uint16(s.Angle)}
}

// Coils is the step as coils 0-3: valid, forward, backward, enable
func (s Step) Coils() []bool {
	return []bool{true, s.RPM > 0, s.RPM < 0, true}
}

// Sweep angle limits in degrees
const (
	MinAngle = -180.0
	MaxAngle = 179.99
)

// Sweep ramps rpm from start down to 0 in unit steps while the steering
// angle sweeps linearly from MinAngle to MaxAngle.
func Sweep(start int) []Step {
	if start < 0 {
		start = 0
	}
	steps := start + 1
	out := make([]Step, steps)
	for i := range out {
		frac := 0.0
		if steps > 1 {
			frac = float64(i) / float64(steps-1)
		}
		deg := MinAngle + frac*(MaxAngle-MinAngle)
		out[i] = Step{
			RPM:   start - i,
			Angle: int16(math.Round(deg * 100)),
		}
	}
	return out
}

// Package sim is an in-memory RTU slave attached to a virtual serial line.
// It speaks real frames, so the codec and the resilient manager can be
// exercised without hardware.
package sim

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/modbus"
)

// Size of each simulated table
const TableSize = 1024

// EchoFunction is a vendor-specific function the slave answers by echoing
// the request payload
const EchoFunction = 0x41

// Bus is the shared wire plus one slave's register map. The map survives
// reconnects; each Open attaches a new port to the bus.
type Bus struct {
	mu sync.Mutex

	slave    byte
	coils    [TableSize]bool
	discrete [TableSize]bool
	holding  [TableSize]uint16
	input    [TableSize]uint16

	down        bool
	dropReplies int
	corrupt     int
	failAfter   int // drop the reply to request number failAfter (1-based), 0 = never

	requests int
	opens    int
	live     int
	maxLive  int
	nextFd   int
	lastOpen rtu.Params
}

// NewBus returns a healthy bus with one slave at address slave
func NewBus(slave byte) *Bus {
	return &Bus{slave: slave, nextFd: 100}
}

// SetDown makes every Open fail until cleared
func (b *Bus) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// DropReplies silently discards the next n replies
func (b *Bus) DropReplies(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropReplies = n
}

// CorruptReplies flips a CRC bit in the next n replies
func (b *Bus) CorruptReplies(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.corrupt = n
}

// FailRequest drops the reply to the n-th request seen from now on
func (b *Bus) FailRequest(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failAfter = b.requests + n
}

// SetHolding presets holding register addr
func (b *Bus) SetHolding(addr int, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holding[addr] = value
}

// Holding returns holding register addr
func (b *Bus) Holding(addr int) uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.holding[addr]
}

// SetInput presets input register addr
func (b *Bus) SetInput(addr int, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.input[addr] = value
}

// SetCoil presets coil addr
func (b *Bus) SetCoil(addr int, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coils[addr] = value
}

// Coil returns coil addr
func (b *Bus) Coil(addr int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.coils[addr]
}

// SetDiscrete presets discrete input addr
func (b *Bus) SetDiscrete(addr int, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discrete[addr] = value
}

// Requests returns the number of frames the slave has received
func (b *Bus) Requests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.requests
}

// Opens returns the number of successful opens
func (b *Bus) Opens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens
}

// Live returns the number of ports currently open
func (b *Bus) Live() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

// MaxLive returns the highest number of simultaneously open ports seen
func (b *Bus) MaxLive() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxLive
}

// LastOpen returns the parameters of the most recent successful Open
func (b *Bus) LastOpen() rtu.Params {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastOpen
}

// Open attaches a new port to the bus. It has the rtu.Opener signature.
func (b *Bus) Open(p rtu.Params, opts ...rtu.Option) (*rtu.Handle, error) {
	b.mu.Lock()
	if b.down {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w (%w): %s", rtu.ErrDeviceOpen, rtu.ErrDeviceNotFound, p.Device)
	}
	b.opens++
	b.live++
	if b.live > b.maxLive {
		b.maxLive = b.live
	}
	b.nextFd++
	b.lastOpen = p
	fd := b.nextFd
	b.mu.Unlock()

	h, err := rtu.NewHandle(&Port{bus: b, fd: fd}, p, opts...)
	if err != nil {
		b.release()
		return nil, err
	}
	return h, nil
}

func (b *Bus) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.live--
}

// Port is one open end of the virtual line. It implements rtu.Device.
type Port struct {
	mu     sync.Mutex
	bus    *Bus
	fd     int
	rx     []byte
	closed bool
}

var _ rtu.Device = (*Port)(nil)

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.bus.release()
	return nil
}

func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, rtu.ErrHandleClosed
	}
	if reply := p.bus.serve(data); reply != nil {
		p.rx = append(p.rx, reply...)
	}
	return len(data), nil
}

func (p *Port) Read(buf []byte) (int, error) {
	return p.ReadTimeout(buf, 0)
}

// ReadTimeout returns queued reply bytes. An empty queue times out at once;
// a dropped reply never arrives, so waiting would change nothing.
func (p *Port) ReadTimeout(buf []byte, _ time.Duration) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, rtu.ErrHandleClosed
	}
	if len(p.rx) == 0 {
		return 0, rtu.ErrReadTimeout
	}
	n := copy(buf, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *Port) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return rtu.ErrHandleClosed
	}
	p.rx = nil
	return nil
}

func (p *Port) Drain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return rtu.ErrHandleClosed
	}
	return nil
}

func (p *Port) Fd() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return -1
	}
	return p.fd
}

// serve handles one request ADU and returns the reply ADU, or nil when the
// slave stays silent
func (b *Bus) serve(adu []byte) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests++
	if len(adu) < 4 || binary.LittleEndian.Uint16(adu[len(adu)-2:]) != modbus.CRC16(adu[:len(adu)-2]) {
		return nil
	}
	if adu[0] != b.slave {
		return nil
	}
	if b.failAfter != 0 && b.requests == b.failAfter {
		b.failAfter = 0
		return nil
	}
	if b.dropReplies > 0 {
		b.dropReplies--
		return nil
	}

	req := adu[1 : len(adu)-2]
	resp, code := b.handle(req)
	if code != 0 {
		resp = []byte{req[0] | 0x80, code}
	}
	reply := modbus.EncodeADU(b.slave, resp)
	if b.corrupt > 0 {
		b.corrupt--
		reply[len(reply)-1] ^= 0x01
	}
	return reply
}

// handle executes req against the tables and returns the reply PDU or an
// exception code
func (b *Bus) handle(req []byte) ([]byte, byte) {
	u16 := func(i int) int { return int(binary.BigEndian.Uint16(req[i:])) }
	inRange := func(addr, n int) bool { return n >= 1 && addr+n <= TableSize }

	switch req[0] {
	case modbus.FuncReadCoils, modbus.FuncReadDiscreteInputs:
		if len(req) != 5 {
			return nil, 0x03
		}
		addr, n := u16(1), u16(3)
		if !inRange(addr, n) {
			return nil, 0x02
		}
		table := b.coils[:]
		if req[0] == modbus.FuncReadDiscreteInputs {
			table = b.discrete[:]
		}
		data := make([]byte, (n+7)/8)
		for i := 0; i < n; i++ {
			if table[addr+i] {
				data[i/8] |= 1 << (i % 8)
			}
		}
		return append([]byte{req[0], byte(len(data))}, data...), 0

	case modbus.FuncReadHoldingRegisters, modbus.FuncReadInputRegisters:
		if len(req) != 5 {
			return nil, 0x03
		}
		addr, n := u16(1), u16(3)
		if !inRange(addr, n) {
			return nil, 0x02
		}
		table := b.holding[:]
		if req[0] == modbus.FuncReadInputRegisters {
			table = b.input[:]
		}
		return registerReply(req[0], table[addr:addr+n]), 0

	case modbus.FuncWriteSingleCoil:
		if len(req) != 5 {
			return nil, 0x03
		}
		addr, v := u16(1), u16(3)
		if !inRange(addr, 1) {
			return nil, 0x02
		}
		if v != 0xFF00 && v != 0x0000 {
			return nil, 0x03
		}
		b.coils[addr] = v == 0xFF00
		return append([]byte(nil), req...), 0

	case modbus.FuncWriteSingleRegister:
		if len(req) != 5 {
			return nil, 0x03
		}
		addr := u16(1)
		if !inRange(addr, 1) {
			return nil, 0x02
		}
		b.holding[addr] = uint16(u16(3))
		return append([]byte(nil), req...), 0

	case modbus.FuncWriteMultipleCoils:
		if len(req) < 6 {
			return nil, 0x03
		}
		addr, n := u16(1), u16(3)
		if !inRange(addr, n) {
			return nil, 0x02
		}
		if int(req[5]) != (n+7)/8 || len(req) != 6+int(req[5]) {
			return nil, 0x03
		}
		for i := 0; i < n; i++ {
			b.coils[addr+i] = req[6+i/8]&(1<<(i%8)) != 0
		}
		return append([]byte(nil), req[:5]...), 0

	case modbus.FuncWriteMultipleRegisters:
		if len(req) < 6 {
			return nil, 0x03
		}
		addr, n := u16(1), u16(3)
		if !inRange(addr, n) {
			return nil, 0x02
		}
		if int(req[5]) != 2*n || len(req) != 6+2*n {
			return nil, 0x03
		}
		for i := 0; i < n; i++ {
			b.holding[addr+i] = binary.BigEndian.Uint16(req[6+2*i:])
		}
		return append([]byte(nil), req[:5]...), 0

	case modbus.FuncMaskWriteRegister:
		if len(req) != 7 {
			return nil, 0x03
		}
		addr := u16(1)
		if !inRange(addr, 1) {
			return nil, 0x02
		}
		and, or := uint16(u16(3)), uint16(u16(5))
		b.holding[addr] = (b.holding[addr] & and) | (or &^ and)
		return append([]byte(nil), req...), 0

	case modbus.FuncReadWriteMultipleRegisters:
		if len(req) < 10 {
			return nil, 0x03
		}
		raddr, rn, waddr, wn := u16(1), u16(3), u16(5), u16(7)
		if !inRange(raddr, rn) || !inRange(waddr, wn) {
			return nil, 0x02
		}
		if int(req[9]) != 2*wn || len(req) != 10+2*wn {
			return nil, 0x03
		}
		for i := 0; i < wn; i++ {
			b.holding[waddr+i] = binary.BigEndian.Uint16(req[10+2*i:])
		}
		return registerReply(req[0], b.holding[raddr:raddr+rn]), 0

	case EchoFunction:
		return append([]byte(nil), req...), 0

	default:
		return nil, 0x01
	}
}

func registerReply(function byte, values []uint16) []byte {
	out := []byte{function, byte(2 * len(values))}
	for _, v := range values {
		out = binary.BigEndian.AppendUint16(out, v)
	}
	return out
}

// Ensure Port is an io.ReadWriteCloser
var _ io.ReadWriteCloser = (*Port)(nil)

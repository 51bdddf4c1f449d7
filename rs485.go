package rtu

import (
	"errors"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// serial_rs485 flag bits from linux/serial.h
const (
	serRS485Enabled      = 1 << 0
	serRS485RTSOnSend    = 1 << 1
	serRS485RTSAfterSend = 1 << 2
	serRS485RxDuringTx   = 1 << 4
)

// serialRS485 matches the kernel's struct serial_rs485 layout
type serialRS485 struct {
	Flags              uint32
	DelayRTSBeforeSend uint32 // milliseconds
	DelayRTSAfterSend  uint32 // milliseconds
	_                  [5]uint32
}

func ioctlRS485(fd int, req uint, rs *serialRS485) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(req), uintptr(unsafe.Pointer(rs)))
	if errno != 0 {
		return errno
	}
	return nil
}

// setRS485 reads the current RS-485 state, applies cfg and writes it back.
// Drivers without RS-485 support answer ENOTTY.
func setRS485(fd int, cfg RS485Config) error {
	var rs serialRS485
	if err := ioctlRS485(fd, unix.TIOCGRS485, &rs); err != nil {
		return wrapRS485Error("TIOCGRS485", err)
	}

	rs.Flags = applyRS485Flags(rs.Flags, cfg)
	rs.DelayRTSBeforeSend = uint32(cfg.DelayBeforeSend / time.Millisecond)
	rs.DelayRTSAfterSend = uint32(cfg.DelayAfterSend / time.Millisecond)

	if err := ioctlRS485(fd, unix.TIOCSRS485, &rs); err != nil {
		return wrapRS485Error("TIOCSRS485", err)
	}
	return nil
}

// applyRS485Flags sets or clears each bit cfg controls, keeping the rest
func applyRS485Flags(flags uint32, cfg RS485Config) uint32 {
	set := func(bit uint32, on bool) {
		if on {
			flags |= bit
		} else {
			flags &^= bit
		}
	}
	set(serRS485Enabled, cfg.Enabled)
	set(serRS485RTSOnSend, cfg.RTSOnSend)
	set(serRS485RTSAfterSend, cfg.RTSAfterSend)
	set(serRS485RxDuringTx, cfg.RxDuringTx)
	return flags
}

func wrapRS485Error(op string, err error) error {
	if errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("%s: %w: %v", op, ErrRS485NotSupported, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ReadRS485 reports the RS-485 settings currently programmed on fd
func ReadRS485(fd int) (RS485Config, error) {
	var rs serialRS485
	if err := ioctlRS485(fd, unix.TIOCGRS485, &rs); err != nil {
		return RS485Config{}, wrapRS485Error("TIOCGRS485", err)
	}
	return RS485Config{
		Enabled:         rs.Flags&serRS485Enabled != 0,
		RTSOnSend:       rs.Flags&serRS485RTSOnSend != 0,
		RTSAfterSend:    rs.Flags&serRS485RTSAfterSend != 0,
		RxDuringTx:      rs.Flags&serRS485RxDuringTx != 0,
		DelayBeforeSend: time.Duration(rs.DelayRTSBeforeSend) * time.Millisecond,
		DelayAfterSend:  time.Duration(rs.DelayRTSAfterSend) * time.Millisecond,
	}, nil
}

// Package rtu is a resilient master-side transport for Modbus RTU over
// half-duplex RS-485 on Linux.
//
// It owns the serial line (raw termios, discrete baud table, RS-485
// transmit-enable through TIOCSRS485) and one shared connection handle.
// Protocol requests go through a Manager that reconnects once and retries
// once when the link fails. Frame encoding belongs to a Codec; package
// modbus provides the RTU one.
//
// # Basic Usage
//
//	m := rtu.NewManager(modbus.New(), logger)
//	if err := m.Open(rtu.DefaultParams("/dev/ttyUSB0")); err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	regs, err := m.ReadHoldingRegisters(0, 10)
//	v, err := m.ReadRegister(20)
//
// # Connection Parameters
//
// Params are plain values built with functional options:
//
//	p, err := rtu.NewParams("/dev/ttyS0",
//	    rtu.WithBaudRate(9600),
//	    rtu.WithParity(rtu.ParityEven),
//	    rtu.WithSlaveID(3),
//	)
//
// Handle options tune the session opened from them:
//
//	m := rtu.NewManager(codec, logger, rtu.WithHandleOptions(
//	    rtu.WithResponseTimeout(500*time.Millisecond),
//	    rtu.WithRS485(rtu.RS485Config{Enabled: true, RTSOnSend: true}),
//	    rtu.WithStrictBaudRate(),
//	))
//
// An unsupported baud rate falls back to 115200 with a warning unless
// WithStrictBaudRate is set. RS-485 setup failures are logged and never
// fail the open.
//
// # Recovery
//
// Every operation runs under the Manager's single mutex. A transport
// failure closes the handle, reopens it with the last parameters that
// worked and repeats the operation once:
//
//	_, err := m.ReadHoldingRegisters(0, 4)
//	switch {
//	case rtu.IsException(err):
//	    // the slave answered with an exception; the link is fine
//	case rtu.IsTransport(err):
//	    // reconnect or retry failed
//	case errors.Is(err, rtu.ErrNotConnected):
//	    // Open was never called or the last reconnect failed
//	}
//
// Device exceptions and invalid arguments are returned as-is without a
// reconnect.
//
// # Raw Access
//
// WithLink lends the live handle for non-Modbus traffic on the same bus,
// serialized with protocol requests:
//
//	err := m.WithLink(func(l rtu.Link) error {
//	    _, err := l.Write(frame)
//	    return err
//	})
//
// # Port Discovery
//
//	ports, err := rtu.ListPorts()
//	for _, path := range ports {
//	    info, _ := rtu.GetPortInfo(path)
//	    fmt.Printf("%s: %s\n", info.Path, info.Description())
//	}
//
// # Thread Safety
//
// Manager methods are safe for concurrent use. A Handle is not; it is
// meant to be owned by one Manager.
package rtu

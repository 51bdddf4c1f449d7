package rtu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams("/dev/ttyUSB0")

	assert.Equal(t, "/dev/ttyUSB0", p.Device)
	assert.Equal(t, 115200, p.BaudRate)
	assert.Equal(t, ParityNone, p.Parity)
	assert.Equal(t, 8, p.DataBits)
	assert.Equal(t, 1, p.StopBits)
	assert.Equal(t, 1, p.SlaveID)
	assert.NoError(t, p.Validate())
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()

	assert.Equal(t, 2*time.Second, c.ResponseTimeout)
	assert.Equal(t, 2*time.Second, c.ByteTimeout)
	assert.True(t, c.ErrorRecovery)
	assert.True(t, c.RS485.Enabled)
	assert.True(t, c.RS485.RTSOnSend)
	assert.False(t, c.RS485.RTSAfterSend)
	assert.Zero(t, c.RS485.DelayBeforeSend)
	assert.False(t, c.StrictBaudRate)
	assert.NotNil(t, c.Logger)
}

func TestNewParams(t *testing.T) {
	p, err := NewParams("/dev/ttyS1",
		WithBaudRate(9600),
		WithParity(ParityEven),
		WithDataBits(7),
		WithStopBits(2),
		WithSlaveID(17),
	)
	require.NoError(t, err)
	assert.Equal(t, Params{Device: "/dev/ttyS1", BaudRate: 9600, Parity: ParityEven, DataBits: 7, StopBits: 2, SlaveID: 17}, p)
	assert.Equal(t, "/dev/ttyS1 9600 7E2 slave=17", p.String())
}

func TestParamOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     ParamOption
		wantErr error
	}{
		{"baud 9600", WithBaudRate(9600), nil},
		{"baud 0", WithBaudRate(0), ErrInvalidBaudRate},
		{"baud negative", WithBaudRate(-1), ErrInvalidBaudRate},
		{"7 data bits", WithDataBits(7), nil},
		{"5 data bits", WithDataBits(5), ErrUnsupportedConfig},
		{"2 stop bits", WithStopBits(2), nil},
		{"3 stop bits", WithStopBits(3), ErrUnsupportedConfig},
		{"slave 247", WithSlaveID(247), nil},
		{"slave 0", WithSlaveID(0), ErrUnsupportedConfig},
		{"slave 248", WithSlaveID(248), ErrUnsupportedConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParams("/dev/ttyS0", tt.opt)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParamsValidate(t *testing.T) {
	base := DefaultParams("/dev/ttyS0")

	tests := []struct {
		name   string
		mutate func(*Params)
		valid  bool
	}{
		{"defaults", func(*Params) {}, true},
		{"odd parity", func(p *Params) { p.Parity = ParityOdd }, true},
		{"empty device", func(p *Params) { p.Device = "" }, false},
		{"6 data bits", func(p *Params) { p.DataBits = 6 }, false},
		{"0 stop bits", func(p *Params) { p.StopBits = 0 }, false},
		{"unknown parity", func(p *Params) { p.Parity = Parity(9) }, false},
		{"broadcast address", func(p *Params) { p.SlaveID = 0 }, false},
		{"reserved address", func(p *Params) { p.SlaveID = 250 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.mutate(&p)
			err := p.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedConfig)
			}
		})
	}
}

func TestParseParity(t *testing.T) {
	tests := []struct {
		in   string
		want Parity
		ok   bool
	}{
		{"N", ParityNone, true},
		{"none", ParityNone, true},
		{"", ParityNone, true},
		{"E", ParityEven, true},
		{"Even", ParityEven, true},
		{"o", ParityOdd, true},
		{" odd ", ParityOdd, true},
		{"mark", ParityNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseParity(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrUnsupportedConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "E", ParityEven.String())
	assert.Equal(t, "Parity(7)", Parity(7).String())
}

func TestTimeoutOptions(t *testing.T) {
	tests := []struct {
		name    string
		opt     func(time.Duration) Option
		timeout time.Duration
		wantErr bool
	}{
		{"response 500ms", WithResponseTimeout, 500 * time.Millisecond, false},
		{"response 0", WithResponseTimeout, 0, true},
		{"response negative", WithResponseTimeout, -time.Second, true},
		{"byte 50ms", WithByteTimeout, 50 * time.Millisecond, false},
		{"byte 0", WithByteTimeout, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			err := tt.opt(tt.timeout)(&c)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRS485Options(t *testing.T) {
	c := DefaultConfig()

	rs := RS485Config{Enabled: true, RTSAfterSend: true, DelayBeforeSend: 2 * time.Millisecond}
	require.NoError(t, WithRS485(rs)(&c))
	assert.Equal(t, rs, c.RS485)

	err := WithRS485(RS485Config{Enabled: true, DelayAfterSend: -time.Millisecond})(&c)
	assert.ErrorIs(t, err, ErrUnsupportedConfig)
	assert.Equal(t, rs, c.RS485, "rejected option must not modify config")

	require.NoError(t, WithoutRS485()(&c))
	assert.False(t, c.RS485.Enabled)

	require.NoError(t, WithStrictBaudRate()(&c))
	assert.True(t, c.StrictBaudRate)

	require.NoError(t, WithErrorRecovery(false)(&c))
	assert.False(t, c.ErrorRecovery)

	require.NoError(t, WithLogger(nil)(&c))
	assert.NotNil(t, c.Logger)
}

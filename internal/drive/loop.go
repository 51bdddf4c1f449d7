package drive

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/allbin/go-rtu/internal/telemetry"
)

// Register and coil layout of the drive controller
const (
	CommandRegister = 0
	CommandCoil     = 0
)

// Bus is the subset of the resilient manager the drive loop needs
type Bus interface {
	telemetry.Reader
	WriteMultipleRegisters(addr uint16, values []uint16) (int, error)
	WriteMultipleCoils(addr uint16, values []bool) (int, error)
}

// Report is what one loop iteration observed. Battery and Charger are nil
// when their read failed.
type Report struct {
	Index   int
	Step    Step
	Battery *telemetry.Battery
	Charger *telemetry.ChargerErrors
}

// Summary totals a finished run
type Summary struct {
	Frames    int
	FailedOps int
	Elapsed   time.Duration
	Sleep     time.Duration
}

// Effective is the time spent on the bus, excluding the pacing sleep
func (s Summary) Effective() time.Duration {
	return s.Elapsed - s.Sleep
}

// PerFrame is the average bus time per step
func (s Summary) PerFrame() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.Effective() / time.Duration(s.Frames)
}

// Loop drives a controller through a profile over Modbus
type Loop struct {
	bus      Bus
	logger   *zap.Logger
	interval time.Duration
	report   func(Report)
}

// NewLoop returns a loop pacing steps by interval
func NewLoop(bus Bus, logger *zap.Logger, interval time.Duration, report func(Report)) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if report == nil {
		report = func(Report) {}
	}
	return &Loop{bus: bus, logger: logger, interval: interval, report: report}
}

// Run executes steps in order. Each step writes the command registers and
// coils, then reads the battery block and the charger errors. Failed
// operations are counted and the run continues; only ctx stops it early.
func (l *Loop) Run(ctx context.Context, steps []Step) (Summary, error) {
	var sum Summary
	start := time.Now()

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			sum.Elapsed = time.Since(start)
			return sum, err
		}

		if _, err := l.bus.WriteMultipleRegisters(CommandRegister, step.Registers()); err != nil {
			sum.FailedOps++
			l.logger.Warn("write command registers failed", zap.Int("step", i), zap.Error(err))
		}
		if _, err := l.bus.WriteMultipleCoils(CommandCoil, step.Coils()); err != nil {
			sum.FailedOps++
			l.logger.Warn("write command coils failed", zap.Int("step", i), zap.Error(err))
		}

		r := Report{Index: i, Step: step}
		if b, err := telemetry.ReadBattery(l.bus); err == nil {
			r.Battery = &b
		} else {
			l.logger.Debug("battery read failed", zap.Int("step", i), zap.Error(err))
		}
		if c, err := telemetry.ReadChargerErrors(l.bus); err == nil {
			r.Charger = &c
		} else {
			l.logger.Debug("charger read failed", zap.Int("step", i), zap.Error(err))
		}
		l.report(r)
		sum.Frames++

		if l.interval > 0 {
			select {
			case <-ctx.Done():
				sum.Elapsed = time.Since(start)
				return sum, ctx.Err()
			case <-time.After(l.interval):
			}
			sum.Sleep += l.interval
		}
	}

	sum.Elapsed = time.Since(start)
	return sum, nil
}

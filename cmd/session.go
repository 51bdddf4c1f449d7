/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allbin/go-rtu"
	"github.com/allbin/go-rtu/internal/config"
	"github.com/allbin/go-rtu/internal/logging"
	"github.com/allbin/go-rtu/internal/sim"
	"github.com/allbin/go-rtu/internal/tui/styles"
	"github.com/allbin/go-rtu/modbus"
)

// session is one opened manager plus what built it
type session struct {
	cfg     *config.Config
	logger  *zap.Logger
	params  rtu.Params
	manager *rtu.Manager
	bus     *sim.Bus
}

// openSession loads the configuration and opens device through a
// resilient manager. With --simulate the device is an in-memory slave.
func openSession(cmd *cobra.Command, device string) (*session, error) {
	return openSessionWith(cmd, device, false)
}

// openSessionWith optionally silences terminal logging, which would tear
// through a full-screen view. File logging is kept.
func openSessionWith(cmd *cobra.Command, device string, fullscreen bool) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if !fullscreen || !logging.IsConsole(cfg.Logging) {
		if logger, err = logging.New(cfg.Logging); err != nil {
			return nil, err
		}
	}
	logger = logger.With(zap.String("session", uuid.NewString()))

	params, err := cfg.Params(device)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	codec := modbus.New(
		modbus.WithFrameGap(cfg.Serial.FrameGap),
		modbus.WithLogger(logger.Named("modbus")),
	)
	handleOpts := append(cfg.HandleOptions(), rtu.WithLogger(logger))
	opts := []rtu.ManagerOption{
		rtu.WithHandleOptions(handleOpts...),
		rtu.WithDebug(cfg.Logging.Level == "debug"),
	}

	s := &session{cfg: cfg, logger: logger, params: params}
	if simulate, _ := cmd.Flags().GetBool("simulate"); simulate {
		s.bus = sim.NewBus(byte(params.SlaveID))
		opts = append(opts, rtu.WithOpener(s.bus.Open))
	}

	s.manager = rtu.NewManager(codec, logger, opts...)
	if err := s.manager.Open(params); err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if err := s.manager.Close(); err != nil {
		s.logger.Warn("close failed", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// exitOnError reports err in the CLI's style and exits non-zero
func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", styles.CLIError.Render("✗"), err)
	os.Exit(1)
}

// parseAddr accepts decimal or 0x-prefixed register addresses and values
func parseAddr(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a 16-bit number", rtu.ErrInvalidArgument, s)
	}
	return uint16(n), nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "1", "on", "ON", "true":
		return true, nil
	case "0", "off", "OFF", "false":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a coil value (0/1/on/off)", rtu.ErrInvalidArgument, s)
}

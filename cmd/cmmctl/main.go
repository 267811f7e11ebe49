// Command cmmctl inspects a contiguous memory platform and exercises the cmm package against it.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/c2h5oh/datasize"
	"github.com/fatih/color"
	"golang.org/x/exp/slog"

	"github.com/axsys-go/cmm/cmm"
	"github.com/axsys-go/cmm/driver"
	"github.com/axsys-go/cmm/driver/sim"
)

// platformOpener creates an uninitialized driver for the named platform
type platformOpener func(cfg *globalConfig) (driver.Driver, func() error, error)

var platforms = map[string]platformOpener{
	"sim": openSim,
}

type globalConfig struct {
	platform string
	logLevel string

	simSize     byteSizeValue
	simLineSize int
}

// session is an initialized platform with an allocator on top of it
type session struct {
	system    *cmm.System
	allocator *cmm.Allocator
	closeFn   func() error
}

func (s *session) Close() error {
	err := s.system.Close()
	if s.closeFn != nil {
		if closeErr := s.closeFn(); err == nil {
			err = closeErr
		}
	}
	return err
}

func (cfg *globalConfig) open() (*session, error) {
	opener, ok := platforms[cfg.platform]
	if !ok {
		return nil, fmt.Errorf("platform %q is not available in this build", cfg.platform)
	}

	drv, closeFn, err := opener(cfg)
	if err != nil {
		return nil, err
	}

	system, err := cmm.NewSystem(drv)
	if err != nil {
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}

	allocator, err := cmm.New(cfg.logger(), drv, cmm.CreateOptions{})
	if err != nil {
		_ = system.Close()
		if closeFn != nil {
			_ = closeFn()
		}
		return nil, err
	}

	return &session{system: system, allocator: allocator, closeFn: closeFn}, nil
}

func (cfg *globalConfig) logger() *slog.Logger {
	var level slog.Level
	switch cfg.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.HandlerOptions{Level: level}.NewTextHandler(os.Stderr))
}

func openSim(cfg *globalConfig) (driver.Driver, func() error, error) {
	sizeKB := cfg.simSize.ByteSize.KBytes()
	if sizeKB < 1 || sizeKB > float64(^uint32(0)) {
		return nil, nil, fmt.Errorf("simulated partition size %s is out of range", cfg.simSize.String())
	}

	drv, err := sim.New(sim.Options{
		Partitions: []driver.Partition{{
			Name:   cmm.AnonymousPartition,
			Phys:   sim.DefaultPartitionBase,
			SizeKB: uint32(sizeKB),
		}},
		CacheLineSize: cfg.simLineSize,
	})
	if err != nil {
		return nil, nil, err
	}
	return drv, drv.Close, nil
}

// byteSizeValue lets kingpin parse sizes such as "4MB" or "64KB"
type byteSizeValue struct {
	datasize.ByteSize
}

func (v *byteSizeValue) Set(s string) error {
	return v.ByteSize.UnmarshalText([]byte(s))
}

func (v *byteSizeValue) String() string {
	return v.ByteSize.HR()
}

func exitWithErr(err error) {
	_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func main() {
	app := kingpin.New("cmmctl", "Inspect and exercise a contiguous memory platform.")
	app.HelpFlag.Short('h')

	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}

	cfg := &globalConfig{}
	app.Flag("platform", "Platform driver to use.").Default("sim").EnumVar(&cfg.platform, names...)
	app.Flag("log.level", "Only log messages with the given severity or above.").Default("info").EnumVar(&cfg.logLevel, "debug", "info", "warn", "error")
	app.Flag("sim.size", "Size of the simulated anonymous partition.").Default("64MB").SetValue(&cfg.simSize)
	app.Flag("sim.line-size", "Cache line size of the simulated platform.").Default("64").IntVar(&cfg.simLineSize)

	addStatusCommand(app, cfg)
	addPartitionsCommand(app, cfg)
	addSelftestCommand(app, cfg)

	_, err := app.Parse(os.Args[1:])
	if err != nil {
		exitWithErr(err)
	}
}

// File: facade/subsystem.go
// Unified facade for the device subsystem.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Subsystem aggregates the registry, its scheduler, the control plane and
// the platform bus behind one object that is initialised once and torn
// down once. Live tunables are published through Control; setting
// "delay_ns" retunes every running producer.

package facade

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/momentics/hioload-chrdev/adapters"
	"github.com/momentics/hioload-chrdev/api"
	"github.com/momentics/hioload-chrdev/chrdev"
	"github.com/momentics/hioload-chrdev/control"
	"github.com/momentics/hioload-chrdev/internal/concurrency"
	"github.com/momentics/hioload-chrdev/platform"
)

// Config holds parameters fixed per run. Only ProducerDelay can change
// later, through Control ("delay_ns").
type Config struct {
	MaxDevices      int           // Slot table size (MAX_DEVICES)
	BufferLen       int           // Storage bytes per device (BUF_LEN)
	ProducerDelay   time.Duration // Producer period (delay_ns)
	StartProducers  bool          // Start ring producers on register
	EnableMetrics   bool          // Pump registry counters into Control
	MetricsInterval time.Duration // Pump period
	EnableDebug     bool          // Register debug probes
	DescriptionPath string        // Optional description file probed on New
	FirmwareDir     string        // Directory for firmware images; empty disables the firmware driver
	Logger          *log.Logger   // nil means log.Default()
}

// DefaultConfig returns default configuration values.
func DefaultConfig() *Config {
	return &Config{
		MaxDevices:      chrdev.DefaultMaxDevices,
		BufferLen:       chrdev.DefaultBufferLen,
		ProducerDelay:   chrdev.DefaultProducerDelay,
		StartProducers:  true,
		EnableMetrics:   true,
		MetricsInterval: time.Second,
		EnableDebug:     true,
	}
}

// ApplyParams overrides fields from parsed module parameters (see
// control.ParseParams). Unknown keys are ignored.
func (c *Config) ApplyParams(params map[string]any) error {
	for key, v := range params {
		n, isInt := v.(int64)
		switch key {
		case "delay_ns", "max_devices", "buf_len":
			if !isInt || n <= 0 {
				return api.NewError(api.ErrCodeInvalidArgument, "parameter must be a positive integer").WithContext("param", key)
			}
		default:
			continue
		}
		switch key {
		case "delay_ns":
			c.ProducerDelay = time.Duration(n)
		case "max_devices":
			c.MaxDevices = int(n)
		case "buf_len":
			c.BufferLen = int(n)
		}
	}
	return nil
}

// Subsystem implements api.GracefulShutdown.
type Subsystem struct {
	config   Config
	logger   *log.Logger
	control  *adapters.ControlAdapter
	sched    *concurrency.Scheduler
	registry *chrdev.Registry
	bus      *platform.Bus
	loader   *platform.Loader
	desc     *platform.Description
	pump     *adapters.StatsPump

	once sync.Once
	err  error
}

var _ api.GracefulShutdown = (*Subsystem)(nil)

// New initialises the subsystem. When DescriptionPath is set the file is
// loaded and probed; individual probe failures are logged, not fatal.
func New(ctx context.Context, cfg *Config) (*Subsystem, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Subsystem{config: *cfg, logger: cfg.Logger}
	if s.logger == nil {
		s.logger = log.Default()
	}

	s.sched = concurrency.NewScheduler()
	reg, err := chrdev.New(
		chrdev.WithMaxDevices(cfg.MaxDevices),
		chrdev.WithBufferLen(cfg.BufferLen),
		chrdev.WithProducerDelay(cfg.ProducerDelay),
		chrdev.WithScheduler(s.sched),
		chrdev.WithLogger(s.logger),
	)
	if err != nil {
		s.sched.Close()
		return nil, fmt.Errorf("registry init failure: %w", err)
	}
	s.registry = reg

	s.control = adapters.NewControlAdapter()
	err = s.control.SetConfig(map[string]any{
		"delay_ns":    int64(cfg.ProducerDelay),
		"max_devices": int64(cfg.MaxDevices),
		"buf_len":     int64(cfg.BufferLen),
	})
	if err != nil {
		s.Shutdown()
		return nil, fmt.Errorf("control init failure: %w", err)
	}
	s.control.OnValidate(s.validate)
	s.control.OnReload(s.reload)

	s.bus = platform.NewBus(s.logger)
	var devOpts []chrdev.RegisterOption
	if !cfg.StartProducers {
		devOpts = append(devOpts, chrdev.WithoutProducer())
	}
	drivers := []platform.Driver{platform.NewReqDriver(reg, s.logger, devOpts...)}
	if cfg.FirmwareDir != "" {
		s.loader = platform.NewLoader(cfg.FirmwareDir, s.logger)
		drivers = append(drivers, platform.NewFirmwareDriver(reg, s.loader, s.logger))
	}
	for _, drv := range drivers {
		if err := s.bus.RegisterDriver(drv); err != nil {
			s.Shutdown()
			return nil, fmt.Errorf("driver %s init failure: %w", drv.Name(), err)
		}
	}

	if cfg.DescriptionPath != "" {
		desc, err := platform.LoadDescription(cfg.DescriptionPath)
		if err != nil {
			s.Shutdown()
			return nil, err
		}
		s.desc = desc
		n, err := s.bus.Probe(ctx, desc.Root)
		if err != nil {
			s.logger.Printf("[facade] description probe: %v", err)
		}
		s.logger.Printf("[facade] %d description nodes bound", n)
	}

	if cfg.EnableDebug {
		s.control.RegisterDebugProbe("chrdev.devices", func() any {
			return s.registry.Devices()
		})
		s.control.RegisterDebugProbe("platform.bound", func() any {
			return s.bus.Bound()
		})
	}
	if cfg.EnableMetrics {
		s.pump = adapters.NewStatsPump(reg, s.control, s.sched)
		if err := s.pump.Start(cfg.MetricsInterval); err != nil {
			s.Shutdown()
			return nil, fmt.Errorf("metrics init failure: %w", err)
		}
	}
	return s, nil
}

// validate rejects a non-positive delay and any change of the sizes fixed
// at init.
func (s *Subsystem) validate(m map[string]any) error {
	if v, ok := m["delay_ns"]; ok {
		if n, isInt := control.AsInt64(v); !isInt || n <= 0 {
			return api.NewError(api.ErrCodeInvalidArgument, "delay_ns must be a positive integer").WithContext("value", v)
		}
	}
	for key, cur := range map[string]int{"max_devices": s.registry.MaxDevices(), "buf_len": s.registry.BufferLen()} {
		if v, ok := m[key]; ok {
			if n, isInt := control.AsInt64(v); !isInt || n != int64(cur) {
				return api.NewError(api.ErrCodeNotSupported, "parameter is fixed after init").WithContext("param", key)
			}
		}
	}
	return nil
}

func (s *Subsystem) reload() {
	n, ok := s.control.ConfigInt64("delay_ns")
	if !ok {
		return
	}
	delay := time.Duration(n)
	if delay == s.registry.ProducerDelay() {
		return
	}
	if err := s.registry.SetProducerDelay(delay); err != nil {
		s.logger.Printf("[facade] delay_ns reload: %v", err)
		return
	}
	s.logger.Printf("[facade] producer delay set to %s", delay)
}

// Registry returns the device registry.
func (s *Subsystem) Registry() *chrdev.Registry { return s.registry }

// Control returns the dynamic config and metrics interface.
func (s *Subsystem) Control() api.Control { return s.control }

// Debug returns the probe registry.
func (s *Subsystem) Debug() api.Debug { return s.control.Debug() }

// Bus returns the platform bus for probing further descriptions.
func (s *Subsystem) Bus() *platform.Bus { return s.bus }

// Description returns the description loaded at init, if any.
func (s *Subsystem) Description() *platform.Description { return s.desc }

// Scheduler exposes the timer scheduler driving producers.
func (s *Subsystem) Scheduler() api.Scheduler { return s.sched }

// Shutdown removes probed devices, unregisters the rest and stops the
// scheduler. Later calls return the first result.
func (s *Subsystem) Shutdown() error {
	s.once.Do(func() {
		if s.pump != nil {
			if err := s.pump.Stop(); err != nil {
				s.logger.Printf("[facade] metrics stop: %v", err)
			}
		}
		if s.desc != nil {
			if err := s.bus.Remove(s.desc.Root); err != nil {
				s.logger.Printf("[facade] description remove: %v", err)
			}
		}
		if s.loader != nil {
			s.loader.Wait()
		}
		s.err = s.registry.Close()
		s.sched.Close()
	})
	return s.err
}

// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"syscall"
	"time"

	"firestige.xyz/tyto/internal/config"
	"firestige.xyz/tyto/internal/ipv4"
	"firestige.xyz/tyto/internal/link"
	"firestige.xyz/tyto/internal/link/sniffer"
	logpkg "firestige.xyz/tyto/internal/log"
	"firestige.xyz/tyto/internal/metrics"
	"firestige.xyz/tyto/internal/stack"

	// Device types register themselves with the link factory.
	_ "firestige.xyz/tyto/internal/link/afpacket"
	_ "firestige.xyz/tyto/internal/link/channel"
	_ "firestige.xyz/tyto/internal/link/pcapfile"
	_ "firestige.xyz/tyto/internal/link/tun"
)

const stopTimeout = 5 * time.Second

// Daemon manages the tyto daemon process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.Config
	configPath string
	pidFile    string

	// Core components
	stk           *stack.Stack
	proto         *ipv4.Protocol
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx      context.Context
	cancel   context.CancelFunc
	stackErr chan error     // result of stack.Run, nil once consumed
	sigChan  chan os.Signal // promoted from Run() local for cleanup in Stop()
}

// New creates a new Daemon instance. An empty pidFile falls back to the
// configured path.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if pidFile == "" {
		pidFile = cfg.PIDFile
	}

	d := &Daemon{
		config:     cfg,
		configPath: configPath,
		pidFile:    pidFile,
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	slog.Info("starting tyto daemon",
		"config", d.configPath,
		"devices", len(d.config.Devices),
		"interfaces", len(d.config.Interfaces),
	)

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Build link devices
	d.stk = stack.New()
	if err := d.buildDevices(); err != nil {
		return err
	}

	// 5. Register the IPv4 ingress protocol
	proto, err := ipv4.Register(d.stk)
	if err != nil {
		return fmt.Errorf("failed to register ipv4 protocol: %w", err)
	}
	d.proto = proto

	// 6. Bind configured interfaces
	if err := d.bindInterfaces(); err != nil {
		return err
	}

	// 7. Run the stack. Registration is sealed from here on; device
	// loops start delivering frames.
	d.stackErr = make(chan error, 1)
	go func() {
		d.stackErr <- d.stk.Run(d.ctx)
	}()

	slog.Info("daemon started successfully")
	return nil
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Cancel context: device loops drain and the stack returns
	d.cancel()

	// 2. Wait for the stack to wind down
	if d.stackErr != nil {
		select {
		case err := <-d.stackErr:
			if err != nil {
				slog.Error("stack stopped with error", "error", err)
			}
		case <-time.After(stopTimeout):
			slog.Warn("stack did not stop within timeout")
		}
		d.stackErr = nil
	}

	// 3. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
		d.metricsServer = nil // prevent double-stop on repeated calls
	}

	// 4. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 5. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	// 6. Flush logs
	if err := logpkg.Flush(); err != nil {
		slog.Error("error flushing logs", "error", err)
	}

	slog.Info("daemon stopped gracefully")
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. every device loop ending (e.g. capture replay finished)
//
// SIGHUP triggers config reload.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig.String())
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				}
			}

		case err := <-d.stackErr:
			d.stackErr = nil
			if err != nil {
				slog.Error("stack stopped with error", "error", err)
			} else {
				slog.Info("all device loops finished")
			}
			d.Stop()
			return err
		}
	}
}

// Reload reloads the configuration. Hot-reloadable: log level and
// format. Cold (requires restart): devices, interfaces, metrics,
// pid_file.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	hotReloaded := []string{}
	requiresRestart := []string{}

	if !reflect.DeepEqual(newConfig.Devices, d.config.Devices) {
		requiresRestart = append(requiresRestart, "devices")
	}
	if !reflect.DeepEqual(newConfig.Interfaces, d.config.Interfaces) {
		requiresRestart = append(requiresRestart, "interfaces")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	if newConfig.PIDFile != d.config.PIDFile {
		requiresRestart = append(requiresRestart, "pid_file")
	}

	oldLog := d.config.Log
	d.config = newConfig

	if newConfig.Log != oldLog {
		if newConfig.Log.Format == oldLog.Format && newConfig.Log.File == oldLog.File {
			// Only the level moved; retune the live handler in place.
			if err := logpkg.SetLevel(newConfig.Log.Level); err != nil {
				slog.Error("failed to set log level", "error", err)
			} else {
				hotReloaded = append(hotReloaded, "log.level")
			}
		} else if err := d.initLogging(); err != nil {
			// Non-fatal: old logging continues.
			slog.Error("failed to reinitialize logging", "error", err)
		} else {
			hotReloaded = append(hotReloaded, "log")
		}
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)

	return nil
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}

	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)

	return nil
}

// buildDevices constructs every configured link device and adds it to
// the stack, wrapping it in a capture recorder when requested.
func (d *Daemon) buildDevices() error {
	for _, devCfg := range d.config.Devices {
		dev, err := link.New(devCfg.Type, devCfg.Name, devCfg.MTU, devCfg.Options)
		if err != nil {
			return fmt.Errorf("failed to build device %s: %w", devCfg.Name, err)
		}

		if devCfg.CaptureFile != "" {
			dev, err = sniffer.New(dev, devCfg.CaptureFile)
			if err != nil {
				return fmt.Errorf("failed to record device %s: %w", devCfg.Name, err)
			}
			slog.Info("ingress recording enabled",
				"device", devCfg.Name,
				"file", devCfg.CaptureFile,
			)
		}

		if err := d.stk.AddDevice(dev); err != nil {
			return fmt.Errorf("failed to add device %s: %w", devCfg.Name, err)
		}
	}
	return nil
}

// bindInterfaces allocates and registers every configured IPv4
// interface. Bad addresses fail bring-up here, not at config load.
func (d *Daemon) bindInterfaces() error {
	for _, ifcCfg := range d.config.Interfaces {
		ifc, err := ipv4.NewInterface(ifcCfg.Unicast, ifcCfg.Netmask)
		if err != nil {
			return fmt.Errorf("interface on %s: %w", ifcCfg.Device, err)
		}

		dev, ok := d.stk.Device(ifcCfg.Device)
		if !ok {
			return fmt.Errorf("interface on %s: device not built", ifcCfg.Device)
		}

		if err := d.proto.RegisterInterface(dev, ifc); err != nil {
			return fmt.Errorf("interface on %s: %w", ifcCfg.Device, err)
		}
	}
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	slog.Info("metrics server started",
		"addr", d.config.Metrics.Listen,
		"path", d.config.Metrics.Path,
	)

	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}

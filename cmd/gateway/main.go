// Command gateway is the shuttlegate process entrypoint: it loads
// configuration, wires every collaborator (cache, rate limiter, barcode
// validator, PLC clients) into a coordinator, and serves the operator-facing
// HTTP surface until it receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shuttlegate/internal/engine"
	"shuttlegate/internal/httpapi"
	"shuttlegate/pkg/audit"
	"shuttlegate/pkg/cache"
	"shuttlegate/pkg/config"
	"shuttlegate/pkg/logger"
	"shuttlegate/pkg/metrics"
	"shuttlegate/pkg/plc"
	"shuttlegate/pkg/ratelimit"
	"shuttlegate/pkg/telemetry"
	"shuttlegate/pkg/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Init("error")
		logger.Fatal("failed to load config", "error", err)
	}

	logger.InitWithConfig(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		FilePath:   cfg.Log.FilePath,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
		Compress:   cfg.Log.Compress,
	})

	logger.Log.Info("starting shuttlegate",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Version:     cfg.App.Version,
		Environment: cfg.App.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal("failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Log.Warn("tracer shutdown error", "error", err)
		}
	}()

	met := metrics.InitMetrics(cfg.Metrics.Namespace, cfg.Metrics.Subsystem)
	met.SetServiceInfo(cfg.App.Version, cfg.App.Environment)

	auditLogger, err := audit.New(&audit.Config{
		Enabled:     cfg.Audit.Enabled,
		Backend:     cfg.Audit.Backend,
		FilePath:    cfg.Audit.FilePath,
		BufferSize:  cfg.Audit.BufferSize,
		FlushPeriod: cfg.Audit.FlushPeriod,
	})
	if err != nil {
		logger.Fatal("failed to initialize audit logger", "error", err)
	}
	defer func() {
		if err := auditLogger.Close(); err != nil {
			logger.Log.Warn("audit logger close error", "error", err)
		}
	}()

	barcodeValidator, err := buildValidator(cfg)
	if err != nil {
		logger.Fatal("failed to initialize barcode validator", "error", err)
	}

	coord := engine.NewCoordinator()
	if barcodeValidator != nil {
		coord.SetBarcodeValidator(barcodeValidator.Validate)
	}

	if err := registerDevices(coord, cfg); err != nil {
		logger.Fatal("failed to register devices", "error", err)
	}

	coord.Start(ctx)
	defer coord.Stop()

	server := httpapi.New(coord, auditLogger)
	if cfg.Metrics.Enabled {
		server.MountMetrics(cfg.Metrics.Path, metrics.Handler())
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Log.Info("gateway listening", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("server shutdown error", "error", err)
	}

	logger.Log.Info("server stopped")
}

// buildValidator wires the cache, rate limiter, and HTTP collaborator that
// back barcode validation. It returns a nil client when the validator is
// disabled; the caller then skips SetBarcodeValidator.
func buildValidator(cfg *config.Config) (*validator.Client, error) {
	if !cfg.BarcodeValidator.Enabled {
		return nil, nil
	}

	validatorCache, err := cache.New(cache.FromConfig(&cfg.Cache))
	if err != nil {
		return nil, fmt.Errorf("build validator cache: %w", err)
	}

	limiter, err := ratelimit.New(&ratelimit.Config{
		Requests:        cfg.RateLimit.Requests,
		Window:          cfg.RateLimit.Window,
		Strategy:        cfg.RateLimit.Strategy,
		Backend:         cfg.RateLimit.Backend,
		BurstSize:       cfg.RateLimit.BurstSize,
		CleanupInterval: cfg.RateLimit.CleanupInterval,
		RedisAddr:       cfg.RateLimit.RedisAddr,
	})
	if err != nil {
		return nil, fmt.Errorf("build validator rate limiter: %w", err)
	}

	return validator.New(cfg.BarcodeValidator, validatorCache, limiter)
}

// registerDevices builds a PLC client per configured device and registers
// it, along with its slots, on the coordinator.
func registerDevices(coord *engine.Coordinator, cfg *config.Config) error {
	for _, raw := range cfg.Devices {
		d := raw.Resolve(cfg.DeviceDefaults)

		client := buildPLCClient(d)

		opts := engine.DeviceOptions{
			CommandTimeout:   d.CommandTimeout,
			RecoveryInterval: d.RecoveryInterval,
			RecoveryMode:     recoveryMode(d.RecoveryOn),
			FailOnAlarm:      d.FailOnAlarm,
		}

		slots := make([]engine.SlotSpec, 0, len(d.Slots))
		for _, s := range d.Slots {
			slots = append(slots, engine.SlotSpec{
				SlotID:       s.SlotID,
				DBNumber:     s.DBNumber,
				Capabilities: commandTypes(s.Capabilities),
			})
		}

		if err := coord.RegisterDevice(d.DeviceID, client, opts, slots); err != nil {
			return fmt.Errorf("register device %q: %w", d.DeviceID, err)
		}
	}
	return nil
}

// buildPLCClient picks the transport implementation a device is configured
// for. Unknown transports fall back to the emulated client, the same way an
// unknown config.CacheConfig.Driver falls back to memory.
func buildPLCClient(d config.DeviceConfig) plc.Client {
	plcCfg := plc.Config{
		Address:          d.Address,
		ConnectTimeout:   int(d.ConnectTimeout.Milliseconds()),
		OperationTimeout: int(d.OperationTimeout.Milliseconds()),
	}

	switch d.Transport {
	case "s7":
		return plc.NewS7Stub(plcCfg)
	default:
		return plc.NewEmulatedClient(plcCfg, d.DeviceID)
	}
}

func recoveryMode(mode string) engine.RecoveryMode {
	if mode == "manual" {
		return engine.RecoveryManual
	}
	return engine.RecoveryAuto
}

func commandTypes(capabilities []string) []engine.CommandType {
	if len(capabilities) == 0 {
		return nil
	}
	types := make([]engine.CommandType, 0, len(capabilities))
	for _, c := range capabilities {
		types = append(types, engine.CommandType(c))
	}
	return types
}

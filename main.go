package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/kardianos/service"

	"meridian/updater/checkgate"
	"meridian/updater/config"
	"meridian/updater/control"
	"meridian/updater/engine"
	"meridian/updater/kvstore"
	"meridian/updater/logger"
	"meridian/updater/pendingupdate"
	"meridian/updater/pixel"
	"meridian/updater/recorder"
	"meridian/updater/updateflow"
)

// Set at build time via -ldflags.
var (
	Version = "0.0.0-dev"
	Build   = "unknown"
)

func main() {
	serviceCmd := flag.String("service", "", "Service control: install, uninstall, start, stop, run")
	showVersion := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Meridian Updater %s (%s)\n", Version, Build)
		fmt.Printf("Go Version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		return
	}

	if *serviceCmd != "" {
		handleServiceCommand(*serviceCmd)
		return
	}

	if !service.Interactive() {
		runAsService()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx)
}

func handleServiceCommand(cmd string) {
	s, err := service.New(&program{}, getServiceConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create service: %v\n", err)
		os.Exit(1)
	}

	switch cmd {
	case "install", "uninstall", "start", "stop", "restart":
		if err := service.Control(s, cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Service %s failed: %v\n", cmd, err)
			os.Exit(1)
		}
		fmt.Printf("Service %s: ok\n", cmd)
	case "run":
		runAsService()
	default:
		fmt.Fprintf(os.Stderr, "Unknown service command: %s\n", cmd)
		os.Exit(1)
	}
}

func runAsService() {
	s, err := service.New(&program{}, getServiceConfig())
	if err != nil {
		os.Exit(1)
	}
	if err := s.Run(); err != nil {
		os.Exit(1)
	}
}

// run wires the updater together and blocks until the context ends. On
// shutdown any in-flight flow is resolved through the termination
// heuristic before the stores close.
func run(ctx context.Context) {
	cfg, cfgPath, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LevelFromString(cfg.Logging.Level), cfg.Logging.Dir)
	defer log.Close()

	log.Info("Meridian updater starting",
		"version", Version,
		"build", Build,
		"config", cfgPath,
	)

	dataDir, err := config.DataDirectory()
	if err != nil {
		log.Error("Failed to prepare data directory", "error", err)
		os.Exit(1)
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "updater.db")
	}

	stateStore, err := kvstore.New(dbPath)
	if err != nil {
		log.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}
	defer stateStore.Close()

	var sender recorder.PixelSender
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint != "" {
		sender = pixel.NewClient(cfg.Telemetry.Endpoint, cfg.Telemetry.AppName)
	}

	flowRecorder, err := recorder.NewSQLiteRecorder(dbPath, sender, log)
	if err != nil {
		log.Error("Failed to open flow recorder", "error", err)
		os.Exit(1)
	}
	defer flowRecorder.Close()

	controller, err := updateflow.NewController(updateflow.ControllerOptions{
		Recorder:    flowRecorder,
		LastUpdate:  kvstore.NewLastUpdateClock(stateStore),
		Environment: environmentProvider(cfg),
		Log:         log,
	})
	if err != nil {
		log.Error("Failed to create flow controller", "error", err)
		os.Exit(1)
	}

	// Close out flows a previous process started but never finished.
	if err := controller.CleanupAbandonedFlows(); err != nil {
		log.Warn("Abandoned flow cleanup failed", "error", err)
	}

	// Confirm (or not) an install staged before the last relaunch.
	validatePendingUpdate(stateStore, log)

	controlClient := control.NewClient(cfg.Control.Endpoint, log)
	gate := checkgate.New(nil)
	bridge := engine.NewBridge(controller, gate, controlClient, log)

	bridge.SetRelaunchHook(func() {
		flow, ok := controller.Snapshot()
		if !ok {
			return
		}
		meta := pendingupdate.Metadata{
			SourceVersion:       flow.FromVersion,
			SourceBuild:         flow.FromBuild,
			InitiationType:      flow.InitiationType,
			UpdateConfiguration: flow.UpdateConfiguration,
		}
		if err := pendingupdate.Save(stateStore, meta); err != nil {
			log.Warn("Failed to save pending update metadata", "error", err)
		}
	})

	controlClient.SetDelegate(bridge)
	controlClient.SetCommandHandler(func(command string, data map[string]string) {
		switch command {
		case control.CommandCheckUpdate:
			go func() {
				if err := bridge.StartUserCheck(ctx); err != nil {
					log.Warn("User-initiated update check refused", "error", err)
				}
			}()
		case control.CommandCancelUpdate:
			reason := updateflow.CancellationReason(data["reason"])
			switch reason {
			case updateflow.CancelSettingsChanged, updateflow.CancelBuildExpired:
			default:
				reason = updateflow.CancelSettingsChanged
			}
			bridge.Cancel(reason)
		}
	})

	if cfg.Control.Endpoint != "" {
		go controlClient.Run(ctx)
	} else {
		log.Warn("No control endpoint configured; user-initiated checks unavailable")
	}

	go runUpdateWorker(ctx, bridge, cfg.BackgroundCheckInterval(), log)

	<-ctx.Done()

	// The app is going away. Resolve any in-flight flow now, while the
	// recorder can still ship its pixel.
	controller.HandleAppTermination()
	log.Info("Meridian updater stopped")
}

// environmentProvider captures the app-level facts recorded into each flow
// at start time.
func environmentProvider(cfg config.Config) func() updateflow.Environment {
	return func() updateflow.Environment {
		return updateflow.Environment{
			Version:      Version,
			Build:        Build,
			OSVersion:    osVersion(),
			InternalUser: cfg.Updates.InternalUser,
			AutoUpdates:  cfg.Updates.AutomaticInstall,
		}
	}
}

// validatePendingUpdate consults the pre-relaunch snapshot exactly once and
// logs whether the staged install took effect. The snapshot is cleared
// either way.
func validatePendingUpdate(store kvstore.Store, log *logger.Logger) {
	result, meta, err := pendingupdate.Validate(store, Version)
	if err != nil {
		log.Warn("Pending update validation failed", "error", err)
		return
	}

	switch result {
	case pendingupdate.ResultUpdated:
		log.Info("Update installed across relaunch",
			"from_version", meta.SourceVersion,
			"to_version", Version,
			"initiation", meta.InitiationType,
		)
	case pendingupdate.ResultUnchanged:
		log.Warn("Relaunched without the staged update taking effect",
			"source_version", meta.SourceVersion,
			"current_version", Version,
		)
	}
}

// osVersion reports the host OS for telemetry. Platform-specific detail
// beyond the OS name is intentionally coarse.
func osVersion() string {
	return runtime.GOOS
}

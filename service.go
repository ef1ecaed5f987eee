package main

import (
	"context"
	"time"

	"github.com/kardianos/service"
)

// program implements service.Interface.
type program struct {
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	svcLogger service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("Meridian updater service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		run(p.ctx)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.svcLogger != nil {
		p.svcLogger.Info("Meridian updater service stop requested")
	}

	if p.cancel != nil {
		p.cancel()
	}

	select {
	case <-p.done:
	case <-time.After(30 * time.Second):
		if p.svcLogger != nil {
			p.svcLogger.Warning("Meridian updater service stopped with timeout")
		}
	}
	return nil
}

// getServiceConfig returns the service configuration for the current platform.
func getServiceConfig() *service.Config {
	return &service.Config{
		Name:        "MeridianUpdater",
		DisplayName: "Meridian Updater",
		Description: "Keeps the Meridian desktop app up to date in the background.",
		Arguments:   []string{"--service", "run"},
		Option: service.KeyValue{
			// Windows service options
			"StartType":        "automatic",
			"DelayedAutoStart": true,
			"OnFailure":        "restart",

			// Linux systemd options
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",

			// macOS launchd options
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

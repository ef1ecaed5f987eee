package main

import (
	"context"
	"math/rand"
	"time"

	"meridian/updater/engine"
	"meridian/updater/logger"
)

// runUpdateWorker wakes up on a jittered interval and attempts a background
// update check. The check gate decides whether one actually runs, so a
// short interval here only costs a cheap refusal.
func runUpdateWorker(ctx context.Context, bridge *engine.Bridge, interval time.Duration, log *logger.Logger) {
	log.Info("Background update worker started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			log.Debug("Background update worker stopping")
			return
		case <-time.After(jittered(interval)):
			if bridge.StartBackgroundCheck(ctx) {
				log.Debug("Background update check started")
			}
		}
	}
}

// jittered spreads wake-ups by up to 10% so a fleet of clients doesn't hit
// the update server in lockstep.
func jittered(interval time.Duration) time.Duration {
	if interval <= 0 {
		return time.Minute
	}
	return interval + time.Duration(rand.Int63n(int64(interval/10)+1))
}

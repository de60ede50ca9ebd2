// Package compat implements the app-compatibility gate: a rate-limited
// pre-sync version check against the remote compat RPC.
package compat

import (
	"context"
	"time"

	"github.com/brightfield-crm/syncengine/internal/ports"
)

const checkInterval = 3600 * time.Second

// Gate throttles calls to the compat RPC to at most once per checkInterval
// and computes whether sync() may proceed.
type Gate struct {
	client   ports.CompatClient
	clock    ports.Clock
	platform string
	version  string

	lastCheck  time.Time
	lastStatus ports.CompatStatus
}

// New constructs a Gate. clock may be nil to use wall-clock time.
func New(client ports.CompatClient, clock ports.Clock, platform, clientVersion string) *Gate {
	if clock == nil {
		clock = ports.ClockFunc(time.Now)
	}
	return &Gate{client: client, clock: clock, platform: platform, version: clientVersion, lastStatus: ports.CompatCompatible}
}

// Check runs the compat RPC if the throttle window has elapsed, otherwise
// returns the cached status. Network failures fail open: the status is
// treated as CompatUnknown and canProceed remains true.
func (g *Gate) Check(ctx context.Context) (status ports.CompatStatus, canProceed bool) {
	now := g.clock.Now()
	if !g.lastCheck.IsZero() && now.Sub(g.lastCheck) < checkInterval {
		return g.lastStatus, g.lastStatus != ports.CompatUpdateRequired
	}

	g.lastCheck = now
	s, err := g.client.CheckVersionCompat(ctx, g.platform, g.version)
	if err != nil {
		g.lastStatus = ports.CompatUnknown
		return ports.CompatUnknown, true
	}
	g.lastStatus = s
	return s, s != ports.CompatUpdateRequired
}

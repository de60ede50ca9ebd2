package synctest

import (
	"context"
	"sync"

	"github.com/brightfield-crm/syncengine/internal/ports"
)

// CompatClient is a fake ports.CompatClient. Status defaults to Compatible;
// tests set Status (and optionally Err) to drive the App-Compat Gate's
// fail-open/fail-closed paths.
type CompatClient struct {
	mu     sync.Mutex
	Status ports.CompatStatus
	Err    error
	Calls  int
}

func NewCompatClient() *CompatClient {
	return &CompatClient{Status: ports.CompatCompatible}
}

func (c *CompatClient) CheckVersionCompat(ctx context.Context, platform, clientVersion string) (ports.CompatStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Calls++
	if c.Err != nil {
		return ports.CompatUnknown, c.Err
	}
	return c.Status, nil
}

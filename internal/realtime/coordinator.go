package realtime

import (
	"github.com/brightfield-crm/syncengine/internal/conflict"
	"github.com/brightfield-crm/syncengine/internal/entitysync"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// Coordinator is the realtime ingress coordinator: the orchestrator's
// sole handle onto realtime, composing the broadcast event parser and the
// channel lifecycle manager behind the calls the orchestrator's lifecycle
// actually needs (OnStateChange, StartListening, StopListening,
// ResetAndReconnect).
type Coordinator struct {
	*Lifecycle
}

// New wires a Dispatcher bound to deps and a Lifecycle bound to client,
// returning the composed Coordinator the orchestrator holds for the
// lifetime of a live-mode Engine.
func New(client ports.RealtimeClient, deps *entitysync.Deps, resolver *conflict.Resolver, principal ports.Principal, testMode bool) *Coordinator {
	dispatcher := &Dispatcher{Deps: deps}
	return &Coordinator{Lifecycle: NewLifecycle(client, dispatcher, resolver, principal, deps.Log, testMode)}
}

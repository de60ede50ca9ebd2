package synctest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/brightfield-crm/syncengine/internal/entitykind"
	"github.com/brightfield-crm/syncengine/internal/ports"
)

// RealtimeClient is a fake ports.RealtimeClient driven entirely by test
// code: Subscribe returns channels the test pushes into directly via
// PushChange/PushBroadcast/PushStatus, and SubscribeErr lets a test fail
// the next Subscribe call to exercise the Channel Lifecycle Manager's
// reconnect-backoff loop.
type RealtimeClient struct {
	mu sync.Mutex

	SubscribeErr   error // returned once, then cleared, if non-nil
	SubscribeCalls int

	changes     chan ports.ChangeEvent
	broadcasts  chan []byte
	status      chan ports.ConnectionState
	unsubscribe chan struct{}
	subscribed  bool
}

// NewRealtimeClient returns a fake with no pending Subscribe error.
func NewRealtimeClient() *RealtimeClient {
	return &RealtimeClient{}
}

func (c *RealtimeClient) Subscribe(ctx context.Context) (<-chan ports.ChangeEvent, <-chan []byte, <-chan ports.ConnectionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SubscribeCalls++
	if c.SubscribeErr != nil {
		err := c.SubscribeErr
		c.SubscribeErr = nil
		return nil, nil, nil, err
	}
	c.changes = make(chan ports.ChangeEvent, 16)
	c.broadcasts = make(chan []byte, 16)
	c.status = make(chan ports.ConnectionState, 4)
	c.unsubscribe = make(chan struct{})
	c.subscribed = true
	return c.changes, c.broadcasts, c.status, nil
}

func (c *RealtimeClient) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.subscribed {
		return nil
	}
	c.subscribed = false
	close(c.unsubscribe)
	return nil
}

// PushChange delivers a row-change event on the currently subscribed
// changes stream. No-op before the first successful Subscribe.
func (c *RealtimeClient) PushChange(ev ports.ChangeEvent) {
	c.mu.Lock()
	ch := c.changes
	c.mu.Unlock()
	if ch != nil {
		ch <- ev
	}
}

// PushBroadcast delivers a raw broadcast envelope built from the given
// table/type/record/originUserId, matching the wire shape internal/realtime
// decodes.
func (c *RealtimeClient) PushBroadcast(table entitykind.Kind, changeType string, record map[string]any, originUserID string) {
	payload := map[string]any{
		"table":        string(table),
		"type":         changeType,
		"eventVersion": 1,
		"originUserId": originUserID,
	}
	if changeType == "delete" {
		payload["oldRecord"] = record
	} else {
		payload["record"] = record
	}
	envelope := map[string]any{
		"event":   "broadcast",
		"payload": payload,
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		panic(fmt.Sprintf("synctest: marshal broadcast: %v", err))
	}
	c.mu.Lock()
	ch := c.broadcasts
	c.mu.Unlock()
	if ch != nil {
		ch <- raw
	}
}

// PushStatus delivers a transport-observed connection-state transition.
func (c *RealtimeClient) PushStatus(state ports.ConnectionState) {
	c.mu.Lock()
	ch := c.status
	c.mu.Unlock()
	if ch != nil {
		ch <- state
	}
}

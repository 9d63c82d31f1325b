package pgconn

import (
	"context"
	"fmt"
	"sync"
)

// NotificationCallback receives a LISTEN/NOTIFY payload delivered on the
// subscribed channel.
type NotificationCallback func(channel, payload string, pid uint32)

// ListenerSubscription is a handle to one channel subscription, returned
// by AddListener. It has no method to remove the subscription; Conn.Unlisten
// sends UNLISTEN and drops every callback registered for the channel.
type ListenerSubscription struct {
	channel string
	conn    *Conn
}

// Channel returns the subscribed channel name.
func (s *ListenerSubscription) Channel() string { return s.channel }

// listenerRegistry fans out NotificationResponse messages by channel name,
// layered on top of Conn's single OnNotification hook so multiple
// AddListener callers can share one connection.
type listenerRegistry struct {
	mu        sync.Mutex
	callbacks map[string][]NotificationCallback
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{callbacks: make(map[string][]NotificationCallback)}
}

func (lr *listenerRegistry) add(channel string, cb NotificationCallback) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.callbacks[channel] = append(lr.callbacks[channel], cb)
}

func (lr *listenerRegistry) dispatch(channel, payload string, pid uint32) {
	lr.mu.Lock()
	cbs := append([]NotificationCallback(nil), lr.callbacks[channel]...)
	lr.mu.Unlock()
	for _, cb := range cbs {
		cb(channel, payload, pid)
	}
}

func (lr *listenerRegistry) clear(channel string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	delete(lr.callbacks, channel)
}

// AddListener issues `LISTEN <channel>` and registers cb to receive every
// NotificationResponse delivered on that channel for the lifetime of the
// connection (or until Unlisten).
//
// Delivery happens inline with receive: a NotificationResponse that
// arrives while the connection is idle is only read off the socket (and
// cb only invoked) during the next call that performs a round trip on
// this Conn, such as Execute/Fetch/SimpleQuery. There is no background
// pump reading between calls, so a purely idle connection will not
// observe a notification until it next issues a command.
func (c *Conn) AddListener(ctx context.Context, channel string, cb NotificationCallback) (*ListenerSubscription, error) {
	c.ensureListenerRegistry()
	if _, err := c.SimpleQuery(ctx, fmt.Sprintf("LISTEN %s", quoteIdent(channel))); err != nil {
		return nil, err
	}
	c.listeners.add(channel, cb)
	return &ListenerSubscription{channel: channel, conn: c}, nil
}

// Unlisten issues `UNLISTEN <channel>` and removes every locally
// registered callback for it.
func (c *Conn) Unlisten(ctx context.Context, channel string) error {
	if _, err := c.SimpleQuery(ctx, fmt.Sprintf("UNLISTEN %s", quoteIdent(channel))); err != nil {
		return err
	}
	if c.listeners != nil {
		c.listeners.clear(channel)
	}
	return nil
}

func (c *Conn) ensureListenerRegistry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = newListenerRegistry()
		userHook := c.onNotification
		c.onNotification = func(channel, payload string, pid uint32) {
			if userHook != nil {
				userHook(channel, payload, pid)
			}
			c.listeners.dispatch(channel, payload, pid)
		}
	}
}

// quoteIdent double-quotes an identifier for safe interpolation into
// LISTEN/UNLISTEN, which (per the wire protocol) take a bare identifier,
// not a parameterizable value.
func quoteIdent(ident string) string {
	escaped := ""
	for _, r := range ident {
		if r == '"' {
			escaped += `""`
		} else {
			escaped += string(r)
		}
	}
	return `"` + escaped + `"`
}

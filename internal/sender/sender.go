// Package sender issues single Control calls against a running mock.
package sender

import (
	"context"
	"fmt"
	"strconv"

	"github.com/godbus/dbus/v5"

	"github.com/bigknoxy/nsmmock/internal/nsm"
)

// Caller is the part of dbus.BusObject the client uses.
type Caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Client calls methods of the Control interface on one remote object.
type Client struct {
	obj Caller
}

// New creates a Client for obj.
func New(obj Caller) *Client {
	return &Client{obj: obj}
}

// Dial resolves the mock at busName/objectPath on conn.
func Dial(conn *dbus.Conn, busName, objectPath string) (*Client, error) {
	path := dbus.ObjectPath(objectPath)
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", objectPath)
	}
	return New(conn.Object(busName, path)), nil
}

func (c *Client) call(ctx context.Context, member string, args ...interface{}) (int32, error) {
	var ret int32
	method := nsm.ControlInterface + "." + member
	if err := c.obj.CallWithContext(ctx, method, 0, args...).Store(&ret); err != nil {
		return 0, fmt.Errorf("%s: %w", member, err)
	}
	return ret, nil
}

// NodeState calls sendNodeState.
func (c *Client) NodeState(ctx context.Context, state int32) (int32, error) {
	return c.call(ctx, "sendNodeState", state)
}

// AppMode calls sendNodeApplicationMode.
func (c *Client) AppMode(ctx context.Context, mode int32) (int32, error) {
	return c.call(ctx, "sendNodeApplicationMode", mode)
}

// SessionState calls sendSessionState.
func (c *Client) SessionState(ctx context.Context, sessionName string, seatID, state int32) (int32, error) {
	return c.call(ctx, "sendSessionState", sessionName, seatID, state)
}

// LifecycleRequest calls sendLifeCycleRequest.
func (c *Client) LifecycleRequest(ctx context.Context, request, requestID uint32) (int32, error) {
	return c.call(ctx, "sendLifeCycleRequest", request, requestID)
}

// Finish calls finish.
func (c *Client) Finish(ctx context.Context) (int32, error) {
	return c.call(ctx, "finish")
}

// ParseInt32 converts a decimal command-line argument to int32.
func ParseInt32(name, s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return int32(v), nil
}

// ParseUint32 converts a decimal command-line argument to uint32.
func ParseUint32(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return uint32(v), nil
}

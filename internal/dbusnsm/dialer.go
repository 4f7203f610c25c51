package dbusnsm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bigknoxy/nsmmock/internal/nsm"
)

// ObjectConn is the part of *dbus.Conn used to reach remote objects.
type ObjectConn interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

// Dialer resolves registered shutdown clients to LifeCycleConsumer proxies.
type Dialer struct {
	conn    ObjectConn
	timeout time.Duration
}

// NewDialer creates a Dialer. A zero timeout leaves calls unbounded.
func NewDialer(conn ObjectConn, timeout time.Duration) *Dialer {
	return &Dialer{conn: conn, timeout: timeout}
}

var _ nsm.Dialer = (*Dialer)(nil)

// Dial checks the address and returns a proxy for it. Nothing is sent on
// the bus until the proxy is used.
func (d *Dialer) Dial(ctx context.Context, busName, objectPath string) (nsm.LifecycleConsumer, error) {
	if busName == "" {
		return nil, errors.New("empty bus name")
	}
	path := dbus.ObjectPath(objectPath)
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", objectPath)
	}
	return &lifecycleClient{
		obj:     d.conn.Object(busName, path),
		timeout: d.timeout,
	}, nil
}

type lifecycleClient struct {
	obj     dbus.BusObject
	timeout time.Duration
}

func (c *lifecycleClient) LifecycleRequest(ctx context.Context, request, requestID uint32) (int32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	call := c.obj.CallWithContext(ctx, methodLifecycleRequest, 0, request, requestID)
	if call.Err != nil {
		return 0, call.Err
	}
	// Only the delivery matters; a reply that is not a single int32 reads as 0.
	if len(call.Body) == 1 {
		if ret, ok := call.Body[0].(int32); ok {
			return ret, nil
		}
	}
	return 0, nil
}

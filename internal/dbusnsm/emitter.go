package dbusnsm

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/bigknoxy/nsmmock/internal/nsm"
)

// SignalConn is the part of *dbus.Conn used to broadcast signals.
type SignalConn interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// Emitter broadcasts the Consumer interface signals from one object path.
type Emitter struct {
	conn SignalConn
	path dbus.ObjectPath
}

// NewEmitter creates an Emitter for path.
func NewEmitter(conn SignalConn, path dbus.ObjectPath) *Emitter {
	return &Emitter{conn: conn, path: path}
}

var _ nsm.Notifier = (*Emitter)(nil)

func (e *Emitter) emit(member string, values ...interface{}) error {
	return e.conn.Emit(e.path, nsm.ConsumerInterface+"."+member, values...)
}

func (e *Emitter) NodeApplicationMode(ctx context.Context, mode int32) error {
	return e.emit(nsm.SignalNodeApplicationMode, mode)
}

func (e *Emitter) NodeState(ctx context.Context, state int32) error {
	return e.emit(nsm.SignalNodeState, state)
}

func (e *Emitter) SessionStateChanged(ctx context.Context, sessionName string, seatID, state int32) error {
	return e.emit(nsm.SignalSessionStateChanged, sessionName, seatID, state)
}

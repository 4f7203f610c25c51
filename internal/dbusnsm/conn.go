// Package dbusnsm exposes an nsm.Handler on a D-Bus connection and provides
// the D-Bus side of signal emission, client dialing and the control client.
package dbusnsm

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/bigknoxy/nsmmock/internal/bus"
	"github.com/bigknoxy/nsmmock/internal/nsm"
)

const (
	methodLifecycleRequest = nsm.LifecycleConsumerInterface + ".LifecycleRequest"
)

// Connect opens a private connection to the session or system bus.
func Connect(kind string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch kind {
	case "", "session":
		conn, err = dbus.ConnectSessionBus()
	case "system":
		conn, err = dbus.ConnectSystemBus()
	default:
		return nil, fmt.Errorf("unknown bus %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s bus: %w", kind, err)
	}
	return conn, nil
}

// ValidateIntrospection checks that doc is a D-Bus introspection document
// describing the Consumer and Control interfaces.
func ValidateIntrospection(doc string) error {
	var node introspect.Node
	if err := xml.Unmarshal([]byte(doc), &node); err != nil {
		return fmt.Errorf("invalid introspection document: %w", err)
	}
	want := map[string]bool{
		nsm.ConsumerInterface: false,
		nsm.ControlInterface:  false,
	}
	for _, iface := range node.Interfaces {
		if _, ok := want[iface.Name]; ok {
			want[iface.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			return fmt.Errorf("introspection document does not describe %s", name)
		}
	}
	return nil
}

func errorName(kind string) string {
	return nsm.ErrorPrefix + "." + kind
}

// toDBusError maps Go errors onto named D-Bus errors.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	var dErr *dbus.Error
	if errors.As(err, &dErr) {
		return dErr
	}
	body := []interface{}{err.Error()}
	switch {
	case errors.Is(err, nsm.ErrNotRegistered):
		return dbus.NewError(errorName("NotRegistered"), body)
	case errors.Is(err, nsm.ErrIntrospectionMissing):
		return dbus.NewError(errorName("IntrospectionMissing"), body)
	case errors.Is(err, bus.ErrStopped):
		return dbus.NewError(errorName("Stopped"), body)
	case errors.Is(err, context.DeadlineExceeded):
		return dbus.NewError(errorName("Timeout"), body)
	}
	return dbus.MakeFailedError(err)
}

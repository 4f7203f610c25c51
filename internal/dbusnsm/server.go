package dbusnsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/bigknoxy/nsmmock/internal/bus"
	"github.com/bigknoxy/nsmmock/internal/log"
	"github.com/bigknoxy/nsmmock/internal/nsm"
)

// ErrNameTaken is returned when another process owns the bus name.
var ErrNameTaken = errors.New("bus name already owned")

// replyGrace is how long Close waits after the last handler returned.
// godbus marshals and sends the reply only after the exported method
// returns, so without it the finish reply can be lost with the connection.
const replyGrace = 100 * time.Millisecond

// Conn is the part of *dbus.Conn the Server uses.
type Conn interface {
	Export(v interface{}, path dbus.ObjectPath, iface string) error
	ExportWithMap(v interface{}, mapping map[string]string, path dbus.ObjectPath, iface string) error
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
	ReleaseName(name string) (dbus.ReleaseNameReply, error)
	Close() error
}

var _ Conn = (*dbus.Conn)(nil)

// Server exports a Handler under one object path and bus name. Every call
// is run through the dispatch loop.
type Server struct {
	conn    Conn
	loop    *bus.Loop
	handler nsm.Handler
	name    string
	path    dbus.ObjectPath

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	logger   *log.Logger
}

// NewServer creates a Server. Call Start to export and claim the name.
func NewServer(conn Conn, loop *bus.Loop, handler nsm.Handler, name string, path dbus.ObjectPath) *Server {
	return &Server{
		conn:    conn,
		loop:    loop,
		handler: handler,
		name:    name,
		path:    path,
		logger:  log.SubPackage("dbus"),
	}
}

// controlMethods maps Go method names to the Control interface members.
var controlMethods = map[string]string{
	"SendNodeApplicationMode": "sendNodeApplicationMode",
	"SendNodeState":           "sendNodeState",
	"SendSessionState":        "sendSessionState",
	"SendLifeCycleRequest":    "sendLifeCycleRequest",
	"Finish":                  "finish",
}

// Start exports all interfaces and requests the well-known name.
func (s *Server) Start() error {
	exports := []struct {
		obj   interface{}
		iface string
	}{
		{&consumerObject{s}, nsm.ConsumerInterface},
		{&propertiesObject{s}, nsm.PropertiesInterface},
		{&introspectableObject{s}, nsm.IntrospectableInterface},
	}
	for _, e := range exports {
		if err := s.conn.Export(e.obj, s.path, e.iface); err != nil {
			return fmt.Errorf("failed to export %s: %w", e.iface, err)
		}
	}
	if err := s.conn.ExportWithMap(&controlObject{s}, controlMethods, s.path, nsm.ControlInterface); err != nil {
		return fmt.Errorf("failed to export %s: %w", nsm.ControlInterface, err)
	}

	reply, err := s.conn.RequestName(s.name, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name %s: %w", s.name, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.name)
	}
	s.logger.Info("service registered", "name", s.name, "path", s.path)
	return nil
}

// Close releases the name and closes the connection after in-flight calls
// have returned. Calls arriving after Close fail with the Stopped error.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	time.Sleep(replyGrace)

	var errs []error
	if _, err := s.conn.ReleaseName(s.name); err != nil {
		errs = append(errs, fmt.Errorf("failed to release name: %w", err))
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
	}
	return errors.Join(errs...)
}

// do runs fn on the dispatch loop and converts any failure to a D-Bus error.
func (s *Server) do(method string, sender dbus.Sender, fn func(ctx context.Context) error) *dbus.Error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return toDBusError(bus.ErrStopped)
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx := log.ContextWithTraceID(context.Background(), "")
	s.logger.Debug("call", "method", method, "sender", string(sender), "trace_id", log.TraceIDFromContext(ctx))

	var herr error
	if err := s.loop.Do(ctx, method, func(ctx context.Context) {
		herr = fn(ctx)
	}); err != nil {
		return toDBusError(err)
	}
	if herr != nil {
		s.logger.Warn("call failed", "method", method, "error", herr)
		return toDBusError(herr)
	}
	return nil
}

type consumerObject struct{ s *Server }

func (o *consumerObject) GetNodeState(sender dbus.Sender) (state, code int32, dErr *dbus.Error) {
	dErr = o.s.do("GetNodeState", sender, func(ctx context.Context) error {
		state, code = o.s.handler.GetNodeState(ctx)
		return nil
	})
	return
}

func (o *consumerObject) GetApplicationMode(sender dbus.Sender) (mode, code int32, dErr *dbus.Error) {
	dErr = o.s.do("GetApplicationMode", sender, func(ctx context.Context) error {
		mode, code = o.s.handler.GetApplicationMode(ctx)
		return nil
	})
	return
}

func (o *consumerObject) GetSessionState(sender dbus.Sender, sessionName string, seatID int32) (state, code int32, dErr *dbus.Error) {
	dErr = o.s.do("GetSessionState", sender, func(ctx context.Context) error {
		state, code = o.s.handler.GetSessionState(ctx, sessionName, seatID)
		return nil
	})
	return
}

func (o *consumerObject) RegisterShutdownClient(sender dbus.Sender, busName, objectPath string, shutdownMode, timeoutMs uint32) (code int32, dErr *dbus.Error) {
	dErr = o.s.do("RegisterShutdownClient", sender, func(ctx context.Context) error {
		code = o.s.handler.RegisterShutdownClient(ctx, busName, objectPath, shutdownMode, timeoutMs)
		return nil
	})
	return
}

func (o *consumerObject) UnRegisterShutdownClient(sender dbus.Sender, busName, objectPath string, shutdownMode uint32) (code int32, dErr *dbus.Error) {
	dErr = o.s.do("UnRegisterShutdownClient", sender, func(ctx context.Context) error {
		code = o.s.handler.UnRegisterShutdownClient(ctx, busName, objectPath, shutdownMode)
		return nil
	})
	return
}

func (o *consumerObject) GetInterfaceVersion(sender dbus.Sender) (version uint32, dErr *dbus.Error) {
	dErr = o.s.do("GetInterfaceVersion", sender, func(ctx context.Context) error {
		version = o.s.handler.GetInterfaceVersion(ctx)
		return nil
	})
	return
}

func (o *consumerObject) LifecycleRequestComplete(sender dbus.Sender, requestID uint32, status int32) (code int32, dErr *dbus.Error) {
	dErr = o.s.do("LifecycleRequestComplete", sender, func(ctx context.Context) error {
		code = o.s.handler.LifecycleRequestComplete(ctx, requestID, status)
		return nil
	})
	return
}

type propertiesObject struct{ s *Server }

func (o *propertiesObject) Get(sender dbus.Sender, iface, name string) (value dbus.Variant, dErr *dbus.Error) {
	dErr = o.s.do("Get", sender, func(ctx context.Context) error {
		value = dbus.MakeVariant(o.s.handler.GetProperty(ctx, iface, name))
		return nil
	})
	return
}

func (o *propertiesObject) Set(sender dbus.Sender, iface, name string, value dbus.Variant) (code int32, dErr *dbus.Error) {
	dErr = o.s.do("Set", sender, func(ctx context.Context) error {
		code = o.s.handler.SetProperty(ctx, iface, name, value.Value())
		return nil
	})
	return
}

func (o *propertiesObject) GetAll(sender dbus.Sender, iface string) (props map[string]dbus.Variant, dErr *dbus.Error) {
	dErr = o.s.do("GetAll", sender, func(ctx context.Context) error {
		table := o.s.handler.GetAllProperties(ctx, iface)
		props = make(map[string]dbus.Variant, len(table))
		for k, v := range table {
			props[k] = dbus.MakeVariant(v)
		}
		return nil
	})
	return
}

type introspectableObject struct{ s *Server }

func (o *introspectableObject) Introspect(sender dbus.Sender) (doc string, dErr *dbus.Error) {
	dErr = o.s.do("Introspect", sender, func(ctx context.Context) error {
		var err error
		doc, err = o.s.handler.Introspect(ctx)
		return err
	})
	return
}

type controlObject struct{ s *Server }

func (o *controlObject) SendNodeApplicationMode(sender dbus.Sender, mode int32) (out int32, dErr *dbus.Error) {
	dErr = o.s.do("sendNodeApplicationMode", sender, func(ctx context.Context) error {
		var err error
		out, err = o.s.handler.SendNodeApplicationMode(ctx, mode)
		return err
	})
	return
}

func (o *controlObject) SendNodeState(sender dbus.Sender, state int32) (out int32, dErr *dbus.Error) {
	dErr = o.s.do("sendNodeState", sender, func(ctx context.Context) error {
		var err error
		out, err = o.s.handler.SendNodeState(ctx, state)
		return err
	})
	return
}

func (o *controlObject) SendSessionState(sender dbus.Sender, sessionName string, seatID, state int32) (out int32, dErr *dbus.Error) {
	dErr = o.s.do("sendSessionState", sender, func(ctx context.Context) error {
		var err error
		out, err = o.s.handler.SendSessionState(ctx, sessionName, seatID, state)
		return err
	})
	return
}

func (o *controlObject) SendLifeCycleRequest(sender dbus.Sender, request, requestID uint32) (out int32, dErr *dbus.Error) {
	dErr = o.s.do("sendLifeCycleRequest", sender, func(ctx context.Context) error {
		var err error
		out, err = o.s.handler.SendLifecycleRequest(ctx, request, requestID)
		return err
	})
	return
}

func (o *controlObject) Finish(sender dbus.Sender) (out int32, dErr *dbus.Error) {
	dErr = o.s.do("finish", sender, func(ctx context.Context) error {
		out = o.s.handler.Finish(ctx)
		return nil
	})
	return
}

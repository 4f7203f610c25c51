package nsm

import "context"

// Handler is the request/response surface of the emulated service. There is
// one method per remote operation; transports translate wire calls into
// these methods and the results back.
type Handler interface {
	// org.freedesktop.DBus.Introspectable
	Introspect(ctx context.Context) (string, error)

	// org.genivi.NodeStateManager.Consumer
	GetNodeState(ctx context.Context) (state, code int32)
	GetApplicationMode(ctx context.Context) (mode, code int32)
	GetSessionState(ctx context.Context, sessionName string, seatID int32) (state, code int32)
	RegisterShutdownClient(ctx context.Context, busName, objectPath string, shutdownMode, timeoutMs uint32) int32
	UnRegisterShutdownClient(ctx context.Context, busName, objectPath string, shutdownMode uint32) int32
	GetInterfaceVersion(ctx context.Context) uint32
	LifecycleRequestComplete(ctx context.Context, requestID uint32, status int32) int32

	// org.freedesktop.DBus.Properties
	GetProperty(ctx context.Context, iface, name string) int32
	SetProperty(ctx context.Context, iface, name string, value any) int32
	GetAllProperties(ctx context.Context, iface string) PropertyTable

	// org.genivi.NodeStateManager.Control
	SendNodeApplicationMode(ctx context.Context, mode int32) (int32, error)
	SendNodeState(ctx context.Context, state int32) (int32, error)
	SendSessionState(ctx context.Context, sessionName string, seatID, state int32) (int32, error)
	SendLifecycleRequest(ctx context.Context, request, requestID uint32) (int32, error)
	Finish(ctx context.Context) int32
}

// Notifier broadcasts the Consumer interface signals.
type Notifier interface {
	NodeApplicationMode(ctx context.Context, mode int32) error
	NodeState(ctx context.Context, state int32) error
	SessionStateChanged(ctx context.Context, sessionName string, seatID, state int32) error
}

// LifecycleConsumer is a registered shutdown client that can receive
// lifecycle requests.
type LifecycleConsumer interface {
	LifecycleRequest(ctx context.Context, request, requestID uint32) (int32, error)
}

// Dialer resolves a shutdown client from its bus name and object path.
type Dialer interface {
	Dial(ctx context.Context, busName, objectPath string) (LifecycleConsumer, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, busName, objectPath string) (LifecycleConsumer, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, busName, objectPath string) (LifecycleConsumer, error) {
	return f(ctx, busName, objectPath)
}

type nopNotifier struct{}

func (nopNotifier) NodeApplicationMode(context.Context, int32) error { return nil }
func (nopNotifier) NodeState(context.Context, int32) error           { return nil }
func (nopNotifier) SessionStateChanged(context.Context, string, int32, int32) error {
	return nil
}

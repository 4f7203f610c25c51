package nsm

import (
	"context"
	"fmt"

	"github.com/bigknoxy/nsmmock/internal/log"
)

// State is the run state of the service.
type State int

const (
	StateRunning State = iota
	StateStopped
)

func (s State) String() string {
	if s == StateStopped {
		return "stopped"
	}
	return "running"
}

// Service is the canned Node State Manager. All of its state lives here so
// tests can build a fresh instance per case. Calls are expected to be
// serialized by the caller; Service does no locking of its own.
type Service struct {
	fixture       Fixture
	properties    PropertyTable
	introspection string
	strict        bool

	registration Registration
	state        State

	notifier Notifier
	dialer   Dialer
	stop     func()
	logger   *log.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithFixture overrides the expected values used by the canned checks.
func WithFixture(f Fixture) Option {
	return func(s *Service) { s.fixture = f }
}

// WithIntrospection sets the document returned by Introspect.
func WithIntrospection(doc string) Option {
	return func(s *Service) { s.introspection = doc }
}

// WithNotifier sets the signal emitter.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithDialer sets how registered shutdown clients are resolved.
func WithDialer(d Dialer) Option {
	return func(s *Service) { s.dialer = d }
}

// WithStopFunc sets the function Finish calls to end the dispatch loop.
func WithStopFunc(fn func()) Option {
	return func(s *Service) { s.stop = fn }
}

// WithStrictRegistration makes RegisterShutdownClient keep the previous
// registration when validation fails.
func WithStrictRegistration(strict bool) Option {
	return func(s *Service) { s.strict = strict }
}

// WithLogger sets the logger used for call traces.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service with the default fixture and property table.
func NewService(opts ...Option) *Service {
	s := &Service{
		fixture:    DefaultFixture(),
		properties: DefaultProperties(),
		notifier:   nopNotifier{},
		stop:       func() {},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.SubPackage("service")
	}
	return s
}

var _ Handler = (*Service)(nil)

// Registration returns the currently stored shutdown client.
func (s *Service) Registration() Registration {
	return s.registration
}

// State returns whether Finish has been called.
func (s *Service) State() State {
	return s.state
}

// Properties returns a copy of the property table.
func (s *Service) Properties() PropertyTable {
	return s.properties.Clone()
}

func (s *Service) trace(ctx context.Context) *log.Logger {
	if id := log.TraceIDFromContext(ctx); id != "" {
		return s.logger.With("trace_id", id)
	}
	return s.logger
}

// Introspect returns the description document loaded at startup.
func (s *Service) Introspect(ctx context.Context) (string, error) {
	if s.introspection == "" {
		return "", ErrIntrospectionMissing
	}
	return s.introspection, nil
}

// GetNodeState always answers (1, 1).
func (s *Service) GetNodeState(ctx context.Context) (int32, int32) {
	s.trace(ctx).Info("send out node state", "state", NodeState(fixedNodeState), "code", fixedNodeStateCode)
	return fixedNodeState, fixedNodeStateCode
}

// GetApplicationMode always answers (5, 2).
func (s *Service) GetApplicationMode(ctx context.Context) (int32, int32) {
	s.trace(ctx).Info("send out application mode", "mode", fixedAppMode, "code", fixedAppModeCode)
	return fixedAppMode, fixedAppModeCode
}

// GetSessionState answers (5, 1) for the fixture session and (0, 2) otherwise.
func (s *Service) GetSessionState(ctx context.Context, sessionName string, seatID int32) (int32, int32) {
	state, code := unmatchedSessionCode, CodeMismatch
	if sessionName == s.fixture.SessionName && seatID == s.fixture.SeatID {
		state, code = matchedSessionState, CodeOK
	}
	s.trace(ctx).Info("get session state", "session", sessionName, "seat", seatID, "state", state)
	return state, code
}

// RegisterShutdownClient validates the client against the fixture and
// stores it. Unless strict registration is on, the client is stored even
// when validation fails.
func (s *Service) RegisterShutdownClient(ctx context.Context, busName, objectPath string, shutdownMode, timeoutMs uint32) int32 {
	l := s.trace(ctx)
	l.Info("register shutdown client",
		"bus", busName,
		"path", objectPath,
		"mode", ShutdownType(shutdownMode),
		"timeout_ms", timeoutMs)

	code := s.fixture.checkRegistration(busName, objectPath, shutdownMode, timeoutMs)
	if code != CodeOK {
		if s.strict {
			l.Warn("registration rejected", "code", code)
			return code
		}
		l.Warn("registration stored despite mismatch", "code", code)
	}

	reg := Registration{BusName: busName, ObjectPath: objectPath, stored: true}
	if s.dialer != nil {
		consumer, err := s.dialer.Dial(ctx, busName, objectPath)
		if err != nil {
			l.Error("failed to resolve shutdown client", "bus", busName, "path", objectPath, "error", err)
		} else {
			reg.consumer = consumer
		}
	}
	s.registration = reg
	return code
}

// UnRegisterShutdownClient succeeds only for the stored client with the
// expected shutdown mode.
func (s *Service) UnRegisterShutdownClient(ctx context.Context, busName, objectPath string, shutdownMode uint32) int32 {
	s.trace(ctx).Info("unregister shutdown client",
		"bus", busName,
		"path", objectPath,
		"mode", ShutdownType(shutdownMode))
	if !s.registration.Matches(busName, objectPath) || shutdownMode != s.fixture.ShutdownMode {
		return CodeMismatch
	}
	return CodeOK
}

// GetInterfaceVersion always answers 23.
func (s *Service) GetInterfaceVersion(ctx context.Context) uint32 {
	return InterfaceVersion
}

// LifecycleRequestComplete succeeds only for the fixture request id and status.
func (s *Service) LifecycleRequestComplete(ctx context.Context, requestID uint32, status int32) int32 {
	s.trace(ctx).Info("lifecycle request complete", "request_id", requestID, "status", ErrorStatus(status))
	if requestID != s.fixture.RequestID || status != s.fixture.RequestState {
		return CodeMismatch
	}
	return CodeOK
}

// GetProperty looks name up in the property table. Unknown names read as 0.
// The interface name is ignored.
func (s *Service) GetProperty(ctx context.Context, iface, name string) int32 {
	v, ok := s.properties.Lookup(name)
	if ok {
		s.trace(ctx).Info("send out property", "property", name, "value", v)
	}
	return v
}

// SetProperty rejects every write.
func (s *Service) SetProperty(ctx context.Context, iface, name string, value any) int32 {
	s.trace(ctx).Debug("property write rejected", "interface", iface, "property", name)
	return CodeReadOnly
}

// GetAllProperties returns the whole table regardless of iface.
func (s *Service) GetAllProperties(ctx context.Context, iface string) PropertyTable {
	return s.properties.Clone()
}

// SendNodeApplicationMode emits NodeApplicationMode and echoes mode.
func (s *Service) SendNodeApplicationMode(ctx context.Context, mode int32) (int32, error) {
	s.trace(ctx).Info("send out application mode", "mode", mode)
	if err := s.notifier.NodeApplicationMode(ctx, mode); err != nil {
		return 0, fmt.Errorf("failed to emit %s: %w", SignalNodeApplicationMode, err)
	}
	return mode, nil
}

// SendNodeState emits NodeState and echoes state.
func (s *Service) SendNodeState(ctx context.Context, state int32) (int32, error) {
	s.trace(ctx).Info("send out node state", "state", NodeState(state))
	if err := s.notifier.NodeState(ctx, state); err != nil {
		return 0, fmt.Errorf("failed to emit %s: %w", SignalNodeState, err)
	}
	return state, nil
}

// SendSessionState emits SessionStateChanged and returns seatID.
func (s *Service) SendSessionState(ctx context.Context, sessionName string, seatID, state int32) (int32, error) {
	s.trace(ctx).Info("send out session state changed",
		"session", sessionName,
		"seat", seatID,
		"state", SessionState(state))
	if err := s.notifier.SessionStateChanged(ctx, sessionName, seatID, state); err != nil {
		return 0, fmt.Errorf("failed to emit %s: %w", SignalSessionStateChanged, err)
	}
	return seatID, nil
}

// SendLifecycleRequest forwards the request to the registered shutdown
// client and returns 42. The client's own return value is only logged.
func (s *Service) SendLifecycleRequest(ctx context.Context, request, requestID uint32) (int32, error) {
	l := s.trace(ctx)
	if !s.registration.Registered() {
		l.Error("lifecycle request without registered client", "request", request, "request_id", requestID)
		return 0, ErrNotRegistered
	}
	l.Info("send lifecycle request",
		"bus", s.registration.BusName,
		"path", s.registration.ObjectPath,
		"request", request,
		"request_id", requestID)
	ret, err := s.registration.consumer.LifecycleRequest(ctx, request, requestID)
	if err != nil {
		return 0, fmt.Errorf("lifecycle request to %s failed: %w", s.registration.BusName, err)
	}
	l.Debug("lifecycle request answered", "status", ErrorStatus(ret))
	return LifecycleRequestAck, nil
}

// Finish stops the dispatch loop. Later calls to Finish are no-ops.
func (s *Service) Finish(ctx context.Context) int32 {
	if s.state == StateStopped {
		return FinishAck
	}
	s.trace(ctx).Info("going to exit now")
	s.state = StateStopped
	s.stop()
	return FinishAck
}

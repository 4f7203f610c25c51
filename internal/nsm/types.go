// Package nsm implements the canned behavior of a Node State Manager test double.
//
// Nothing in this package knows about D-Bus. The transport layer forwards
// calls to a Handler and supplies a Notifier for signals and a Dialer for
// outbound lifecycle requests.
package nsm

import "fmt"

// Well-known names of the emulated service.
const (
	BusName    = "org.genivi.NodeStateManager.Consumer_org.genivi.NodeStateManager"
	ObjectPath = "/org/genivi/NodeStateManager"

	ConsumerInterface          = "org.genivi.NodeStateManager.Consumer"
	ControlInterface           = "org.genivi.NodeStateManager.Control"
	LifecycleConsumerInterface = "org.genivi.NodeStateManager.LifeCycleConsumer"
	PropertiesInterface        = "org.freedesktop.DBus.Properties"
	IntrospectableInterface    = "org.freedesktop.DBus.Introspectable"

	// ErrorPrefix names D-Bus errors raised by the mock.
	ErrorPrefix = "org.genivi.NodeStateManager.Error"
)

// Signal member names on the Consumer interface.
const (
	SignalNodeApplicationMode = "NodeApplicationMode"
	SignalNodeState           = "NodeState"
	SignalSessionStateChanged = "SessionStateChanged"
)

// Result codes returned in-band. Their meaning is local to each operation;
// only CodeOK is shared.
const (
	CodeOK       int32 = 1
	CodeMismatch int32 = 2

	CodeBadTimeout      int32 = 3
	CodeBadBusName      int32 = 4
	CodeBadShutdownMode int32 = 5
	CodeBadObjectPath   int32 = 6

	// CodeReadOnly is returned by every property write.
	CodeReadOnly int32 = 3
)

// Fixed values answered by the canned queries.
const (
	InterfaceVersion     uint32 = 23
	LifecycleRequestAck  int32  = 42
	FinishAck            int32  = 0
	fixedNodeState       int32  = 1
	fixedNodeStateCode   int32  = 1
	fixedAppMode         int32  = 5
	fixedAppModeCode     int32  = 2
	matchedSessionState  int32  = 5
	unmatchedSessionCode int32  = 0
)

// NodeState mirrors NsmNodeState_e.
type NodeState int32

const (
	NodeStateNotSet NodeState = iota
	NodeStateStartUp
	NodeStateBaseRunning
	NodeStateLucRunning
	NodeStateFullyRunning
	NodeStateFullyOperational
	NodeStateShuttingDown
	NodeStateShutdownDelay
	NodeStateFastShutdown
	NodeStateDegradedPower
	NodeStateShutdown
)

var nodeStateNames = [...]string{
	"NotSet", "StartUp", "BaseRunning", "LucRunning", "FullyRunning",
	"FullyOperational", "ShuttingDown", "ShutdownDelay", "FastShutdown",
	"DegradedPower", "Shutdown",
}

func (s NodeState) String() string {
	if s >= 0 && int(s) < len(nodeStateNames) {
		return nodeStateNames[s]
	}
	return fmt.Sprintf("NodeState(%d)", int32(s))
}

// SessionState mirrors NsmSessionState_e.
type SessionState int32

const (
	SessionStateUnregistered SessionState = iota
	SessionStateInactive
	SessionStateActive
)

func (s SessionState) String() string {
	switch s {
	case SessionStateUnregistered:
		return "Unregistered"
	case SessionStateInactive:
		return "Inactive"
	case SessionStateActive:
		return "Active"
	}
	return fmt.Sprintf("SessionState(%d)", int32(s))
}

// ErrorStatus mirrors NsmErrorStatus_e. LifecycleRequestComplete receives
// one of these as its status argument.
type ErrorStatus int32

const (
	ErrorStatusNotSet ErrorStatus = iota
	ErrorStatusOk
	ErrorStatusError
	ErrorStatusDbus
	ErrorStatusInternal
	ErrorStatusParameter
	ErrorStatusWrongSession
	ErrorStatusResponsePending
)

var errorStatusNames = [...]string{
	"NotSet", "Ok", "Error", "Dbus", "Internal", "Parameter",
	"WrongSession", "ResponsePending",
}

func (s ErrorStatus) String() string {
	if s >= 0 && int(s) < len(errorStatusNames) {
		return errorStatusNames[s]
	}
	return fmt.Sprintf("ErrorStatus(%d)", int32(s))
}

// ShutdownType is the bit mask passed when registering a shutdown client.
type ShutdownType uint32

const (
	ShutdownTypeNot    ShutdownType = 0x00000000
	ShutdownTypeNormal ShutdownType = 0x00000001
	ShutdownTypeFast   ShutdownType = 0x00000002
	ShutdownTypeRunUp  ShutdownType = 0x80000000
)

func (t ShutdownType) String() string {
	switch t {
	case ShutdownTypeNot:
		return "Not"
	case ShutdownTypeNormal:
		return "Normal"
	case ShutdownTypeFast:
		return "Fast"
	case ShutdownTypeRunUp:
		return "RunUp"
	case ShutdownTypeNormal | ShutdownTypeFast:
		return "Normal|Fast"
	}
	return fmt.Sprintf("ShutdownType(%#x)", uint32(t))
}

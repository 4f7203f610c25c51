package nsm

import (
	"errors"
	"fmt"
	"os"
)

// Property names served through org.freedesktop.DBus.Properties.
const (
	PropRestartReason  = "RestartReason"
	PropShutdownReason = "ShutdownReason"
	PropWakeUpReason   = "WakeUpReason"
	PropBootMode       = "BootMode"
)

// DefaultIntrospectionFile is the description document read at startup.
const DefaultIntrospectionFile = "org.genivi.NodeStateManager.Consumer.xml"

var (
	// ErrNotRegistered is returned when a lifecycle request is sent before
	// any shutdown client registered.
	ErrNotRegistered = errors.New("no shutdown client registered")

	// ErrIntrospectionMissing is returned when the description document
	// cannot be found.
	ErrIntrospectionMissing = errors.New("introspection document missing")
)

// PropertyTable maps property names to their fixed values.
type PropertyTable map[string]int32

// DefaultProperties returns the fixed property table.
func DefaultProperties() PropertyTable {
	return PropertyTable{
		PropRestartReason:  1,
		PropShutdownReason: 2,
		PropWakeUpReason:   3,
		PropBootMode:       4,
	}
}

// Lookup returns the value for name, or 0 when the property is unknown.
func (p PropertyTable) Lookup(name string) (int32, bool) {
	v, ok := p[name]
	return v, ok
}

// Clone returns an independent copy of the table.
func (p PropertyTable) Clone() PropertyTable {
	out := make(PropertyTable, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Fixture holds the values the canned checks compare against.
type Fixture struct {
	SessionName  string
	SeatID       int32
	ClientBus    string
	ClientPath   string
	ShutdownMode uint32
	TimeoutMs    uint32
	RequestID    uint32
	RequestState int32
}

// DefaultFixture returns the values the AudioManager lifecycle tests use.
func DefaultFixture() Fixture {
	return Fixture{
		SessionName:  "mySession",
		SeatID:       1,
		ClientBus:    "org.genivi.NodeStateManager.LifeCycleConsumer_org.genivi.audiomanager",
		ClientPath:   "/org/genivi/audiomanager",
		ShutdownMode: uint32(ShutdownTypeNormal),
		TimeoutMs:    100,
		RequestID:    22,
		RequestState: int32(ErrorStatusInternal),
	}
}

// checkRegistration validates a registration against the fixture. Fields are
// checked in a fixed order and the first mismatch decides the code.
func (f Fixture) checkRegistration(busName, objectPath string, mode, timeoutMs uint32) int32 {
	switch {
	case timeoutMs != f.TimeoutMs:
		return CodeBadTimeout
	case busName != f.ClientBus:
		return CodeBadBusName
	case mode != f.ShutdownMode:
		return CodeBadShutdownMode
	case objectPath != f.ClientPath:
		return CodeBadObjectPath
	}
	return CodeOK
}

// Registration is the shutdown client most recently registered. The zero
// value holds empty sentinels and no lifecycle capability.
type Registration struct {
	BusName    string
	ObjectPath string

	stored   bool
	consumer LifecycleConsumer
}

// Registered reports whether a lifecycle capability is available.
func (r Registration) Registered() bool {
	return r.consumer != nil
}

// Matches reports whether busName and objectPath equal the stored client.
// Nothing matches before the first registration.
func (r Registration) Matches(busName, objectPath string) bool {
	return r.stored && r.BusName == busName && r.ObjectPath == objectPath
}

// LoadIntrospection reads the description document at path.
func LoadIntrospection(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrIntrospectionMissing, path)
		}
		return "", fmt.Errorf("failed to read introspection document: %w", err)
	}
	return string(data), nil
}

package device

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/gattlink/internal/gatt"
)

// Options configures the per-operation callback timeout and the notification
// buffer depth.
type Options = gatt.Options

// DefaultOptions returns the stock configuration (5s operation timeout).
func DefaultOptions() Options { return gatt.DefaultOptions() }

// ServiceInfo describes one discovered service, as reported by the platform
// adapter to Stack.ServicesDiscovered.
type ServiceInfo = gatt.ServiceInfo

// CharacteristicInfo describes one discovered characteristic.
type CharacteristicInfo = gatt.CharacteristicInfo

// Properties is a characteristic property bitmask.
type Properties = gatt.Properties

const (
	PropBroadcast            = gatt.PropBroadcast
	PropRead                 = gatt.PropRead
	PropWriteWithoutResponse = gatt.PropWriteWithoutResponse
	PropWrite                = gatt.PropWrite
	PropNotify               = gatt.PropNotify
	PropIndicate             = gatt.PropIndicate
	PropSignedWrite          = gatt.PropSignedWrite
	PropExtended             = gatt.PropExtended
)

// Stack ties a platform backend to the resource tree.
//
// The platform adapter calls the Stack's event methods (ServicesDiscovered,
// CharacteristicRead, ...) from its delivery goroutines; resource handles
// obtained through Device call into the backend. One Stack per adapter
// instance; tests run isolated Stacks side by side.
type Stack struct {
	backend Backend
	tree    *gatt.Tree
	logger  *logrus.Logger
}

// NewStack creates a Stack over the given backend. A nil logger falls back
// to the logrus standard logger.
func NewStack(backend Backend, opts Options, logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Stack{
		backend: backend,
		tree:    gatt.NewTree(opts, logger),
		logger:  logger,
	}
}

// Connected registers a device whose platform connection has just been
// established and returns its handle. Fails with ErrAlreadyRegistered if the
// previous connection was never reported gone.
func (s *Stack) Connected(devID string) (*Device, error) {
	if _, err := s.tree.Register(devID); err != nil {
		return nil, err
	}
	return s.Device(devID), nil
}

// Device returns a handle for the given device id. The handle is valid to
// hold whether or not the device is currently connected; operations on it
// fail with ErrNotConnected until the adapter reports a connection.
func (s *Stack) Device(devID string) *Device {
	return &Device{stack: s, id: devID}
}

// IsConnected reports whether a device currently has a registered connection.
func (s *Stack) IsConnected(devID string) bool {
	_, ok := s.tree.Connection(devID)
	return ok
}

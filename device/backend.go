package device

// Backend initiates platform GATT calls. Every method only starts the
// operation; the matching completion arrives later through the Stack's event
// surface on a platform-owned goroutine. A non-nil return means the call
// could not even be issued and no completion will follow.
//
// Implementations address resources by device id and normalized UUID path,
// the same identifiers the handles carry.
type Backend interface {
	// DiscoverServices starts service discovery. Completion:
	// Stack.ServicesDiscovered.
	DiscoverServices(devID string) error

	// ReadRSSI starts a signal strength read. Completion: Stack.RSSIRead.
	ReadRSSI(devID string) error

	// ReadCharacteristic starts a characteristic read. Completion:
	// Stack.CharacteristicRead.
	ReadCharacteristic(devID, svcUUID, charUUID string) error

	// WriteCharacteristic starts a characteristic write, with or without a
	// response request. Completion: Stack.CharacteristicWritten.
	WriteCharacteristic(devID, svcUUID, charUUID string, value []byte, withResponse bool) error

	// ReadDescriptor starts a descriptor read. Completion:
	// Stack.DescriptorRead.
	ReadDescriptor(devID, svcUUID, charUUID, descUUID string) error

	// WriteDescriptor starts a descriptor write. Completion:
	// Stack.DescriptorWritten.
	WriteDescriptor(devID, svcUUID, charUUID, descUUID string, value []byte) error

	// SetNotify enables or disables value change notifications for a
	// characteristic. Synchronous: notification values arrive through
	// Stack.Notification once enabled.
	SetNotify(devID, svcUUID, charUUID string, enable bool) error

	// Disconnect tears the platform connection down. The adapter reports the
	// actual disconnection through Stack.Disconnected.
	Disconnect(devID string) error
}

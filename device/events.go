package device

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/gattlink/internal/gatt"
)

// Completion event surface. The platform adapter calls these from its own
// delivery goroutines; every method is an immediate, non-blocking handoff
// into the waiting task's wake mechanism. Events for devices or resources
// the tree no longer knows are logged and dropped - a late callback after a
// disconnect or a database change is normal, not a fault.

// ServicesDiscovered delivers the result of a service discovery round. On
// success the discovered tables replace the previous round (whose entries are
// invalidated); err is reported to the caller awaiting DiscoverServices.
func (s *Stack) ServicesDiscovered(devID string, services []ServiceInfo, err error) {
	conn, ok := s.tree.Connection(devID)
	if !ok {
		s.dropEvent(devID, "services discovered")
		return
	}
	if err == nil {
		conn.SetServices(services)
	}
	conn.DiscoverServices.Unlock(err)
}

// CharacteristicRead delivers the value (or failure) of a characteristic
// read. The value also becomes the characteristic's cached Value.
func (s *Stack) CharacteristicRead(devID, svcUUID, charUUID string, data []byte, err error) {
	char, ferr := s.tree.FindCharacteristic(devID, svcUUID, charUUID)
	if ferr != nil {
		s.dropEvent(devID, "characteristic read")
		return
	}
	char.Read.Unlock(gatt.ReadResult{Data: data, Err: err})
}

// CharacteristicWritten delivers the outcome of a characteristic write.
func (s *Stack) CharacteristicWritten(devID, svcUUID, charUUID string, err error) {
	char, ferr := s.tree.FindCharacteristic(devID, svcUUID, charUUID)
	if ferr != nil {
		s.dropEvent(devID, "characteristic written")
		return
	}
	char.Write.Unlock(err)
}

// Notification delivers an unsolicited characteristic value change. With no
// active subscribers it is a no-op.
func (s *Stack) Notification(devID, svcUUID, charUUID string, data []byte) {
	char, ferr := s.tree.FindCharacteristic(devID, svcUUID, charUUID)
	if ferr != nil {
		s.dropEvent(devID, "notification")
		return
	}
	char.Notify.Notify(data)
}

// DescriptorRead delivers the value (or failure) of a descriptor read.
func (s *Stack) DescriptorRead(devID, svcUUID, charUUID, descUUID string, data []byte, err error) {
	desc, ferr := s.tree.FindDescriptor(devID, svcUUID, charUUID, descUUID)
	if ferr != nil {
		s.dropEvent(devID, "descriptor read")
		return
	}
	desc.Read.Unlock(gatt.ReadResult{Data: data, Err: err})
}

// DescriptorWritten delivers the outcome of a descriptor write.
func (s *Stack) DescriptorWritten(devID, svcUUID, charUUID, descUUID string, err error) {
	desc, ferr := s.tree.FindDescriptor(devID, svcUUID, charUUID, descUUID)
	if ferr != nil {
		s.dropEvent(devID, "descriptor written")
		return
	}
	desc.Write.Unlock(err)
}

// RSSIRead delivers the result of a signal strength read.
func (s *Stack) RSSIRead(devID string, rssi int, err error) {
	conn, ok := s.tree.Connection(devID)
	if !ok {
		s.dropEvent(devID, "rssi read")
		return
	}
	conn.ReadRSSI.Unlock(gatt.RSSIResult{RSSI: rssi, Err: err})
}

// MTUChanged records a negotiated MTU. MaxWriteLen derives from the last
// value delivered here.
func (s *Stack) MTUChanged(devID string, mtu int) {
	conn, ok := s.tree.Connection(devID)
	if !ok {
		s.dropEvent(devID, "mtu changed")
		return
	}
	conn.MTUChanged.Unlock(mtu)
}

// ServicesInvalidated signals that the remote's GATT database changed and
// previously discovered resources may be stale. Watchers subscribed through
// Device.ServicesChangedWatch observe the event; re-discovery is up to the
// application.
func (s *Stack) ServicesInvalidated(devID string) {
	conn, ok := s.tree.Connection(devID)
	if !ok {
		s.dropEvent(devID, "services invalidated")
		return
	}
	conn.ServicesChanged.Notify(gatt.ServicesChangedEvent{DeviceID: devID})
}

// Disconnected tears down the device's resource tree entry: every pending
// waiter resolves to "no result" (surfacing as ErrNotConnected) and every
// notification stream ends. Must be called exactly once per connection;
// repeats are no-ops.
func (s *Stack) Disconnected(devID string) {
	if s.tree.Deregister(devID) {
		s.logger.WithField("device", devID).Info("Device disconnected")
	}
}

func (s *Stack) dropEvent(devID, event string) {
	s.logger.WithFields(logrus.Fields{
		"device": devID,
		"event":  event,
	}).Debug("Dropped event for unknown resource")
}

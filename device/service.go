package device

import "github.com/srg/gattlink/internal/gatt"

// Service is a handle to one GATT service, identified by (device id, service
// UUID). Cheap to copy around; the tree entry behind it is resolved lazily
// and re-resolved after a service change.
type Service struct {
	stack *Stack
	devID string
	uuid  string
	entry gatt.CachedRef[*gatt.ServiceEntry]
}

// UUID returns the service UUID as given when the handle was created.
func (s *Service) UUID() string { return s.uuid }

// KnownName returns the Bluetooth SIG assigned name for this service UUID,
// or the empty string.
func (s *Service) KnownName() (string, error) {
	entry, err := s.getEntry()
	if err != nil {
		return "", err
	}
	return entry.KnownName(), nil
}

// IsPrimary reports whether this is a primary service of the device.
func (s *Service) IsPrimary() (bool, error) {
	entry, err := s.getEntry()
	if err != nil {
		return false, err
	}
	return entry.Primary(), nil
}

// Characteristics returns handles for the characteristics discovered under
// this service, in discovery order.
func (s *Service) Characteristics() ([]*Characteristic, error) {
	entry, err := s.getEntry()
	if err != nil {
		return nil, err
	}
	entries := entry.Characteristics()
	out := make([]*Characteristic, 0, len(entries))
	for _, ch := range entries {
		out = append(out, &Characteristic{
			stack:   s.stack,
			devID:   s.devID,
			svcUUID: s.uuid,
			uuid:    ch.UUID(),
		})
	}
	return out, nil
}

// Characteristic returns a handle for the characteristic with the given
// UUID. The handle resolves lazily; a miss surfaces on first use.
func (s *Service) Characteristic(uuid string) *Characteristic {
	return &Characteristic{stack: s.stack, devID: s.devID, svcUUID: s.uuid, uuid: uuid}
}

func (s *Service) getEntry() (*gatt.ServiceEntry, error) {
	return s.entry.GetOrFind(func() (*gatt.ServiceEntry, error) {
		return s.stack.tree.FindService(s.devID, s.uuid)
	})
}

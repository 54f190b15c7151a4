package device

import (
	"context"

	"github.com/srg/gattlink/internal/flight"
	"github.com/srg/gattlink/internal/gatt"
)

// Device is a handle to one remote device, identified by the platform's
// device id. The zero operations cost nothing until used; the connection
// entry is resolved lazily through the resolution cache on each call and
// re-resolved after a reconnect.
type Device struct {
	stack *Stack
	id    string
	conn  gatt.CachedRef[*gatt.Connection]
}

// ID returns the platform device identifier.
func (d *Device) ID() string { return d.id }

// IsConnected reports whether the device currently has a registered
// connection.
func (d *Device) IsConnected() bool {
	_, err := d.connection()
	return err == nil
}

// DiscoverServices asks the device for its primary services and returns
// their handles. At most one discovery round is in flight per device;
// concurrent callers serialize on the discovery lock.
func (d *Device) DiscoverServices(ctx context.Context) ([]*Service, error) {
	conn, err := d.connection()
	if err != nil {
		return nil, err
	}
	result, ok, err := conn.DiscoverServices.Obtain(ctx, func() error {
		return d.stack.backend.DiscoverServices(d.id)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, d.stack.tree.NoResultError(d.id)
	}
	if result != nil {
		return nil, result
	}
	return d.collectServices()
}

// Services returns handles for the previously discovered services, running a
// discovery round first if none has completed yet.
func (d *Device) Services(ctx context.Context) ([]*Service, error) {
	conn, err := d.connection()
	if err != nil {
		return nil, err
	}
	if conn.Discovered() {
		return d.collectServices()
	}
	return d.DiscoverServices(ctx)
}

// Service returns a handle for the service with the given UUID. The handle
// resolves lazily; a miss surfaces on first use.
func (d *Device) Service(uuid string) *Service {
	return &Service{stack: d.stack, devID: d.id, uuid: uuid}
}

// RSSI reads the current signal strength from the device in dBm.
func (d *Device) RSSI(ctx context.Context) (int, error) {
	conn, err := d.connection()
	if err != nil {
		return 0, err
	}
	result, ok, err := conn.ReadRSSI.Obtain(ctx, func() error {
		return d.stack.backend.ReadRSSI(d.id)
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, d.stack.tree.NoResultError(d.id)
	}
	if result.Err != nil {
		return 0, result.Err
	}
	return result.RSSI, nil
}

// Disconnect asks the backend to tear the platform connection down. The
// resource tree entry is released when the adapter reports Disconnected.
func (d *Device) Disconnect() error {
	if _, err := d.connection(); err != nil {
		return err
	}
	return d.stack.backend.Disconnect(d.id)
}

// ServicesChangedWatch subscribes to GATT database change events for this
// device. The watch ends when the device disconnects or Close is called.
func (d *Device) ServicesChangedWatch() (*ServicesChangedWatch, error) {
	conn, err := d.connection()
	if err != nil {
		return nil, err
	}
	rx, err := conn.ServicesChanged.Subscribe(nil, nil)
	if err != nil {
		return nil, err
	}
	return &ServicesChangedWatch{stack: d.stack, devID: d.id, rx: rx}, nil
}

func (d *Device) collectServices() ([]*Service, error) {
	conn, err := d.connection()
	if err != nil {
		return nil, err
	}
	entries := conn.Services()
	out := make([]*Service, 0, len(entries))
	for _, entry := range entries {
		out = append(out, &Service{stack: d.stack, devID: d.id, uuid: entry.UUID()})
	}
	return out, nil
}

func (d *Device) connection() (*gatt.Connection, error) {
	return d.conn.GetOrFind(func() (*gatt.Connection, error) {
		return d.stack.tree.CheckConnection(d.id)
	})
}

// ServicesChangedWatch is a stream of database change events for one device.
// Close it when done; an abandoned watch keeps its subscription alive.
type ServicesChangedWatch struct {
	stack *Stack
	devID string
	rx    *flight.NotifierReceiver[gatt.ServicesChangedEvent]
}

// ServicesChanged is one database change event.
type ServicesChanged struct {
	stack *Stack

	DeviceID string
}

// WasInvalidated checks whether the given service is gone after this change.
func (sc ServicesChanged) WasInvalidated(svc *Service) bool {
	_, err := sc.stack.tree.FindService(sc.DeviceID, svc.UUID())
	return err != nil
}

// Next blocks for the next change event. ok is false once the stream has
// ended (device gone or watch closed) or ctx is done.
func (w *ServicesChangedWatch) Next(ctx context.Context) (ServicesChanged, bool) {
	ev, ok := w.rx.Next(ctx)
	if !ok {
		return ServicesChanged{}, false
	}
	return ServicesChanged{stack: w.stack, DeviceID: ev.DeviceID}, true
}

// Close releases the subscription. Idempotent.
func (w *ServicesChangedWatch) Close() {
	w.rx.Close()
}

package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/srg/gattlink/internal/flight"
	"github.com/srg/gattlink/internal/gatt"
)

// defaultMTU applies until the adapter reports a negotiated value.
const defaultMTU = 23

// Characteristic is a handle to one GATT characteristic, identified by
// (device id, service UUID, characteristic UUID).
type Characteristic struct {
	stack   *Stack
	devID   string
	svcUUID string
	uuid    string
	entry   gatt.CachedRef[*gatt.CharacteristicEntry]
}

// UUID returns the characteristic UUID as given when the handle was created.
func (c *Characteristic) UUID() string { return c.uuid }

// KnownName returns the Bluetooth SIG assigned name for this characteristic
// UUID, or the empty string.
func (c *Characteristic) KnownName() (string, error) {
	entry, err := c.getEntry()
	if err != nil {
		return "", err
	}
	return entry.KnownName(), nil
}

// Properties returns the characteristic property bitmask.
func (c *Characteristic) Properties() (Properties, error) {
	entry, err := c.getEntry()
	if err != nil {
		return 0, err
	}
	return entry.Properties(), nil
}

// Value returns the cached value from the most recent completed read.
// Fails with ErrNotReady if the characteristic has never been read.
func (c *Characteristic) Value() ([]byte, error) {
	entry, err := c.getEntry()
	if err != nil {
		return nil, err
	}
	result, ok := entry.Read.LastValue()
	if !ok {
		return nil, fmt.Errorf("%w: call Read first", ErrNotReady)
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Data, nil
}

// The read lock and the write lock must always be acquired in the same
// order (read, then write) here and in write below; read and write
// completions share one delivery thread on most platforms.

// Read reads the current value of this characteristic from the device.
func (c *Characteristic) Read(ctx context.Context) ([]byte, error) {
	if _, err := c.stack.tree.CheckConnection(c.devID); err != nil {
		return nil, err
	}
	entry, err := c.getEntry()
	if err != nil {
		return nil, err
	}
	readWaiter, err := entry.Read.Lock(ctx)
	if err != nil {
		return nil, err
	}
	writeWaiter, err := entry.Write.Lock(ctx)
	if err != nil {
		readWaiter.Cancel()
		return nil, err
	}
	defer writeWaiter.Cancel()

	if err := c.stack.backend.ReadCharacteristic(c.devID, c.svcUUID, c.uuid); err != nil {
		readWaiter.Cancel()
		return nil, err
	}
	result, ok := readWaiter.Wait(ctx)
	if !ok {
		return nil, c.stack.tree.NoResultError(c.devID)
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Data, nil
}

// Write writes value to this characteristic and waits for the device to
// acknowledge it.
func (c *Characteristic) Write(ctx context.Context, value []byte) error {
	return c.write(ctx, value, true)
}

// WriteWithoutResponse writes value without requesting an acknowledgement.
// The value must fit in a single packet; longer writes would be silently
// truncated by the platform.
func (c *Characteristic) WriteWithoutResponse(ctx context.Context, value []byte) error {
	maxLen, err := c.MaxWriteLen()
	if err != nil {
		return err
	}
	if len(value) > maxLen {
		return fmt.Errorf("%w: write length %d exceeds the MTU limit of %d", ErrInvalidParameter, len(value), maxLen)
	}
	return c.write(ctx, value, false)
}

func (c *Characteristic) write(ctx context.Context, value []byte, withResponse bool) error {
	if _, err := c.stack.tree.CheckConnection(c.devID); err != nil {
		return err
	}
	entry, err := c.getEntry()
	if err != nil {
		return err
	}
	readWaiter, err := entry.Read.Lock(ctx)
	if err != nil {
		return err
	}
	defer readWaiter.Cancel()
	writeWaiter, err := entry.Write.Lock(ctx)
	if err != nil {
		return err
	}

	if err := c.stack.backend.WriteCharacteristic(c.devID, c.svcUUID, c.uuid, value, withResponse); err != nil {
		writeWaiter.Cancel()
		return err
	}
	result, ok := writeWaiter.Wait(ctx)
	if !ok {
		return c.stack.tree.NoResultError(c.devID)
	}
	return result
}

// MaxWriteLen returns the maximum payload of a single write packet, derived
// from the last negotiated MTU.
func (c *Characteristic) MaxWriteLen() (int, error) {
	conn, err := c.stack.tree.CheckConnection(c.devID)
	if err != nil {
		return 0, err
	}
	mtu, ok := conn.MTUChanged.LastValue()
	if !ok {
		mtu = defaultMTU
	}
	return mtu - 5, nil
}

// IsNotifying reports whether the device is currently sending notifications
// for this characteristic.
func (c *Characteristic) IsNotifying() (bool, error) {
	entry, err := c.getEntry()
	if err != nil {
		return false, err
	}
	return entry.Notify.IsNotifying(), nil
}

// Notify enables value change notifications and returns their stream.
//
// The first subscriber enables notifications on the device; the last one to
// close its stream disables them again. The stream ends when the device
// disconnects or when a database change invalidates this characteristic.
// Always Close the returned stream.
func (c *Characteristic) Notify(ctx context.Context) (*Notifications, error) {
	conn, err := c.stack.tree.CheckConnection(c.devID)
	if err != nil {
		return nil, err
	}
	entry, err := c.getEntry()
	if err != nil {
		return nil, err
	}
	if props := entry.Properties(); !props.CanNotify() {
		return nil, fmt.Errorf("%w: characteristic %s does not support notifications", ErrNotSupported, c.uuid)
	}

	changes, err := conn.ServicesChanged.Subscribe(nil, nil)
	if err != nil {
		return nil, err
	}
	rx, err := entry.Notify.Subscribe(
		func() error {
			return c.stack.backend.SetNotify(c.devID, c.svcUUID, c.uuid, true)
		},
		func() {
			// Best effort; the connection may already be gone.
			_ = c.stack.backend.SetNotify(c.devID, c.svcUUID, c.uuid, false)
		},
	)
	if err != nil {
		changes.Close()
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	values := pumpReceiver(streamCtx, rx)
	events := pumpReceiver(streamCtx, changes)
	out := flight.StreamUntil(streamCtx, values, events, func(gatt.ServicesChangedEvent) bool {
		return entry.Invalidated()
	})
	return &Notifications{ch: out, cancel: cancel, rx: rx, changes: changes}, nil
}

// Descriptors returns handles for the descriptors discovered under this
// characteristic, in discovery order.
func (c *Characteristic) Descriptors() ([]*Descriptor, error) {
	entry, err := c.getEntry()
	if err != nil {
		return nil, err
	}
	entries := entry.Descriptors()
	out := make([]*Descriptor, 0, len(entries))
	for _, desc := range entries {
		out = append(out, &Descriptor{
			stack:    c.stack,
			devID:    c.devID,
			svcUUID:  c.svcUUID,
			charUUID: c.uuid,
			uuid:     desc.UUID(),
		})
	}
	return out, nil
}

// Descriptor returns a handle for the descriptor with the given UUID.
func (c *Characteristic) Descriptor(uuid string) *Descriptor {
	return &Descriptor{stack: c.stack, devID: c.devID, svcUUID: c.svcUUID, charUUID: c.uuid, uuid: uuid}
}

func (c *Characteristic) getEntry() (*gatt.CharacteristicEntry, error) {
	return c.entry.GetOrFind(func() (*gatt.CharacteristicEntry, error) {
		return c.stack.tree.FindCharacteristic(c.devID, c.svcUUID, c.uuid)
	})
}

// Notifications is a stream of characteristic value changes. Slow consumers
// lose their oldest buffered values instead of blocking the platform's
// delivery thread.
type Notifications struct {
	ch      <-chan []byte
	cancel  context.CancelFunc
	rx      *flight.NotifierReceiver[[]byte]
	changes *flight.NotifierReceiver[gatt.ServicesChangedEvent]
	once    sync.Once
}

// C returns the value channel. It closes permanently when the stream ends;
// callers consuming it directly must still call Close afterwards.
func (n *Notifications) C() <-chan []byte { return n.ch }

// Next blocks for the next value. ok is false once the stream has ended or
// ctx is done; an ended stream is released automatically.
func (n *Notifications) Next(ctx context.Context) ([]byte, bool) {
	select {
	case v, ok := <-n.ch:
		if !ok {
			n.Close()
			return nil, false
		}
		return v, true
	case <-ctx.Done():
		return nil, false
	}
}

// Dropped reports how many values this subscriber lost to buffer overflow.
func (n *Notifications) Dropped() int64 { return n.rx.Dropped() }

// Close releases the subscription. The last subscriber to go disables
// notifications on the device. Idempotent.
func (n *Notifications) Close() {
	n.once.Do(func() {
		n.cancel()
		n.rx.Close()
		n.changes.Close()
	})
}

// pumpReceiver adapts a receiver to a plain channel, closing it when the
// stream ends or ctx is cancelled.
func pumpReceiver[T any](ctx context.Context, rx *flight.NotifierReceiver[T]) <-chan T {
	ch := make(chan T)
	go func() {
		defer close(ch)
		for {
			v, ok := rx.Next(ctx)
			if !ok {
				return
			}
			select {
			case ch <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

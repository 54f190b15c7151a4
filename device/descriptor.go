package device

import (
	"context"
	"fmt"

	"github.com/srg/gattlink/internal/gatt"
)

// Descriptor is a handle to one GATT descriptor, identified by (device id,
// service UUID, characteristic UUID, descriptor UUID).
type Descriptor struct {
	stack    *Stack
	devID    string
	svcUUID  string
	charUUID string
	uuid     string
	entry    gatt.CachedRef[*gatt.DescriptorEntry]
}

// UUID returns the descriptor UUID as given when the handle was created.
func (d *Descriptor) UUID() string { return d.uuid }

// KnownName returns the Bluetooth SIG assigned name for this descriptor
// UUID, or the empty string.
func (d *Descriptor) KnownName() (string, error) {
	entry, err := d.getEntry()
	if err != nil {
		return "", err
	}
	return entry.KnownName(), nil
}

// Value returns the cached value from the most recent completed read.
// Fails with ErrNotReady if the descriptor has never been read.
func (d *Descriptor) Value() ([]byte, error) {
	entry, err := d.getEntry()
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

// Lock order matches Characteristic: read, then write.

// Read reads the current value of this descriptor from the device.
func (d *Descriptor) Read(ctx context.Context) ([]byte, error) {
	if _, err := d.stack.tree.CheckConnection(d.devID); err != nil {
		return nil, err
	}
	entry, err := d.getEntry()
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

	if err := d.stack.backend.ReadDescriptor(d.devID, d.svcUUID, d.charUUID, d.uuid); err != nil {
		readWaiter.Cancel()
		return nil, err
	}
	result, ok := readWaiter.Wait(ctx)
	if !ok {
		return nil, d.stack.tree.NoResultError(d.devID)
	}
	if result.Err != nil {
		return nil, result.Err
	}
	return result.Data, nil
}

// Write writes value to this descriptor on the device.
func (d *Descriptor) Write(ctx context.Context, value []byte) error {
	if _, err := d.stack.tree.CheckConnection(d.devID); err != nil {
		return err
	}
	entry, err := d.getEntry()
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

	if err := d.stack.backend.WriteDescriptor(d.devID, d.svcUUID, d.charUUID, d.uuid, value); err != nil {
		writeWaiter.Cancel()
		return err
	}
	result, ok := writeWaiter.Wait(ctx)
	if !ok {
		return d.stack.tree.NoResultError(d.devID)
	}
	return result
}

func (d *Descriptor) getEntry() (*gatt.DescriptorEntry, error) {
	return d.entry.GetOrFind(func() (*gatt.DescriptorEntry, error) {
		return d.stack.tree.FindDescriptor(d.devID, d.svcUUID, d.charUUID, d.uuid)
	})
}

// Package goble adapts the synchronous go-ble client to the callback-driven
// backend boundary: every operation runs on its own goroutine and delivers
// its completion through the Stack's event surface, the way a platform
// delivery thread would.
package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/gattlink/device"
	"github.com/srg/gattlink/internal/bledb"
	"github.com/srg/gattlink/internal/groutine"
)

// requestedMTU is proposed to the peripheral on connect; the negotiated
// value is reported through Stack.MTUChanged.
const requestedMTU = 185

// Adapter implements device.Backend over go-ble connections.
//
// Create the Adapter first, build the Stack over it, then Bind the Stack
// back so completions have somewhere to go.
type Adapter struct {
	logger *logrus.Logger

	mu    sync.Mutex
	stack *device.Stack
	links map[string]*link
}

// link is one live go-ble connection plus the handle index built from the
// last discovery round.
type link struct {
	client ble.Client

	mu    sync.Mutex
	chars map[string]*ble.Characteristic
	descs map[string]*ble.Descriptor
}

// NewAdapter creates an Adapter. A nil logger falls back to the logrus
// standard logger.
func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Adapter{
		logger: logger,
		links:  make(map[string]*link),
	}
}

// Bind wires the Stack that receives this adapter's completions. Must be
// called before Connect.
func (a *Adapter) Bind(stack *device.Stack) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stack = stack
}

// Connect dials the peripheral, registers it with the Stack and starts the
// disconnect watcher. The returned handle is ready for DiscoverServices.
func (a *Adapter) Connect(ctx context.Context, address string) (*device.Device, error) {
	if err := ensureDefaultDevice(); err != nil {
		return nil, fmt.Errorf("bluetooth device init: %w", err)
	}

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	devID := client.Addr().String()

	a.mu.Lock()
	stack := a.stack
	a.links[devID] = &link{client: client}
	a.mu.Unlock()

	dev, err := stack.Connected(devID)
	if err != nil {
		a.dropLink(devID)
		_ = client.CancelConnection()
		return nil, err
	}

	// CoreBluetooth exposes a disconnect channel; other HCI stacks do not.
	if watcher, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-disconnect-monitor", func(context.Context) {
			<-watcher.Disconnected()
			a.logger.WithField("device", devID).Warn("Platform reported disconnection")
			a.dropLink(devID)
			stack.Disconnected(devID)
		})
	}

	if mtu, err := client.ExchangeMTU(requestedMTU); err == nil {
		stack.MTUChanged(devID, mtu)
	} else {
		a.logger.WithFields(logrus.Fields{
			"device": devID,
			"error":  err,
		}).Debug("MTU exchange failed, keeping default")
	}

	return dev, nil
}

// DiscoverServices walks the peripheral's GATT profile on a goroutine and
// reports the discovered layout. Handle indexes for later reads and writes
// are rebuilt from the same profile walk.
func (a *Adapter) DiscoverServices(devID string) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-discover", func(context.Context) {
		profile, err := ln.client.DiscoverProfile(true)
		if err != nil {
			a.stackFor(devID).ServicesDiscovered(devID, nil, fmt.Errorf("discover profile: %w", err))
			return
		}
		infos := ln.index(profile)
		a.stackFor(devID).ServicesDiscovered(devID, infos, nil)
	})
	return nil
}

func (a *Adapter) ReadRSSI(devID string) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-read-rssi", func(context.Context) {
		rssi := ln.client.ReadRSSI()
		a.stackFor(devID).RSSIRead(devID, rssi, nil)
	})
	return nil
}

func (a *Adapter) ReadCharacteristic(devID, svcUUID, charUUID string) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	char, err := ln.characteristic(svcUUID, charUUID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-read-char", func(context.Context) {
		data, err := ln.client.ReadCharacteristic(char)
		a.stackFor(devID).CharacteristicRead(devID, svcUUID, charUUID, data, err)
	})
	return nil
}

func (a *Adapter) WriteCharacteristic(devID, svcUUID, charUUID string, value []byte, withResponse bool) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	char, err := ln.characteristic(svcUUID, charUUID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-write-char", func(context.Context) {
		err := ln.client.WriteCharacteristic(char, value, !withResponse)
		a.stackFor(devID).CharacteristicWritten(devID, svcUUID, charUUID, err)
	})
	return nil
}

func (a *Adapter) ReadDescriptor(devID, svcUUID, charUUID, descUUID string) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	desc, err := ln.descriptor(svcUUID, charUUID, descUUID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-read-desc", func(context.Context) {
		data, err := ln.client.ReadDescriptor(desc)
		a.stackFor(devID).DescriptorRead(devID, svcUUID, charUUID, descUUID, data, err)
	})
	return nil
}

func (a *Adapter) WriteDescriptor(devID, svcUUID, charUUID, descUUID string, value []byte) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	desc, err := ln.descriptor(svcUUID, charUUID, descUUID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-write-desc", func(context.Context) {
		err := ln.client.WriteDescriptor(desc, value)
		a.stackFor(devID).DescriptorWritten(devID, svcUUID, charUUID, descUUID, err)
	})
	return nil
}

// SetNotify subscribes to (or unsubscribes from) characteristic value
// changes. Indications are used when the characteristic supports only them.
func (a *Adapter) SetNotify(devID, svcUUID, charUUID string, enable bool) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	char, err := ln.characteristic(svcUUID, charUUID)
	if err != nil {
		return err
	}
	indicate := char.Property&ble.CharNotify == 0 && char.Property&ble.CharIndicate != 0
	if enable {
		return ln.client.Subscribe(char, indicate, func(data []byte) {
			a.stackFor(devID).Notification(devID, svcUUID, charUUID, data)
		})
	}
	// Some stacks record the subscription under the other mode; try both.
	if err := ln.client.Unsubscribe(char, indicate); err != nil {
		return ln.client.Unsubscribe(char, !indicate)
	}
	return nil
}

func (a *Adapter) Disconnect(devID string) error {
	ln, err := a.link(devID)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "ble-disconnect", func(context.Context) {
		if err := ln.client.CancelConnection(); err != nil {
			a.logger.WithFields(logrus.Fields{
				"device": devID,
				"error":  err,
			}).Warn("CancelConnection failed")
		}
		a.dropLink(devID)
		a.stackFor(devID).Disconnected(devID)
	})
	return nil
}

func (a *Adapter) link(devID string) (*link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ln, ok := a.links[devID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrNotConnected, devID)
	}
	return ln, nil
}

func (a *Adapter) dropLink(devID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.links, devID)
}

func (a *Adapter) stackFor(devID string) *device.Stack {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stack
}

// index rebuilds the handle tables from a discovered profile and returns the
// layout to report upward.
func (ln *link) index(profile *ble.Profile) []device.ServiceInfo {
	chars := make(map[string]*ble.Characteristic)
	descs := make(map[string]*ble.Descriptor)
	infos := make([]device.ServiceInfo, 0, len(profile.Services))

	for _, svc := range profile.Services {
		svcUUID := bledb.NormalizeUUID(svc.UUID.String())
		info := device.ServiceInfo{UUID: svcUUID, Primary: true}
		for _, char := range svc.Characteristics {
			charUUID := bledb.NormalizeUUID(char.UUID.String())
			chars[svcUUID+"/"+charUUID] = char
			charInfo := device.CharacteristicInfo{
				UUID:       charUUID,
				Properties: mapProperties(char.Property),
			}
			for _, desc := range char.Descriptors {
				descUUID := bledb.NormalizeUUID(desc.UUID.String())
				descs[svcUUID+"/"+charUUID+"/"+descUUID] = desc
				charInfo.Descriptors = append(charInfo.Descriptors, descUUID)
			}
			info.Characteristics = append(info.Characteristics, charInfo)
		}
		infos = append(infos, info)
	}

	ln.mu.Lock()
	ln.chars = chars
	ln.descs = descs
	ln.mu.Unlock()
	return infos
}

func (ln *link) characteristic(svcUUID, charUUID string) (*ble.Characteristic, error) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	key := bledb.NormalizeUUID(svcUUID) + "/" + bledb.NormalizeUUID(charUUID)
	char, ok := ln.chars[key]
	if !ok {
		return nil, fmt.Errorf("%w: characteristic %s", device.ErrServiceChanged, key)
	}
	return char, nil
}

func (ln *link) descriptor(svcUUID, charUUID, descUUID string) (*ble.Descriptor, error) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	key := bledb.NormalizeUUID(svcUUID) + "/" + bledb.NormalizeUUID(charUUID) + "/" + bledb.NormalizeUUID(descUUID)
	desc, ok := ln.descs[key]
	if !ok {
		return nil, fmt.Errorf("%w: descriptor %s", device.ErrServiceChanged, key)
	}
	return desc, nil
}

// mapProperties converts go-ble property bits to the portable bitmask.
func mapProperties(p ble.Property) device.Properties {
	var out device.Properties
	if p&ble.CharBroadcast != 0 {
		out |= device.PropBroadcast
	}
	if p&ble.CharRead != 0 {
		out |= device.PropRead
	}
	if p&ble.CharWriteNR != 0 {
		out |= device.PropWriteWithoutResponse
	}
	if p&ble.CharWrite != 0 {
		out |= device.PropWrite
	}
	if p&ble.CharNotify != 0 {
		out |= device.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= device.PropIndicate
	}
	if p&ble.CharSignedWrite != 0 {
		out |= device.PropSignedWrite
	}
	if p&ble.CharExtended != 0 {
		out |= device.PropExtended
	}
	return out
}

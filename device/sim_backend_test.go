package device_test

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/gattlink/device"
)

// simBackend is an in-memory Backend that mimics a platform adapter: every
// operation delivers its completion asynchronously through the Stack's event
// surface, the way a real delivery thread would.
type simBackend struct {
	mu    sync.Mutex
	stack *device.Stack

	services []device.ServiceInfo
	values   map[string][]byte

	delay     time.Duration
	dropped   map[string]bool // operations whose completion never arrives
	notifying map[string]bool
	writes    map[string][][]byte
	rssi      int
}

func newSimBackend() *simBackend {
	return &simBackend{
		values:    make(map[string][]byte),
		dropped:   make(map[string]bool),
		notifying: make(map[string]bool),
		writes:    make(map[string][][]byte),
		rssi:      -42,
	}
}

// WithService starts a new primary service; subsequent WithCharacteristic
// and WithDescriptor calls attach to it.
func (b *simBackend) WithService(uuid string) *simBackend {
	b.services = append(b.services, device.ServiceInfo{UUID: strings.ToLower(uuid), Primary: true})
	return b
}

// WithCharacteristic adds a characteristic with the given comma-separated
// properties ("read,write,notify") and initial value to the current service.
func (b *simBackend) WithCharacteristic(uuid, props string, value []byte) *simBackend {
	svc := &b.services[len(b.services)-1]
	svc.Characteristics = append(svc.Characteristics, device.CharacteristicInfo{
		UUID:       strings.ToLower(uuid),
		Properties: parseProps(props),
	})
	b.values[charKey(svc.UUID, uuid)] = value
	return b
}

// WithDescriptor adds a descriptor to the current characteristic.
func (b *simBackend) WithDescriptor(uuid string, value []byte) *simBackend {
	svc := &b.services[len(b.services)-1]
	char := &svc.Characteristics[len(svc.Characteristics)-1]
	char.Descriptors = append(char.Descriptors, strings.ToLower(uuid))
	b.values[descKey(svc.UUID, char.UUID, uuid)] = value
	return b
}

// attach wires the backend to the stack whose events it will deliver.
func (b *simBackend) attach(s *device.Stack) { b.stack = s }

// dropCompletionsFor makes completions for the given characteristic silently
// vanish, simulating a callback that never arrives.
func (b *simBackend) dropCompletionsFor(svcUUID, charUUID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropped[charKey(svcUUID, charUUID)] = true
}

func (b *simBackend) writtenValues(svcUUID, charUUID string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes[charKey(svcUUID, charUUID)]
}

func (b *simBackend) isNotifying(svcUUID, charUUID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.notifying[charKey(svcUUID, charUUID)]
}

// pushNotification injects an unsolicited value change, as the platform
// delivery thread would.
func (b *simBackend) pushNotification(devID, svcUUID, charUUID string, data []byte) {
	b.stack.Notification(devID, svcUUID, charUUID, data)
}

func (b *simBackend) DiscoverServices(devID string) error {
	services := b.services
	go func() {
		b.sleep()
		b.stack.ServicesDiscovered(devID, services, nil)
	}()
	return nil
}

func (b *simBackend) ReadRSSI(devID string) error {
	go func() {
		b.sleep()
		b.stack.RSSIRead(devID, b.rssi, nil)
	}()
	return nil
}

func (b *simBackend) ReadCharacteristic(devID, svcUUID, charUUID string) error {
	b.mu.Lock()
	value, ok := b.values[charKey(svcUUID, charUUID)]
	skip := b.dropped[charKey(svcUUID, charUUID)]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("no such characteristic %s/%s", svcUUID, charUUID)
	}
	if skip {
		return nil
	}
	go func() {
		b.sleep()
		b.stack.CharacteristicRead(devID, svcUUID, charUUID, value, nil)
	}()
	return nil
}

func (b *simBackend) WriteCharacteristic(devID, svcUUID, charUUID string, value []byte, withResponse bool) error {
	key := charKey(svcUUID, charUUID)
	b.mu.Lock()
	b.values[key] = value
	b.writes[key] = append(b.writes[key], value)
	skip := b.dropped[key]
	b.mu.Unlock()
	if skip {
		return nil
	}
	go func() {
		b.sleep()
		b.stack.CharacteristicWritten(devID, svcUUID, charUUID, nil)
	}()
	return nil
}

func (b *simBackend) ReadDescriptor(devID, svcUUID, charUUID, descUUID string) error {
	b.mu.Lock()
	value := b.values[descKey(svcUUID, charUUID, descUUID)]
	b.mu.Unlock()
	go func() {
		b.sleep()
		b.stack.DescriptorRead(devID, svcUUID, charUUID, descUUID, value, nil)
	}()
	return nil
}

func (b *simBackend) WriteDescriptor(devID, svcUUID, charUUID, descUUID string, value []byte) error {
	b.mu.Lock()
	b.values[descKey(svcUUID, charUUID, descUUID)] = value
	b.mu.Unlock()
	go func() {
		b.sleep()
		b.stack.DescriptorWritten(devID, svcUUID, charUUID, descUUID, nil)
	}()
	return nil
}

func (b *simBackend) SetNotify(devID, svcUUID, charUUID string, enable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notifying[charKey(svcUUID, charUUID)] = enable
	return nil
}

func (b *simBackend) Disconnect(devID string) error {
	go func() {
		b.sleep()
		b.stack.Disconnected(devID)
	}()
	return nil
}

func (b *simBackend) sleep() {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
}

func charKey(svcUUID, charUUID string) string {
	return strings.ToLower(svcUUID) + "/" + strings.ToLower(charUUID)
}

func descKey(svcUUID, charUUID, descUUID string) string {
	return charKey(svcUUID, charUUID) + "/" + strings.ToLower(descUUID)
}

func parseProps(props string) device.Properties {
	var p device.Properties
	for _, name := range strings.Split(props, ",") {
		switch strings.TrimSpace(name) {
		case "read":
			p |= device.PropRead
		case "write":
			p |= device.PropWrite
		case "write-without-response":
			p |= device.PropWriteWithoutResponse
		case "notify":
			p |= device.PropNotify
		case "indicate":
			p |= device.PropIndicate
		}
	}
	return p
}

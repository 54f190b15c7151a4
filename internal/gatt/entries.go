package gatt

import (
	"sync"
	"sync/atomic"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/gattlink/internal/bledb"
	"github.com/srg/gattlink/internal/flight"
)

// Options configures the correlated-operation plumbing created for every
// tree entry.
type Options struct {
	// OperationTimeout bounds how long a waiter sticks around for the
	// platform callback of one correlated operation.
	OperationTimeout time.Duration
	// NotifyCapacity is the per-subscriber notification buffer depth.
	NotifyCapacity int
}

// DefaultOptions returns the reference policy values.
func DefaultOptions() Options {
	return Options{
		OperationTimeout: flight.DefaultTimeout,
		NotifyCapacity:   flight.DefaultNotifyCapacity,
	}
}

func (o Options) withDefaults() Options {
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = flight.DefaultTimeout
	}
	if o.NotifyCapacity <= 0 {
		o.NotifyCapacity = flight.DefaultNotifyCapacity
	}
	return o
}

// ReadResult is the completion value of a correlated read.
type ReadResult struct {
	Data []byte
	Err  error
}

// RSSIResult is the completion value of a signal strength query.
type RSSIResult struct {
	RSSI int
	Err  error
}

// ServicesChangedEvent announces that the remote's GATT database changed and
// previously discovered entries may no longer resolve.
type ServicesChangedEvent struct {
	DeviceID string
}

// ServiceInfo describes one discovered service; the platform adapter reports
// these when discovery completes.
type ServiceInfo struct {
	UUID            string
	Primary         bool
	Characteristics []CharacteristicInfo
}

// CharacteristicInfo describes one discovered characteristic.
type CharacteristicInfo struct {
	UUID        string
	Properties  Properties
	Descriptors []string
}

// ----------------------------
// Connection
// ----------------------------

// Connection is one registered device connection: the owner of the discovered
// service table and of the connection-scoped correlated operations.
type Connection struct {
	devID string
	opts  Options

	mu       sync.Mutex
	services *orderedmap.OrderedMap[string, *ServiceEntry]
	gone     atomic.Bool

	// Connection-scoped correlated operations and event streams.
	DiscoverServices *flight.Excluder[error]
	ReadRSSI         *flight.Excluder[RSSIResult]
	MTUChanged       *flight.Excluder[int]
	ServicesChanged  *flight.Notifier[ServicesChangedEvent]
}

func newConnection(devID string, opts Options) *Connection {
	return &Connection{
		devID:            devID,
		opts:             opts,
		services:         orderedmap.New[string, *ServiceEntry](),
		DiscoverServices: flight.NewExcluder[error](opts.OperationTimeout),
		ReadRSSI:         flight.NewExcluder[RSSIResult](opts.OperationTimeout),
		MTUChanged:       flight.NewExcluder[int](opts.OperationTimeout),
		ServicesChanged:  flight.NewNotifier[ServicesChangedEvent](opts.NotifyCapacity),
	}
}

// DeviceID returns the identifier this connection is registered under.
func (c *Connection) DeviceID() string { return c.devID }

// Invalidated reports whether the connection has been deregistered.
func (c *Connection) Invalidated() bool { return c.gone.Load() }

// SetServices replaces the discovered service table. Entries from an earlier
// discovery round are invalidated first so stale cached handles fail
// re-resolution instead of pointing at dead plumbing.
func (c *Connection) SetServices(infos []ServiceInfo) {
	fresh := orderedmap.New[string, *ServiceEntry]()
	for _, info := range infos {
		fresh.Set(bledb.NormalizeUUID(info.UUID), newServiceEntry(info, c.opts))
	}

	c.mu.Lock()
	old := c.services
	c.services = fresh
	c.mu.Unlock()

	for pair := old.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.invalidate()
	}
}

// Services returns the discovered services in discovery order.
func (c *Connection) Services() []*ServiceEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ServiceEntry, 0, c.services.Len())
	for pair := c.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Service looks up one discovered service by normalized UUID.
func (c *Connection) Service(uuid string) (*ServiceEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.services.Get(bledb.NormalizeUUID(uuid))
	return entry, ok
}

// Discovered reports whether a service discovery round has completed.
func (c *Connection) Discovered() bool {
	_, ok := c.DiscoverServices.LastValue()
	return ok
}

// invalidate tears the whole subtree down: every waiter resolves to
// "no result" and every subscriber stream ends. Runs once per connection.
func (c *Connection) invalidate() {
	if !c.gone.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	services := c.services
	c.services = orderedmap.New[string, *ServiceEntry]()
	c.mu.Unlock()

	for pair := services.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.invalidate()
	}
	c.DiscoverServices.Close()
	c.ReadRSSI.Close()
	c.MTUChanged.Close()
	c.ServicesChanged.Close()
}

// ----------------------------
// Service entry
// ----------------------------

// ServiceEntry owns the characteristics discovered under one service.
//
// Services are keyed by UUID. The Bluetooth spec permits duplicate service or
// characteristic UUIDs under one device (distinguished by handle); this table
// keeps only the last one discovered, matching the platform tables it mirrors.
type ServiceEntry struct {
	uuid    string
	primary bool

	mu    sync.Mutex
	chars *orderedmap.OrderedMap[string, *CharacteristicEntry]
	gone  atomic.Bool
}

func newServiceEntry(info ServiceInfo, opts Options) *ServiceEntry {
	entry := &ServiceEntry{
		uuid:    bledb.NormalizeUUID(info.UUID),
		primary: info.Primary,
		chars:   orderedmap.New[string, *CharacteristicEntry](),
	}
	for _, ch := range info.Characteristics {
		entry.chars.Set(bledb.NormalizeUUID(ch.UUID), newCharacteristicEntry(ch, opts))
	}
	return entry
}

// UUID returns the normalized service UUID.
func (s *ServiceEntry) UUID() string { return s.uuid }

// Primary reports whether this is a primary service.
func (s *ServiceEntry) Primary() bool { return s.primary }

// KnownName returns the Bluetooth SIG assigned name, if any.
func (s *ServiceEntry) KnownName() string { return bledb.LookupService(s.uuid) }

// Invalidated reports whether the entry was torn down.
func (s *ServiceEntry) Invalidated() bool { return s.gone.Load() }

// Characteristics returns the characteristics in discovery order.
func (s *ServiceEntry) Characteristics() []*CharacteristicEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*CharacteristicEntry, 0, s.chars.Len())
	for pair := s.chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Characteristic looks up one characteristic by normalized UUID.
func (s *ServiceEntry) Characteristic(uuid string) (*CharacteristicEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.chars.Get(bledb.NormalizeUUID(uuid))
	return entry, ok
}

func (s *ServiceEntry) invalidate() {
	if !s.gone.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	chars := s.chars
	s.chars = orderedmap.New[string, *CharacteristicEntry]()
	s.mu.Unlock()
	for pair := chars.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.invalidate()
	}
}

// ----------------------------
// Characteristic entry
// ----------------------------

// CharacteristicEntry bundles the per-characteristic correlated operations:
// one single-flight lock per operation category plus the notification
// broadcaster fed by the platform callback.
type CharacteristicEntry struct {
	uuid  string
	props Properties

	Read   *flight.Excluder[ReadResult]
	Write  *flight.Excluder[error]
	Notify *flight.Notifier[[]byte]

	mu    sync.Mutex
	descs *orderedmap.OrderedMap[string, *DescriptorEntry]
	gone  atomic.Bool
}

func newCharacteristicEntry(info CharacteristicInfo, opts Options) *CharacteristicEntry {
	entry := &CharacteristicEntry{
		uuid:   bledb.NormalizeUUID(info.UUID),
		props:  info.Properties,
		Read:   flight.NewExcluder[ReadResult](opts.OperationTimeout),
		Write:  flight.NewExcluder[error](opts.OperationTimeout),
		Notify: flight.NewNotifier[[]byte](opts.NotifyCapacity),
		descs:  orderedmap.New[string, *DescriptorEntry](),
	}
	for _, desc := range info.Descriptors {
		entry.descs.Set(bledb.NormalizeUUID(desc), newDescriptorEntry(desc, opts))
	}
	return entry
}

// UUID returns the normalized characteristic UUID.
func (c *CharacteristicEntry) UUID() string { return c.uuid }

// Properties returns the characteristic property bitmask.
func (c *CharacteristicEntry) Properties() Properties { return c.props }

// KnownName returns the Bluetooth SIG assigned name, if any.
func (c *CharacteristicEntry) KnownName() string { return bledb.LookupCharacteristic(c.uuid) }

// Invalidated reports whether the entry was torn down.
func (c *CharacteristicEntry) Invalidated() bool { return c.gone.Load() }

// Descriptors returns the descriptors in discovery order.
func (c *CharacteristicEntry) Descriptors() []*DescriptorEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*DescriptorEntry, 0, c.descs.Len())
	for pair := c.descs.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Descriptor looks up one descriptor by normalized UUID.
func (c *CharacteristicEntry) Descriptor(uuid string) (*DescriptorEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.descs.Get(bledb.NormalizeUUID(uuid))
	return entry, ok
}

func (c *CharacteristicEntry) invalidate() {
	if !c.gone.CompareAndSwap(false, true) {
		return
	}
	c.mu.Lock()
	descs := c.descs
	c.descs = orderedmap.New[string, *DescriptorEntry]()
	c.mu.Unlock()
	for pair := descs.Oldest(); pair != nil; pair = pair.Next() {
		pair.Value.invalidate()
	}
	c.Read.Close()
	c.Write.Close()
	c.Notify.Close()
}

// ----------------------------
// Descriptor entry
// ----------------------------

// DescriptorEntry bundles the per-descriptor correlated operations.
type DescriptorEntry struct {
	uuid string

	Read  *flight.Excluder[ReadResult]
	Write *flight.Excluder[error]

	gone atomic.Bool
}

func newDescriptorEntry(uuid string, opts Options) *DescriptorEntry {
	return &DescriptorEntry{
		uuid:  bledb.NormalizeUUID(uuid),
		Read:  flight.NewExcluder[ReadResult](opts.OperationTimeout),
		Write: flight.NewExcluder[error](opts.OperationTimeout),
	}
}

// UUID returns the normalized descriptor UUID.
func (d *DescriptorEntry) UUID() string { return d.uuid }

// KnownName returns the Bluetooth SIG assigned name, if any.
func (d *DescriptorEntry) KnownName() string { return bledb.LookupDescriptor(d.uuid) }

// Invalidated reports whether the entry was torn down.
func (d *DescriptorEntry) Invalidated() bool { return d.gone.Load() }

func (d *DescriptorEntry) invalidate() {
	if !d.gone.CompareAndSwap(false, true) {
		return
	}
	d.Read.Close()
	d.Write.Close()
}

// Package gatt holds the resource tree shared by all device handles: the
// process-wide table mapping connection ids to discovered services,
// characteristics and descriptors, plus the weak-style resolution cache that
// device handles use to re-derive live entries after invalidation.
package gatt

import (
	"fmt"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
)

// Tree is the registry of live connections. Entries are created on successful
// connect and destroyed on disconnect; destruction makes every single-flight
// lock and every subscription underneath observably gone rather than hung.
//
// The tree is injected into device handles instead of living in a package
// global so tests can run isolated instances side by side.
type Tree struct {
	conns  *hashmap.Map[string, *Connection]
	opts   Options
	logger *logrus.Logger
}

// NewTree creates an empty registry. A nil logger falls back to the logrus
// standard logger.
func NewTree(opts Options, logger *logrus.Logger) *Tree {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Tree{
		conns:  hashmap.New[string, *Connection](),
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// Register creates the connection entry for a device. It fails if the device
// is already registered; the platform adapter must deregister first.
func (t *Tree) Register(devID string) (*Connection, error) {
	conn := newConnection(devID, t.opts)
	if !t.conns.Insert(devID, conn) {
		return nil, &StateError{Kind: AlreadyRegistered, Msg: devID}
	}
	t.logger.WithField("device", devID).Debug("Registered connection")
	return conn, nil
}

// Deregister removes a device's connection entry and tears its subtree down:
// pending waiters resolve to "no result" and subscribers see their streams
// end. Exactly one call per registered connection does the teardown; extra
// calls are no-ops.
func (t *Tree) Deregister(devID string) bool {
	conn, ok := t.conns.Get(devID)
	if !ok {
		return false
	}
	t.conns.Del(devID)
	conn.invalidate()
	t.logger.WithField("device", devID).Debug("Deregistered connection")
	return true
}

// Connection returns the live connection entry for a device, if registered.
func (t *Tree) Connection(devID string) (*Connection, bool) {
	return t.conns.Get(devID)
}

// CheckConnection returns the live connection entry or ErrNotConnected.
func (t *Tree) CheckConnection(devID string) (*Connection, error) {
	conn, ok := t.conns.Get(devID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, devID)
	}
	return conn, nil
}

// FindService resolves a service entry by path. A miss is classified by
// connection liveness: no connection means not-connected, a live connection
// means the service disappeared after a database change.
func (t *Tree) FindService(devID, svcUUID string) (*ServiceEntry, error) {
	conn, err := t.CheckConnection(devID)
	if err != nil {
		return nil, err
	}
	svc, ok := conn.Service(svcUUID)
	if !ok {
		return nil, t.missError(devID)
	}
	return svc, nil
}

// FindCharacteristic resolves a characteristic entry by path.
func (t *Tree) FindCharacteristic(devID, svcUUID, charUUID string) (*CharacteristicEntry, error) {
	svc, err := t.FindService(devID, svcUUID)
	if err != nil {
		return nil, err
	}
	char, ok := svc.Characteristic(charUUID)
	if !ok {
		return nil, t.missError(devID)
	}
	return char, nil
}

// FindDescriptor resolves a descriptor entry by path.
func (t *Tree) FindDescriptor(devID, svcUUID, charUUID, descUUID string) (*DescriptorEntry, error) {
	char, err := t.FindCharacteristic(devID, svcUUID, charUUID)
	if err != nil {
		return nil, err
	}
	desc, ok := char.Descriptor(descUUID)
	if !ok {
		return nil, t.missError(devID)
	}
	return desc, nil
}

// NoResultError classifies a correlated operation that resolved to "no
// result": if the connection is gone the caller sees not-connected, otherwise
// the resource is treated as invalidated by a service change. Re-checking
// liveness at the moment of failure is what distinguishes the two.
func (t *Tree) NoResultError(devID string) error {
	return t.missError(devID)
}

func (t *Tree) missError(devID string) error {
	if _, ok := t.conns.Get(devID); !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, devID)
	}
	return fmt.Errorf("%w: %s", ErrServiceChanged, devID)
}

// Len reports how many connections are currently registered.
func (t *Tree) Len() int {
	return t.conns.Len()
}

package goble

import (
	"sync"

	"github.com/go-ble/ble"
)

var (
	defaultDeviceOnce sync.Once
	defaultDeviceErr  error
)

// ensureDefaultDevice opens the HCI device and installs it as go-ble's
// default. Opening is expensive, the result is shared by all connections.
func ensureDefaultDevice() error {
	defaultDeviceOnce.Do(func() {
		dev, err := DeviceFactory()
		if err != nil {
			defaultDeviceErr = err
			return
		}
		ble.SetDefaultDevice(dev)
	})
	return defaultDeviceErr
}

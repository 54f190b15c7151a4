package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/gattlink/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the BLE connection was unexpectedly lost
	// during operation. This is distinct from device.ErrNotConnected, which
	// indicates an attempt to use a device that was never connected or was
	// already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError translates internal errors into messages suited for
// terminal output.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrNotConnected):
		return "device is not connected (it may have disconnected or gone out of range)"
	case errors.Is(err, device.ErrServiceChanged):
		return "the device's services changed; the target no longer exists (re-run to rediscover)"
	case errors.Is(err, device.ErrNotReady):
		return "no value has been read yet"
	case errors.Is(err, device.ErrInvalidParameter):
		return fmt.Sprintf("invalid parameter: %v", err)
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	}

	var attErr device.ATTError
	if errors.As(err, &attErr) {
		return fmt.Sprintf("the device rejected the request: %v", attErr)
	}

	return err.Error()
}

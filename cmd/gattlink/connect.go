package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/gattlink/backend/goble"
	"github.com/srg/gattlink/device"
	"github.com/srg/gattlink/pkg/config"
)

// withDevice connects to the peripheral, discovers its services and runs fn
// with the live handle. The connection is torn down before returning.
func withDevice(ctx context.Context, cfg *config.Config, logger *logrus.Logger, address string, fn func(*device.Device) error) error {
	adapter := goble.NewAdapter(logger)

	opts := device.DefaultOptions()
	opts.OperationTimeout = cfg.OperationTimeout
	opts.NotifyCapacity = cfg.NotifyBuffer
	stack := device.NewStack(adapter, opts, logger)
	adapter.Bind(stack)

	connCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	dev, err := adapter.Connect(connCtx, address)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", address, err)
	}
	defer func() {
		if err := dev.Disconnect(); err != nil {
			logger.WithError(err).Debug("Disconnect failed")
		}
	}()

	if _, err := dev.DiscoverServices(ctx); err != nil {
		return fmt.Errorf("discover services: %w", err)
	}

	return fn(dev)
}

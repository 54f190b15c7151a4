package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattlink/device"
)

// rssiCmd represents the rssi command
var rssiCmd = &cobra.Command{
	Use:   "rssi <device-address>",
	Short: "Read the signal strength of a connected device",
	Args:  cobra.ExactArgs(1),
	RunE:  runRSSI,
}

var rssiTimeout time.Duration

func init() {
	rssiCmd.Flags().DurationVar(&rssiTimeout, "timeout", 5*time.Second, "RSSI read timeout")
}

func runRSSI(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx := context.Background()
	return withDevice(ctx, cfg, logger, address, func(dev *device.Device) error {
		rssiCtx, cancel := context.WithTimeout(ctx, rssiTimeout)
		defer cancel()
		rssi, err := dev.RSSI(rssiCtx)
		if err != nil {
			return fmt.Errorf("failed to read RSSI: %w", err)
		}
		fmt.Printf("%d dBm\n", rssi)
		return nil
	})
}

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattlink/device"
)

// subscribeCmd represents the subscribe command
var subscribeCmd = &cobra.Command{
	Use:   "subscribe <device-address> <uuid>",
	Short: "Subscribe to characteristic notifications",
	Long: `Subscribes to BLE characteristic notifications and outputs received data,
one line per notification, until interrupted or the duration elapses.

Examples:
  # Stream Heart Rate Measurement notifications
  gattlink subscribe AA:BB:CC:DD:EE:FF 2a37

  # Hex output with service disambiguation
  gattlink subscribe AA:BB:CC:DD:EE:FF --service 180d --char 2a37 --hex

  # Stop after 30 seconds
  gattlink subscribe AA:BB:CC:DD:EE:FF 2a37 --duration 30s`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSubscribe,
}

var (
	subscribeServiceUUID string
	subscribeCharUUID    string
	subscribeHex         bool
	subscribeDuration    time.Duration
)

func init() {
	subscribeCmd.Flags().StringVar(&subscribeServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	subscribeCmd.Flags().StringVar(&subscribeCharUUID, "char", "", "Characteristic UUID")
	subscribeCmd.Flags().BoolVar(&subscribeHex, "hex", false, "Output as hex string; raw bytes by default")
	subscribeCmd.Flags().DurationVar(&subscribeDuration, "duration", 0, "Stop after this duration (0 runs until interrupted)")
}

func runSubscribe(cmd *cobra.Command, args []string) error {
	address := args[0]

	charUUID := subscribeCharUUID
	if len(args) == 2 {
		charUUID = args[1]
	}
	if charUUID == "" {
		return fmt.Errorf("UUID required: provide as second argument or via --char flag")
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if subscribeDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, subscribeDuration)
		defer cancel()
	}

	return withDevice(ctx, cfg, logger, address, func(dev *device.Device) error {
		char, err := resolveCharacteristic(ctx, dev, charUUID, subscribeServiceUUID)
		if err != nil {
			return err
		}

		sub, err := char.Notify(ctx)
		if err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		defer sub.Close()

		for {
			data, ok := sub.Next(ctx)
			if !ok {
				// Stream ended: interrupted, timed out, or the
				// characteristic went away.
				if ctx.Err() != nil {
					return nil
				}
				return ErrConnectionLost
			}
			if subscribeHex {
				fmt.Println(hex.EncodeToString(data))
			} else {
				fmt.Println(string(data))
			}
		}
	})
}

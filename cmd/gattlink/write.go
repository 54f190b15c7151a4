package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattlink/device"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <uuid> <data>",
	Short: "Write to a characteristic or descriptor",
	Long: `Writes data to a BLE characteristic or descriptor.

Examples:
  # Write to characteristic (string data)
  gattlink write AA:BB:CC:DD:EE:FF 2a06 "high"

  # Write hex data
  gattlink write AA:BB:CC:DD:EE:FF 2a06 01 --hex

  # Write to descriptor (enable notifications)
  gattlink write AA:BB:CC:DD:EE:FF --service 180d --char 2a37 --desc 2902 0100 --hex

  # Write without response (faster, no ACK)
  gattlink write AA:BB:CC:DD:EE:FF 2a06 "data" --without-response`,
	Args: cobra.RangeArgs(2, 3),
	RunE: runWrite,
}

var (
	writeServiceUUID string
	writeCharUUID    string
	writeDescUUID    string
	writeHex         bool
	writeNoResponse  bool
	writeTimeout     time.Duration
)

func init() {
	writeCmd.Flags().StringVar(&writeServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	writeCmd.Flags().StringVar(&writeCharUUID, "char", "", "Characteristic UUID")
	writeCmd.Flags().StringVar(&writeDescUUID, "desc", "", "Descriptor UUID (writes descriptor instead of characteristic)")
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
	writeCmd.Flags().BoolVar(&writeNoResponse, "without-response", false, "Write without response (faster, no ACK)")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", 5*time.Second, "Write timeout")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address := args[0]

	var targetUUID, dataStr string
	switch {
	case len(args) == 3:
		targetUUID = args[1]
		dataStr = args[2]
	case writeCharUUID != "" || writeDescUUID != "":
		dataStr = args[1]
	default:
		return fmt.Errorf("UUID required: provide as second argument or via --char/--desc flag")
	}

	data, err := parseWriteData(dataStr)
	if err != nil {
		return fmt.Errorf("failed to parse data: %w", err)
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx := context.Background()
	return withDevice(ctx, cfg, logger, address, func(dev *device.Device) error {
		writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
		defer cancel()

		// Descriptor path
		if writeDescUUID != "" {
			charUUID := writeCharUUID
			if charUUID == "" && targetUUID != "" {
				charUUID = targetUUID
			}
			if charUUID == "" {
				return fmt.Errorf("descriptor writes require the parent characteristic via --char")
			}
			desc, err := resolveDescriptor(ctx, dev, writeDescUUID, charUUID, writeServiceUUID)
			if err != nil {
				return err
			}
			if err := desc.Write(writeCtx, data); err != nil {
				return fmt.Errorf("failed to write descriptor: %w", err)
			}
			fmt.Printf("Wrote %d bytes to descriptor %s\n", len(data), writeDescUUID)
			return nil
		}

		// Characteristic path
		charUUID := targetUUID
		if charUUID == "" {
			charUUID = writeCharUUID
		}
		char, err := resolveCharacteristic(ctx, dev, charUUID, writeServiceUUID)
		if err != nil {
			return err
		}

		if writeNoResponse {
			err = char.WriteWithoutResponse(writeCtx, data)
		} else {
			err = char.Write(writeCtx, data)
		}
		if err != nil {
			return fmt.Errorf("failed to write characteristic: %w", err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(data), charUUID)
		return nil
	})
}

// parseWriteData converts the CLI data argument into bytes, honoring --hex.
func parseWriteData(input string) ([]byte, error) {
	if !writeHex {
		return []byte(input), nil
	}
	cleaned := strings.ReplaceAll(strings.TrimPrefix(input, "0x"), " ", "")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %w", input, err)
	}
	return data, nil
}

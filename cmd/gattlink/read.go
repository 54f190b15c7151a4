package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattlink/device"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read <device-address> [uuid]",
	Short: "Read a characteristic or descriptor value",
	Long: `Reads data from BLE characteristic(s) or a descriptor.

Examples:
  # Read Battery Level characteristic
  gattlink read AA:BB:CC:DD:EE:FF 2a19

  # Read multiple characteristics (comma-separated)
  gattlink read AA:BB:CC:DD:EE:FF 2a37,2a38,2a19 --hex

  # Read with service disambiguation
  gattlink read AA:BB:CC:DD:EE:FF --service 180f --char 2a19

  # Read descriptor (Client Characteristic Configuration)
  gattlink read AA:BB:CC:DD:EE:FF --service 180d --char 2a37 --desc 2902

  # Output as hex
  gattlink read AA:BB:CC:DD:EE:FF 2a19 --hex`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runRead,
}

var (
	readServiceUUID string
	readCharUUIDs   string // supports comma-separated UUIDs
	readDescUUID    string
	readHex         bool
	readTimeout     time.Duration
)

func init() {
	readCmd.Flags().StringVar(&readServiceUUID, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	readCmd.Flags().StringVar(&readCharUUIDs, "char", "", "Characteristic UUID(s), comma-separated for multiple")
	readCmd.Flags().StringVar(&readDescUUID, "desc", "", "Descriptor UUID (reads descriptor instead of characteristic)")
	readCmd.Flags().BoolVar(&readHex, "hex", false, "Output as hex string (e.g., 'FF01'); raw bytes by default")
	readCmd.Flags().DurationVar(&readTimeout, "timeout", 5*time.Second, "Read timeout")
}

func runRead(cmd *cobra.Command, args []string) error {
	address := args[0]

	var uuidInput string
	switch {
	case len(args) == 2:
		uuidInput = args[1]
	case readCharUUIDs != "":
		uuidInput = readCharUUIDs
	case readDescUUID != "":
		// descriptor path uses --char to name the parent
	default:
		return fmt.Errorf("UUID required: provide as second argument or via --char/--desc flag")
	}

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx := context.Background()
	return withDevice(ctx, cfg, logger, address, func(dev *device.Device) error {
		// Descriptor path
		if readDescUUID != "" {
			charUUID := readCharUUIDs
			if charUUID == "" && len(args) == 2 {
				charUUID = args[1]
			}
			if charUUID == "" {
				return fmt.Errorf("descriptor reads require the parent characteristic via --char")
			}
			desc, err := resolveDescriptor(ctx, dev, readDescUUID, charUUID, readServiceUUID)
			if err != nil {
				return err
			}
			readCtx, cancel := context.WithTimeout(ctx, readTimeout)
			defer cancel()
			data, err := desc.Read(readCtx)
			if err != nil {
				return fmt.Errorf("failed to read descriptor: %w", err)
			}
			outputData("", data)
			return nil
		}

		// Characteristic path
		uuids := parseCSVUUIDs(uuidInput)
		if len(uuids) == 0 {
			return fmt.Errorf("no valid UUIDs provided")
		}
		multi := len(uuids) > 1
		for _, uuid := range uuids {
			char, err := resolveCharacteristic(ctx, dev, uuid, readServiceUUID)
			if err != nil {
				if !multi {
					return err
				}
				fmt.Fprintf(os.Stderr, "%s: error: %v\n", uuid, err)
				continue
			}
			readCtx, cancel := context.WithTimeout(ctx, readTimeout)
			data, err := char.Read(readCtx)
			cancel()
			if err != nil {
				if !multi {
					return fmt.Errorf("failed to read characteristic: %w", err)
				}
				fmt.Fprintf(os.Stderr, "%s: error: %v\n", uuid, err)
				continue
			}
			prefix := ""
			if multi {
				prefix = uuid
			}
			outputData(prefix, data)
		}
		return nil
	})
}

// outputData prints a value, hex-encoded when --hex is set, with an
// optional UUID prefix for multi-target reads.
func outputData(prefix string, data []byte) {
	var out string
	if readHex {
		out = hex.EncodeToString(data)
	} else {
		out = string(data)
	}
	if prefix != "" {
		fmt.Printf("%s: %s\n", prefix, out)
		return
	}
	fmt.Println(out)
}

package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/gattlink/device"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <device-address>",
	Short: "Inspect services, characteristics, and descriptors of a BLE device",
	Long: `Connects to a BLE device by address and discovers its services,
characteristics, and descriptors. Attempts to read characteristic values when possible.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var (
	inspectReadValues  bool
	inspectReadTimeout time.Duration
)

func init() {
	inspectCmd.Flags().BoolVar(&inspectReadValues, "read", false, "Read values of readable characteristics")
	inspectCmd.Flags().DurationVar(&inspectReadTimeout, "read-timeout", 2*time.Second, "Timeout per characteristic read")
}

func runInspect(cmd *cobra.Command, args []string) error {
	address := args[0]

	cfg, logger, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx := context.Background()
	return withDevice(ctx, cfg, logger, address, func(dev *device.Device) error {
		return printProfile(ctx, dev)
	})
}

var (
	serviceColor = color.New(color.FgCyan, color.Bold)
	charColor    = color.New(color.FgGreen)
	descColor    = color.New(color.FgYellow)
	dimColor     = color.New(color.FgHiBlack)
)

// printProfile walks the discovered GATT layout and prints it as a tree.
func printProfile(ctx context.Context, dev *device.Device) error {
	services, err := dev.Services(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Device %s\n", dev.ID())
	for _, svc := range services {
		name, _ := svc.KnownName()
		serviceColor.Printf("Service %s", svc.UUID())
		if name != "" {
			dimColor.Printf("  (%s)", name)
		}
		fmt.Println()

		chars, err := svc.Characteristics()
		if err != nil {
			return err
		}
		for _, char := range chars {
			if err := printCharacteristic(ctx, char); err != nil {
				return err
			}
		}
	}
	return nil
}

func printCharacteristic(ctx context.Context, char *device.Characteristic) error {
	props, err := char.Properties()
	if err != nil {
		return err
	}
	name, _ := char.KnownName()

	charColor.Printf("  Characteristic %s", char.UUID())
	if name != "" {
		dimColor.Printf("  (%s)", name)
	}
	dimColor.Printf("  [%s]", props)
	fmt.Println()

	if inspectReadValues && props.CanRead() {
		readCtx, cancel := context.WithTimeout(ctx, inspectReadTimeout)
		data, err := char.Read(readCtx)
		cancel()
		if err != nil {
			dimColor.Printf("    value: <error: %v>\n", err)
		} else {
			fmt.Printf("    value: %s\n", hex.EncodeToString(data))
		}
	}

	descs, err := char.Descriptors()
	if err != nil {
		return err
	}
	for _, desc := range descs {
		dname, _ := desc.KnownName()
		descColor.Printf("    Descriptor %s", desc.UUID())
		if dname != "" {
			dimColor.Printf("  (%s)", dname)
		}
		fmt.Println()
	}
	return nil
}

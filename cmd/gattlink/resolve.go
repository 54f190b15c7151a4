package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/srg/gattlink/device"
	"github.com/srg/gattlink/internal/bledb"
)

// resolveCharacteristic finds a characteristic by UUID. With an explicit
// service UUID it is a direct lookup; otherwise all services are searched
// and ambiguity is an error.
func resolveCharacteristic(ctx context.Context, dev *device.Device, charUUID, serviceUUID string) (*device.Characteristic, error) {
	target := bledb.NormalizeUUID(charUUID)

	if serviceUUID != "" {
		svc := dev.Service(serviceUUID)
		char := svc.Characteristic(target)
		if _, err := char.Properties(); err != nil {
			return nil, fmt.Errorf("characteristic %s not found in service %s: %w", charUUID, serviceUUID, err)
		}
		return char, nil
	}

	services, err := dev.Services(ctx)
	if err != nil {
		return nil, err
	}

	var found []*device.Characteristic
	var foundSvcs []string
	for _, svc := range services {
		chars, err := svc.Characteristics()
		if err != nil {
			continue
		}
		for _, char := range chars {
			if bledb.NormalizeUUID(char.UUID()) == target {
				found = append(found, char)
				foundSvcs = append(foundSvcs, svc.UUID())
			}
		}
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("characteristic %s not found on device", charUUID)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("characteristic %s found in multiple services (%s); disambiguate with --service",
			charUUID, strings.Join(foundSvcs, ", "))
	}
}

// resolveDescriptor finds a descriptor under the given characteristic.
func resolveDescriptor(ctx context.Context, dev *device.Device, descUUID, charUUID, serviceUUID string) (*device.Descriptor, error) {
	char, err := resolveCharacteristic(ctx, dev, charUUID, serviceUUID)
	if err != nil {
		return nil, err
	}
	target := bledb.NormalizeUUID(descUUID)

	descs, err := char.Descriptors()
	if err != nil {
		return nil, err
	}
	for _, desc := range descs {
		if bledb.NormalizeUUID(desc.UUID()) == target {
			return desc, nil
		}
	}
	return nil, fmt.Errorf("descriptor %s not found in characteristic %s", descUUID, charUUID)
}

// parseCSVUUIDs splits a comma-separated UUID list, dropping empty entries.
func parseCSVUUIDs(input string) []string {
	parts := strings.Split(input, ",")
	uuids := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			uuids = append(uuids, p)
		}
	}
	return uuids
}

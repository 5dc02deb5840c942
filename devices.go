package main

import (
	"context"
	"fmt"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
)

// selectedDevices lists the account's devices and applies the serial filter
func selectedDevices(ctx context.Context, client *foxess.Client, cfg Config) ([]*foxess.Device, error) {
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	selected := make([]*foxess.Device, 0, len(devices))
	for _, device := range devices {
		if cfg.selected(device.Serial) {
			selected = append(selected, device)
		}
	}
	return selected, nil
}

// refreshDevice loads current values for a device. With an explicit variable
// list discovery is skipped, which saves one request per device.
func refreshDevice(ctx context.Context, device *foxess.Device, variables []string) error {
	if len(variables) > 0 {
		if err := device.FetchVariables(ctx, variables); err != nil {
			return fmt.Errorf("failed to fetch variables for %s: %w", device, err)
		}
		return nil
	}

	if err := device.FetchAvailableVariables(ctx); err != nil {
		return fmt.Errorf("failed to discover variables for %s: %w", device, err)
	}
	if err := device.FetchAllVariables(ctx); err != nil {
		return fmt.Errorf("failed to fetch variables for %s: %w", device, err)
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
)

// printReport lists the devices and prints the variables of each selected one
func printReport(ctx context.Context, w io.Writer, client *foxess.Client, cfg Config) error {
	devices, err := selectedDevices(ctx, client, cfg)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		_, _ = fmt.Fprintln(w, "No inverters found")
		return nil
	}

	_, _ = fmt.Fprintln(w, "Inverters:")
	for _, device := range devices {
		_, _ = fmt.Fprintf(w, "  %s\n", device)
	}

	for _, device := range devices {
		if err := refreshDevice(ctx, device, cfg.Variables); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "\n%s\n", device)
		printVariables(w, device)
	}

	remaining, err := client.RemainingRequests(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\nRemaining requests: %d\n", remaining)
	return nil
}

func printVariables(w io.Writer, device *foxess.Device) {
	for _, name := range device.AvailableVariables() {
		reading, err := device.Variable(name)
		if err != nil || reading == nil {
			_, _ = fmt.Fprintf(w, "%s N/A\n", name)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", name, reading)
	}
}

package main

import (
	"strings"
	"testing"
	"time"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewCollector(t *testing.T) {
	client, cfg := newMockClient(t, &mockFoxESS{})
	cfg.Client.Timeout = 5 * time.Second

	collector := NewCollector(client, cfg)

	if collector.timeout != 20*time.Second {
		t.Errorf("NewCollector() timeout = %v, want 20s", collector.timeout)
	}
	if collector.variable == nil {
		t.Error("NewCollector() variable metric is nil")
	}
	if collector.remainingRequests == nil {
		t.Error("NewCollector() remainingRequests metric is nil")
	}
}

func TestCollector_Describe(t *testing.T) {
	client, cfg := newMockClient(t, &mockFoxESS{})
	collector := NewCollector(client, cfg)
	descCh := make(chan *prometheus.Desc, 20)

	go func() {
		collector.Describe(descCh)
		close(descCh)
	}()

	count := 0
	for range descCh {
		count++
	}

	// variable, deviceInfo, deviceStatus, scrapeSuccess, up, remainingRequests
	expectedCount := 6
	if count != expectedCount {
		t.Errorf("Describe() sent %d descriptors, want %d", count, expectedCount)
	}
}

func TestCollector_Collect_Success(t *testing.T) {
	client, cfg := newMockClient(t, &mockFoxESS{})
	collector := NewCollector(client, cfg)

	// up + remaining, and per device: info + status + scrapeSuccess +
	// pvPower + SoC (currentFault is not numeric) = 2 + 2*5
	if got := testutil.CollectAndCount(collector); got != 12 {
		t.Errorf("Collect() sent %d metrics, want 12", got)
	}

	expected := `
# HELP foxess_device_info FoxESS device information
# TYPE foxess_device_info gauge
foxess_device_info{device_serial="SN1",device_type="H3-10.0-E",has_battery="true",has_pv="true",product_type="",station_name="Home"} 1
foxess_device_info{device_serial="SN2",device_type="T2",has_battery="false",has_pv="false",product_type="",station_name="Barn"} 1
# HELP foxess_device_status FoxESS device status (1=online, 2=fault, 3=offline)
# TYPE foxess_device_status gauge
foxess_device_status{device_serial="SN1"} 1
foxess_device_status{device_serial="SN2"} 3
# HELP foxess_variable Real-time value of a FoxESS device variable
# TYPE foxess_variable gauge
foxess_variable{device_serial="SN1",device_type="H3-10.0-E",unit="%",variable="SoC"} 87
foxess_variable{device_serial="SN1",device_type="H3-10.0-E",unit="kW",variable="pvPower"} 3.2
foxess_variable{device_serial="SN2",device_type="T2",unit="%",variable="SoC"} 87
foxess_variable{device_serial="SN2",device_type="T2",unit="kW",variable="pvPower"} 3.2
# HELP foxess_remaining_requests API calls left in the account's daily quota
# TYPE foxess_remaining_requests gauge
foxess_remaining_requests 1200
# HELP foxess_up Whether listing devices from FoxESS Cloud was successful
# TYPE foxess_up gauge
foxess_up 1
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"foxess_device_info", "foxess_device_status",
		"foxess_variable", "foxess_remaining_requests", "foxess_up"); err != nil {
		t.Errorf("unexpected collecting result:\n%s", err)
	}
}

func TestCollector_Collect_ListError(t *testing.T) {
	client, cfg := newMockClient(t, &mockFoxESS{listErrno: 40257})
	collector := NewCollector(client, cfg)

	// Should only get foxess_up with value 0
	expected := `
# HELP foxess_up Whether listing devices from FoxESS Cloud was successful
# TYPE foxess_up gauge
foxess_up 0
`
	if got := testutil.CollectAndCount(collector); got != 1 {
		t.Errorf("Collect() with list error sent %d metrics, want 1", got)
	}
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected), "foxess_up"); err != nil {
		t.Errorf("unexpected collecting result:\n%s", err)
	}
}

func TestCollector_Collect_QueryError(t *testing.T) {
	client, cfg := newMockClient(t, &mockFoxESS{queryErrno: 40400})
	collector := NewCollector(client, cfg)

	expected := `
# HELP foxess_scrape_success Whether fetching the device variables was successful
# TYPE foxess_scrape_success gauge
foxess_scrape_success{device_serial="SN1"} 0
foxess_scrape_success{device_serial="SN2"} 0
`
	if err := testutil.CollectAndCompare(collector, strings.NewReader(expected), "foxess_scrape_success"); err != nil {
		t.Errorf("unexpected collecting result:\n%s", err)
	}
	if got := testutil.CollectAndCount(collector, "foxess_variable"); got != 0 {
		t.Errorf("Collect() with query error sent %d variables, want 0", got)
	}
}

func TestCollector_Collect_ExplicitVariables(t *testing.T) {
	client, cfg := newMockClient(t, &mockFoxESS{})
	cfg.Variables = []string{"pvPower"}
	cfg.Serials = []string{"SN1"}
	collector := NewCollector(client, cfg)

	// The mock answers with every variable regardless of the request.
	if got := testutil.CollectAndCount(collector, "foxess_variable"); got != 2 {
		t.Errorf("Collect() sent %d variables, want 2", got)
	}
	if got := testutil.CollectAndCount(collector, "foxess_device_info"); got != 1 {
		t.Errorf("Collect() sent %d device infos, want 1", got)
	}
}

func TestCollector_Collect_Unreachable(t *testing.T) {
	client, err := foxess.NewClient(foxess.Config{
		APIKey:  testAPIKey,
		BaseURL: "http://invalid-host-that-does-not-exist:8080",
		Timeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	collector := NewCollector(client, Config{})
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	// Collect metrics - should not panic
	metrics, err := registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	var upFound bool
	for _, m := range metrics {
		if m.GetName() == "foxess_up" {
			upFound = true
			if value := m.GetMetric()[0].GetGauge().GetValue(); value != 0 {
				t.Errorf("Expected foxess_up to be 0 (failed), got %f", value)
			}
		}
	}
	if !upFound {
		t.Error("Expected foxess_up metric to be present")
	}
}

func TestCollector_MinScrapeInterval(t *testing.T) {
	tests := []struct {
		name         string
		serials      []string
		variables    []string
		lastDevices  int64
		wantCalls    int
		wantInterval time.Duration
	}{
		{name: "no scrape yet", wantCalls: 4, wantInterval: 4 * time.Minute},
		{name: "serial filter before scrape", serials: []string{"SN1", "SN2", "SN3"}, wantCalls: 8, wantInterval: 8 * time.Minute},
		{name: "after scrape", lastDevices: 2, wantCalls: 6, wantInterval: 6 * time.Minute},
		{name: "explicit variables skip discovery", variables: []string{"pvPower"}, lastDevices: 2, wantCalls: 4, wantInterval: 4 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := NewCollector(nil, Config{Serials: tt.serials, Variables: tt.variables})
			collector.lastDevices.Store(tt.lastDevices)

			if got := collector.callsPerScrape(); got != tt.wantCalls {
				t.Errorf("callsPerScrape() = %d, want %d", got, tt.wantCalls)
			}
			if got := collector.minScrapeInterval(); got != tt.wantInterval {
				t.Errorf("minScrapeInterval() = %v, want %v", got, tt.wantInterval)
			}
		})
	}
}

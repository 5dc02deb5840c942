package main

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

// dailyRequestQuota is the number of API calls FoxESS Cloud allows per day.
const dailyRequestQuota = 1440

// Collector implements prometheus.Collector for FoxESS Cloud devices
type Collector struct {
	client  *foxess.Client
	cfg     Config
	timeout time.Duration

	// devices seen by the last successful listing
	lastDevices atomic.Int64

	// Metrics
	variable          *prometheus.Desc
	deviceInfo        *prometheus.Desc
	deviceStatus      *prometheus.Desc
	scrapeSuccess     *prometheus.Desc
	up                *prometheus.Desc
	remainingRequests *prometheus.Desc
}

// NewCollector creates a new FoxESS collector
func NewCollector(client *foxess.Client, cfg Config) *Collector {
	timeout := cfg.Client.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Collector{
		client: client,
		cfg:    cfg,
		// A scrape runs four sequential stages: list, discovery, query
		// and the quota lookup.
		timeout: 4 * timeout,
		variable: prometheus.NewDesc(
			"foxess_variable",
			"Real-time value of a FoxESS device variable",
			[]string{"device_serial", "device_type", "variable", "unit"},
			nil,
		),
		deviceInfo: prometheus.NewDesc(
			"foxess_device_info",
			"FoxESS device information",
			[]string{"device_serial", "device_type", "station_name", "product_type", "has_battery", "has_pv"},
			nil,
		),
		deviceStatus: prometheus.NewDesc(
			"foxess_device_status",
			"FoxESS device status (1=online, 2=fault, 3=offline)",
			[]string{"device_serial"},
			nil,
		),
		scrapeSuccess: prometheus.NewDesc(
			"foxess_scrape_success",
			"Whether fetching the device variables was successful",
			[]string{"device_serial"},
			nil,
		),
		up: prometheus.NewDesc(
			"foxess_up",
			"Whether listing devices from FoxESS Cloud was successful",
			nil,
			nil,
		),
		remainingRequests: prometheus.NewDesc(
			"foxess_remaining_requests",
			"API calls left in the account's daily quota",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.variable
	ch <- c.deviceInfo
	ch <- c.deviceStatus
	ch <- c.scrapeSuccess
	ch <- c.up
	ch <- c.remainingRequests
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	devices, err := selectedDevices(ctx, c.client, c.cfg)
	if err != nil {
		log.Printf("Error listing devices: %v", err)
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)
	c.lastDevices.Store(int64(len(devices)))

	// Each goroutine owns its Device; only the Client is shared.
	var wg sync.WaitGroup
	for _, device := range devices {
		wg.Add(1)
		go func(d *foxess.Device) {
			defer wg.Done()
			c.collectDevice(ctx, d, ch)
		}(device)
	}
	wg.Wait()

	remaining, err := c.client.RemainingRequests(ctx)
	if err != nil {
		log.Printf("Error fetching remaining requests: %v", err)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.remainingRequests, prometheus.GaugeValue, float64(remaining))
}

func (c *Collector) collectDevice(ctx context.Context, device *foxess.Device, ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.deviceInfo, prometheus.GaugeValue, 1,
		device.Serial,
		device.Name,
		device.StationName,
		device.ProductType,
		strconv.FormatBool(device.HasBattery),
		strconv.FormatBool(device.HasPV),
	)
	ch <- prometheus.MustNewConstMetric(c.deviceStatus, prometheus.GaugeValue, float64(device.Status), device.Serial)

	if err := refreshDevice(ctx, device, c.cfg.Variables); err != nil {
		log.Printf("Error collecting %s: %v", device, err)
		ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 0, device.Serial)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeSuccess, prometheus.GaugeValue, 1, device.Serial)

	for _, name := range device.AvailableVariables() {
		reading, err := device.Variable(name)
		if err != nil || reading == nil {
			continue
		}
		value, ok := reading.Float()
		if !ok {
			log.Debugf("Skipping non-numeric variable %s on %s: %v", name, device.Serial, reading.Value)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.variable, prometheus.GaugeValue, value,
			device.Serial, device.Name, name, reading.Unit)
	}
}

// callsPerScrape returns how many API calls one scrape spends
func (c *Collector) callsPerScrape() int {
	devices := int(c.lastDevices.Load())
	if devices == 0 {
		devices = max(len(c.cfg.Serials), 1)
	}
	perDevice := 2
	if len(c.cfg.Variables) > 0 {
		perDevice = 1
	}
	return 2 + perDevice*devices
}

// minScrapeInterval is the shortest scrape interval that stays within the
// daily request quota
func (c *Collector) minScrapeInterval() time.Duration {
	return time.Duration(c.callsPerScrape()) * 24 * time.Hour / dailyRequestQuota
}

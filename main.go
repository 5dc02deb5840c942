package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := setupLogging(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	cfg, err := parseConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	client, err := foxess.NewClient(cfg.Client)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case modeExporter:
		runExporter(ctx, client, cfg)
	case modeMQTT:
		runMQTT(ctx, client, cfg)
	default:
		if err := printReport(ctx, os.Stdout, client, cfg); err != nil {
			log.Fatalf("Error: %v", err)
		}
	}
}

func runMQTT(ctx context.Context, client *foxess.Client, cfg Config) {
	mqttClient, err := connectMQTT(cfg.MQTT)
	if err != nil {
		log.Fatalf("MQTT error: %v", err)
	}
	defer mqttClient.Disconnect(250)

	log.Printf("Publishing FoxESS devices to %s every %s", cfg.MQTT.Broker, cfg.MQTT.Interval)
	publisher := NewPublisher(client, cfg, mqttClient)
	publisher.Run(ctx)
	log.Printf("Received shutdown signal, exiting")
	if err := publisher.Close(); err != nil {
		log.Printf("Error publishing offline status: %v", err)
	}
}

func runExporter(ctx context.Context, client *foxess.Client, cfg Config) {
	port := getPort()

	log.Printf("Starting FoxESS Prometheus Exporter on port %s", port)
	if len(cfg.Serials) > 0 {
		log.Printf("Restricted to devices: %s", strings.Join(cfg.Serials, ", "))
	}

	// Create and register collector
	collector := NewCollector(client, cfg)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	server := &http.Server{Addr: ":" + port, Handler: newMux(registry, collector, cfg)}
	if err := serve(ctx, server); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
	log.Printf("Received shutdown signal, exiting")
}

// serve runs server until ctx is done, then lets in-flight scrapes finish
func serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newMux wires the metrics, health and index endpoints
func newMux(registry *prometheus.Registry, collector *Collector, cfg Config) *http.ServeMux {
	mux := http.NewServeMux()

	// Expose metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Root endpoint with info
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		devices := "all devices on the account"
		if len(cfg.Serials) > 0 {
			devices = strings.Join(cfg.Serials, ", ")
		}
		w.Header().Set("Content-Type", "text/html")
		page := `<!DOCTYPE html>
<html>
<head><title>FoxESS Exporter</title></head>
<body>
<h1>FoxESS Prometheus Exporter</h1>
<p>Monitoring %s</p>
<p>Each scrape uses %d API calls of the daily quota of %d.
Set <code>scrape_interval</code> to at least %s.</p>
<p><a href="/metrics">Metrics</a></p>
</body>
</html>`
		_, _ = fmt.Fprintf(w, page, html.EscapeString(devices),
			collector.callsPerScrape(), dailyRequestQuota, collector.minScrapeInterval())
	})

	return mux
}

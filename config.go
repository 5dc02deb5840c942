package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/JHOFER-Cloud/foxess-exporter/foxess"
	log "github.com/sirupsen/logrus"
)

const (
	defaultPort         = "9090"
	defaultMode         = modePrint
	defaultTimeout      = 10 * time.Second
	defaultTopicPrefix  = "foxess"
	defaultMQTTClientID = "foxess-exporter"
	defaultMQTTInterval = 5 * time.Minute

	modePrint    = "print"
	modeExporter = "exporter"
	modeMQTT     = "mqtt"
)

// Config is the runtime configuration of the binary.
type Config struct {
	Client    foxess.Config
	Mode      string
	Serials   []string
	Variables []string
	MQTT      MQTTConfig
}

// MQTTConfig configures the MQTT publisher.
type MQTTConfig struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	Interval    time.Duration
}

// parseConfig reads the configuration from environment variables
func parseConfig() (Config, error) {
	apiKey := strings.TrimSpace(os.Getenv("FOXESS_API_KEY"))
	if apiKey == "" {
		return Config{}, fmt.Errorf("FOXESS_API_KEY must be set")
	}

	timeout, err := parseDuration("FOXESS_TIMEOUT", defaultTimeout)
	if err != nil {
		return Config{}, err
	}

	mode := strings.ToLower(strings.TrimSpace(os.Getenv("FOXESS_MODE")))
	if mode == "" {
		mode = defaultMode
	}
	switch mode {
	case modePrint, modeExporter, modeMQTT:
	default:
		return Config{}, fmt.Errorf("unknown FOXESS_MODE %q (want %s, %s or %s)", mode, modePrint, modeExporter, modeMQTT)
	}

	cfg := Config{
		Client: foxess.Config{
			APIKey:  apiKey,
			BaseURL: strings.TrimSpace(os.Getenv("FOXESS_BASE_URL")),
			Timeout: timeout,
		},
		Mode:      mode,
		Serials:   splitList(os.Getenv("FOXESS_SERIALS")),
		Variables: splitList(os.Getenv("FOXESS_VARIABLES")),
	}

	if mode == modeMQTT {
		cfg.MQTT, err = parseMQTTConfig()
		if err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func parseMQTTConfig() (MQTTConfig, error) {
	broker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if broker == "" {
		return MQTTConfig{}, fmt.Errorf("MQTT_BROKER must be set in %s mode", modeMQTT)
	}

	interval, err := parseDuration("MQTT_INTERVAL", defaultMQTTInterval)
	if err != nil {
		return MQTTConfig{}, err
	}

	prefix := strings.Trim(strings.TrimSpace(os.Getenv("MQTT_TOPIC_PREFIX")), "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}

	clientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if clientID == "" {
		clientID = defaultMQTTClientID
	}

	return MQTTConfig{
		Broker:      broker,
		TopicPrefix: prefix,
		ClientID:    clientID,
		Username:    os.Getenv("MQTT_USERNAME"),
		Password:    os.Getenv("MQTT_PASSWORD"),
		Interval:    interval,
	}, nil
}

func parseDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return d, nil
}

// splitList splits a comma separated list, dropping empty entries
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// getPort returns the configured port or the default
func getPort() string {
	port := os.Getenv("EXPORTER_PORT")
	if port == "" {
		port = defaultPort
	}
	return port
}

// setupLogging applies LOG_LEVEL to the logger
func setupLogging() error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		log.SetLevel(log.InfoLevel)
		return nil
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return nil
}

// selected reports whether serial passes the FOXESS_SERIALS filter
func (c Config) selected(serial string) bool {
	if len(c.Serials) == 0 {
		return true
	}
	for _, s := range c.Serials {
		if s == serial {
			return true
		}
	}
	return false
}

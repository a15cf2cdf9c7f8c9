package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Magnetometer hardware
	MagI2CBus  string
	MagI2CAddr uint16
	MagIntPin  string

	// Magnetometer sensor configuration
	// Gain: 0-7 (0=5x ... 7=1x)
	MagGain byte
	// Resolution per axis: 0-3 (16..19 bit)
	MagResolutionX byte
	MagResolutionY byte
	MagResolutionZ byte
	// Digital filter: 0-7
	MagFilter byte
	// Oversampling: 0-3
	MagOversampling byte

	// Sampling loop tuning (0 = package default)
	MagWindowSize        int
	MagCalibrationWindow int
	MagAlpha             float64

	// Calibration
	CalibrationSeconds int

	// Servo pointer
	ServoPin string

	// Parameter store
	ParamsDBPath string

	// MQTT
	MQTTBroker          string
	MQTTClientIDDaemon  string
	MQTTClientIDConsole string

	// Topics
	TopicRaw            string
	TopicCalibration    string
	TopicHeading        string
	TopicDeclination    string
	TopicDeclinationSet string

	// Web server
	WebServerPort int

	// NMEA output (optional; empty port disables it)
	NMEASerialPort string
	NMEABaudRate   int
}

// Package-level unexported variables for the singleton pattern: external
// code must use InitGlobal() to set and Get() to read, ensuring thread
// safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Magnetometer hardware
	case "MAG_I2C_BUS":
		c.MagI2CBus = value
	case "MAG_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid MAG_I2C_ADDR %q: %w", value, err)
		}
		c.MagI2CAddr = uint16(addr)
	case "MAG_INT_PIN":
		c.MagIntPin = value

	// Magnetometer sensor configuration
	case "MAG_GAIN":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_GAIN %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("MAG_GAIN must be 0-7 (0=5x ... 7=1x), got %d", val)
		}
		c.MagGain = byte(val)
	case "MAG_RESOLUTION_X", "MAG_RESOLUTION_Y", "MAG_RESOLUTION_Z":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, value, err)
		}
		if val < 0 || val > 3 {
			return fmt.Errorf("%s must be 0-3 (0=16bit ... 3=19bit), got %d", key, val)
		}
		switch key {
		case "MAG_RESOLUTION_X":
			c.MagResolutionX = byte(val)
		case "MAG_RESOLUTION_Y":
			c.MagResolutionY = byte(val)
		case "MAG_RESOLUTION_Z":
			c.MagResolutionZ = byte(val)
		}
	case "MAG_FILTER":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_FILTER %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("MAG_FILTER must be 0-7, got %d", val)
		}
		c.MagFilter = byte(val)
	case "MAG_OVERSAMPLING":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_OVERSAMPLING %q: %w", value, err)
		}
		if val < 0 || val > 3 {
			return fmt.Errorf("MAG_OVERSAMPLING must be 0-3, got %d", val)
		}
		c.MagOversampling = byte(val)

	// Sampling loop tuning
	case "MAG_WINDOW_SIZE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_WINDOW_SIZE %q: %w", value, err)
		}
		c.MagWindowSize = val
	case "MAG_CALIBRATION_WINDOW":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MAG_CALIBRATION_WINDOW %q: %w", value, err)
		}
		c.MagCalibrationWindow = val
	case "MAG_ALPHA":
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid MAG_ALPHA %q: %w", value, err)
		}
		if val <= 0 || val > 1 {
			return fmt.Errorf("MAG_ALPHA must be in (0, 1], got %g", val)
		}
		c.MagAlpha = val

	// Calibration
	case "CALIBRATION_SECONDS":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CALIBRATION_SECONDS %q: %w", value, err)
		}
		c.CalibrationSeconds = val

	// Servo
	case "SERVO_PIN":
		c.ServoPin = value

	// Parameter store
	case "PARAMS_DB_PATH":
		c.ParamsDBPath = value

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_DAEMON":
		c.MQTTClientIDDaemon = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_RAW":
		c.TopicRaw = value
	case "TOPIC_CALIBRATION":
		c.TopicCalibration = value
	case "TOPIC_HEADING":
		c.TopicHeading = value
	case "TOPIC_DECLINATION":
		c.TopicDeclination = value
	case "TOPIC_DECLINATION_SET":
		c.TopicDeclinationSet = value

	// Web server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// NMEA output
	case "NMEA_SERIAL_PORT":
		c.NMEASerialPort = value
	case "NMEA_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid NMEA_BAUD_RATE %q: %w", value, err)
		}
		c.NMEABaudRate = rate

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MagI2CBus == "" {
		return fmt.Errorf("MAG_I2C_BUS is required")
	}
	if c.MagIntPin == "" {
		return fmt.Errorf("MAG_INT_PIN is required")
	}
	if c.ParamsDBPath == "" {
		return fmt.Errorf("PARAMS_DB_PATH is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.NMEASerialPort != "" && c.NMEABaudRate == 0 {
		return fmt.Errorf("NMEA_BAUD_RATE is required when NMEA_SERIAL_PORT is set")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses sync.Once
// so it only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

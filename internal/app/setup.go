package app

import (
	"fmt"
	"log"
	"math"

	"github.com/otaviojr/truenorth/internal/config"
	"github.com/otaviojr/truenorth/internal/mag"
	"github.com/otaviojr/truenorth/internal/params"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// system bundles the device, its persisted parameters and the handles that
// need explicit teardown.
type system struct {
	cfg         *config.Config
	store       *params.SQLiteStore
	declination *params.Var[int]
	bounds      mag.Bounds
	dev         *mag.Dev
	bus         i2c.BusCloser
}

// newBoundVars creates the six calibration bounds at the representable
// float extremes, so the first calibration sample initializes all of them,
// and binds each to its own store entry.
func newBoundVars(store params.Store) (mag.Bounds, error) {
	maxX := params.New(-math.MaxFloat64)
	minX := params.New(math.MaxFloat64)
	maxY := params.New(-math.MaxFloat64)
	minY := params.New(math.MaxFloat64)
	maxZ := params.New(-math.MaxFloat64)
	minZ := params.New(math.MaxFloat64)

	vars := map[string]*params.Var[float64]{
		"max_x": maxX, "min_x": minX,
		"max_y": maxY, "min_y": minY,
		"max_z": maxZ, "min_z": minZ,
	}
	for name, v := range vars {
		if err := v.AttachStorage(store, name); err != nil {
			return mag.Bounds{}, err
		}
	}
	return mag.Bounds{
		MaxX: maxX, MinX: minX,
		MaxY: maxY, MinY: minY,
		MaxZ: maxZ, MinZ: minZ,
	}, nil
}

// setupSystem loads configuration, initializes the periph host, opens the
// parameter store and brings up the magnetometer.
func setupSystem(configPath string) (*system, error) {
	if err := config.InitGlobal(configPath); err != nil {
		return nil, fmt.Errorf("config init: %w", err)
	}
	cfg := config.Get()

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	store, err := params.OpenSQLite(cfg.ParamsDBPath)
	if err != nil {
		return nil, err
	}

	declination := params.New(0)
	if err := declination.AttachStorage(store, "declination"); err != nil {
		log.Printf("app: loading declination: %v", err)
	}

	bounds, err := newBoundVars(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	bus, err := i2creg.Open(cfg.MagI2CBus)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("i2c open %q: %w", cfg.MagI2CBus, err)
	}

	intPin := gpioreg.ByName(cfg.MagIntPin)
	if intPin == nil {
		bus.Close()
		store.Close()
		return nil, fmt.Errorf("interrupt pin %q not found", cfg.MagIntPin)
	}

	dev, err := mag.New(bus, intPin, mag.Opts{
		Addr:              cfg.MagI2CAddr,
		Gain:              mag.Gain(cfg.MagGain),
		ResolutionX:       mag.Resolution(cfg.MagResolutionX),
		ResolutionY:       mag.Resolution(cfg.MagResolutionY),
		ResolutionZ:       mag.Resolution(cfg.MagResolutionZ),
		Filter:            mag.Filter(cfg.MagFilter),
		Oversampling:      mag.Oversampling(cfg.MagOversampling),
		Alpha:             cfg.MagAlpha,
		WindowSize:        cfg.MagWindowSize,
		CalibrationWindow: cfg.MagCalibrationWindow,
		Bounds:            bounds,
	})
	if err != nil {
		bus.Close()
		store.Close()
		return nil, err
	}

	return &system{
		cfg:         cfg,
		store:       store,
		declination: declination,
		bounds:      bounds,
		dev:         dev,
		bus:         bus,
	}, nil
}

// close tears the system down in reverse bring-up order.
func (s *system) close() {
	s.dev.End()
	if err := s.bus.Close(); err != nil {
		log.Printf("app: closing i2c bus: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("app: closing parameter store: %v", err)
	}
}

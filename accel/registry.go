package accel

import (
	"sync"

	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xoffload", "accel")

// DriverLoader is interface for loading a driver by registered name
type DriverLoader func(cfg DeviceConfig) (Driver, error)

var (
	lockLoaders sync.RWMutex
	loaders     = make(map[string]DriverLoader)
)

// Register driver loader by name
func Register(name string, loader DriverLoader) error {
	lockLoaders.Lock()
	defer lockLoaders.Unlock()

	if _, ok := loaders[name]; ok {
		return errors.Errorf("already registered: %s", name)
	}

	loaders[name] = loader

	return nil
}

// Unregister driver loader by name
func Unregister(name string) (DriverLoader, error) {
	lockLoaders.Lock()
	defer lockLoaders.Unlock()

	if loader, ok := loaders[name]; ok {
		delete(loaders, name)
		return loader, nil
	}

	return nil, errors.Errorf("not registered: %s", name)
}

// Registered returns registered driver names
func Registered() []string {
	lockLoaders.Lock()
	defer lockLoaders.Unlock()

	list := []string{}
	for m := range loaders {
		list = append(list, m)
	}
	return list
}

// LoadDriver loads a single driver from a device configuration file
func LoadDriver(configLocation string) (Driver, error) {
	cfg, err := LoadDeviceConfig(configLocation)
	if err != nil {
		return nil, err
	}

	return LoadDriverWithConfig(cfg)
}

// LoadDriverWithConfig loads a single driver from a parsed device
// configuration
func LoadDriverWithConfig(cfg DeviceConfig) (Driver, error) {
	lockLoaders.RLock()
	loader, ok := loaders[cfg.Driver()]
	lockLoaders.RUnlock()
	if !ok {
		return nil, errors.Errorf("driver not registered: %s", cfg.Driver())
	}

	drv, err := loader(cfg)
	if err != nil {
		return nil, err
	}

	return drv, nil
}

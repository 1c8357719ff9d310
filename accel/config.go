package accel

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DeviceConfig holds accelerator device configuration.
//
// A device is identified by its registered driver name. Supply this to
// LoadDriverWithConfig, or alternatively use LoadDriver with a file
// location.
type DeviceConfig interface {
	// Driver is the registered driver name
	Driver() string

	// Model name of the device
	Model() string

	// Path to the driver library or device node
	Path() string

	// NUMANode is the preferred NUMA node, -1 for no preference
	NUMANode() int

	// EnvManaged reports whether context allocation is delegated to the
	// driver's environment configuration
	EnvManaged() bool

	// SlotCapacity is the task-slot pool size, 0 for the default
	SlotCapacity() int

	// Pin is a secret to access the device.
	// If it's prefixed with `file:`, then it will be loaded from the file.
	Pin() string

	// Comma separated key=value pair of attributes(e.g. "TokenLabel=x,Contexts=4")
	Attributes() string
}

type deviceConfig struct {
	Drv   string `json:"Driver"       yaml:"driver"`
	Mod   string `json:"Model"        yaml:"model"`
	Dir   string `json:"Path"         yaml:"path"`
	Numa  int    `json:"NUMANode"     yaml:"numa_node"`
	Env   bool   `json:"EnvManaged"   yaml:"env_managed"`
	Slots int    `json:"SlotCapacity" yaml:"slot_capacity"`
	Pwd   string `json:"Pin"          yaml:"pin"`
	Attrs string `json:"Attributes"   yaml:"attributes"`
}

// Driver is the registered driver name
func (c *deviceConfig) Driver() string {
	return c.Drv
}

// Model name of the device
func (c *deviceConfig) Model() string {
	return c.Mod
}

// Path to the driver library or device node
func (c *deviceConfig) Path() string {
	return c.Dir
}

// NUMANode is the preferred NUMA node
func (c *deviceConfig) NUMANode() int {
	return c.Numa
}

// EnvManaged reports whether context allocation is delegated to the driver
func (c *deviceConfig) EnvManaged() bool {
	return c.Env
}

// SlotCapacity is the task-slot pool size
func (c *deviceConfig) SlotCapacity() int {
	return c.Slots
}

// Pin is a secret to access the device.
// If it's prefixed with `file:`, then it will be loaded from the file.
func (c *deviceConfig) Pin() string {
	return c.Pwd
}

// Attributes is list of additional key=value pairs
func (c *deviceConfig) Attributes() string {
	return c.Attrs
}

// NewDeviceConfig returns an in-memory device configuration, mostly
// useful for tests and embedded stubs.
func NewDeviceConfig(driver string) DeviceConfig {
	return &deviceConfig{
		Drv:  driver,
		Numa: -1,
	}
}

// LoadDeviceConfig loads accelerator device configuration
func LoadDeviceConfig(filename string) (DeviceConfig, error) {
	cfr, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer cfr.Close()
	cfg := &deviceConfig{Numa: -1}

	if strings.HasSuffix(filename, ".json") {
		err = json.NewDecoder(cfr).Decode(cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to decode file: %s", filename)
		}
	} else {
		err = yaml.NewDecoder(cfr).Decode(cfg)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to decode file: %s", filename)
		}
	}

	pin := cfg.Pin()
	if strings.HasPrefix(pin, "file:") {
		pinfile := pin[5:]

		// try to resolve pin file
		cwd, _ := os.Getwd()
		folders := []string{
			"",
			cwd,
			filepath.Dir(filename),
		}

		for _, folder := range folders {
			if resolved, err := resolve(pinfile, folder); err == nil {
				pinfile = resolved
				break
			}
			logger.Warningf("reason=resolve, pinfile=%q, basedir=%q", pinfile, folder)
		}

		pb, err := os.ReadFile(pinfile)
		if err != nil {
			return nil, errors.WithMessagef(err, "unable to load Pin for configuration: %s", filename)
		}
		cfg.Pwd = string(pb)
	}

	return cfg, nil
}

// ParseAttributes splits the comma separated key=value attribute list.
func ParseAttributes(attributes string) map[string]string {
	res := make(map[string]string)
	if attributes == "" {
		return res
	}

	for _, v := range strings.Split(attributes, ",") {
		kv := strings.SplitN(v, "=", 2)
		if len(kv) != 2 {
			continue
		}
		res[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}

	return res
}

// resolve returns absolute file name relative to baseDir,
// or NewNotFound error.
func resolve(file string, baseDir string) (resolved string, err error) {
	if file == "" {
		return file, nil
	}
	if filepath.IsAbs(file) {
		resolved = file
	} else if baseDir != "" {
		resolved = filepath.Join(baseDir, file)
	}
	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		return resolved, errors.WithMessagef(err, "not found: %v", resolved)
	}
	return resolved, nil
}

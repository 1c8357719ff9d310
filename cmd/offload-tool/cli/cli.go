package cli

import (
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/effective-security/x/ctl"
	"github.com/effective-security/xlog"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/accelpkcs11"
	"github.com/effective-security/xoffload/rsaeng"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xoffload", "cli")

// Cli provides CLI context to run commands
type Cli struct {
	Cfg      string `help:"Location of device config file" type:"path"`
	Debug    bool   `short:"D" help:"Enable debug mode"`
	LogLevel string `short:"l" help:"Set the logging level (debug|info|warn|error)" default:"error"`

	// Stdin is the source to read from, typically set to os.Stdin
	stdin io.Reader
	// Output is the destination for all output from the command, typically set to os.Stdout
	output io.Writer
	// ErrOutput is the destinaton for errors.
	// If not set, errors will be written to os.StdError
	errOutput io.Writer

	ctx    context.Context
	engine *rsaeng.Engine
}

// Context for requests
func (c *Cli) Context() context.Context {
	if c.ctx == nil {
		c.ctx = context.Background()
	}
	return c.ctx
}

// Reader is the source to read from, typically set to os.Stdin
func (c *Cli) Reader() io.Reader {
	if c.stdin != nil {
		return c.stdin
	}
	return os.Stdin
}

// WithReader allows to specify a custom reader
func (c *Cli) WithReader(reader io.Reader) *Cli {
	c.stdin = reader
	return c
}

// Writer returns a writer for control output
func (c *Cli) Writer() io.Writer {
	if c.output != nil {
		return c.output
	}
	return os.Stdout
}

// WithWriter allows to specify a custom writer
func (c *Cli) WithWriter(out io.Writer) *Cli {
	c.output = out
	return c
}

// ErrWriter returns a writer for control output
func (c *Cli) ErrWriter() io.Writer {
	if c.errOutput != nil {
		return c.errOutput
	}
	return os.Stderr
}

// WithErrWriter allows to specify a custom error writer
func (c *Cli) WithErrWriter(out io.Writer) *Cli {
	c.errOutput = out
	return c
}

// AfterApply hook loads config
func (c *Cli) AfterApply(app *kong.Kong, vars kong.Vars) error {
	if c.Debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		val := strings.TrimLeft(c.LogLevel, "=")
		l, err := xlog.ParseLevel(strings.ToUpper(val))
		if err != nil {
			return errors.WithStack(err)
		}
		xlog.SetGlobalLogLevel(l)
	}

	return nil
}

// WriteJSON prints response to out
func (c *Cli) WriteJSON(value interface{}) error {
	return ctl.WriteJSON(c.Writer(), value)
}

// WithEngine allows to specify a custom engine
func (c *Cli) WithEngine(eng *rsaeng.Engine) *Cli {
	c.engine = eng
	return c
}

// Engine loads the offload engine. Without a device config all
// operations run in software.
func (c *Cli) Engine() *rsaeng.Engine {
	if c.engine != nil {
		return c.engine
	}

	accelpkcs11.Register()

	if c.Cfg == "" {
		logger.Infof("reason=no_cfg, dispatch=software")
		c.engine = rsaeng.New(accel.NewDeviceConfig(""))
		return c.engine
	}
	cfg, err := accel.LoadDeviceConfig(c.Cfg)
	if err != nil {
		logger.Panicf("unable to load device config: [%v]", err)
	}
	c.engine = rsaeng.New(cfg)

	return c.engine
}

package accelpkcs11

import (
	"strconv"
	"sync"

	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
	"github.com/pkg/errors"

	"github.com/effective-security/xoffload/accel"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/xoffload", "accelpkcs11")

// DriverName is the registry name of the PKCS#11 driver.
const DriverName = "PKCS11"

var registerOnce sync.Once

// Register installs the PKCS#11 driver loader in the accel registry.
func Register() {
	registerOnce.Do(func() {
		accel.Register(DriverName, func(cfg accel.DeviceConfig) (accel.Driver, error) {
			return Open(cfg)
		})
	})
}

// P11Lib is a sync-only accel.Driver over a PKCS#11 module.
type P11Lib struct {
	Ctx  *pkcs11.Ctx
	slot uint
	numa int

	mu       sync.Mutex
	nextSess uint64
	sessions map[accel.SessionHandle]*tokenSession
	closed   bool
}

type tokenSession struct {
	sh    pkcs11.SessionHandle
	setup accel.SessionSetup
}

var _ accel.Driver = (*P11Lib)(nil)

// Open loads the module named by the configuration Path, picks the
// token slot and logs in when a pin is configured. The slot can be
// forced with a "slot" attribute.
func Open(cfg accel.DeviceConfig) (*P11Lib, error) {
	if cfg.Path() == "" {
		return nil, errors.WithMessage(accel.ErrNoDevice, "module path not configured")
	}
	ctx := pkcs11.New(cfg.Path())
	if ctx == nil {
		return nil, errors.WithMessagef(accel.ErrNoDevice, "load module: %q", cfg.Path())
	}
	if err := ctx.Initialize(); err != nil {
		ctx.Destroy()
		return nil, errors.WithMessagef(err, "initialize module: %q", cfg.Path())
	}

	lib := &P11Lib{
		Ctx:      ctx,
		numa:     cfg.NUMANode(),
		sessions: map[accel.SessionHandle]*tokenSession{},
	}
	if err := lib.selectSlot(cfg); err != nil {
		_ = ctx.Finalize()
		ctx.Destroy()
		return nil, err
	}
	if cfg.Pin() != "" {
		// Login state is per token; perform it on a bootstrap session.
		sh, err := ctx.OpenSession(lib.slot, pkcs11.CKF_SERIAL_SESSION)
		if err != nil {
			_ = ctx.Finalize()
			ctx.Destroy()
			return nil, errors.WithMessagef(err, "OpenSession on slot %d", lib.slot)
		}
		err = ctx.Login(sh, pkcs11.CKU_USER, cfg.Pin())
		if err != nil && !errors.Is(err, pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN)) {
			_ = ctx.CloseSession(sh)
			_ = ctx.Finalize()
			ctx.Destroy()
			return nil, errors.WithMessagef(err, "Login on slot %d", lib.slot)
		}
		_ = ctx.CloseSession(sh)
	}

	logger.Infof("module=%q, slot=0x%X", cfg.Path(), lib.slot)
	return lib, nil
}

func (p11lib *P11Lib) selectSlot(cfg accel.DeviceConfig) error {
	attrs := accel.ParseAttributes(cfg.Attributes())
	if v, ok := attrs["slot"]; ok {
		id, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return errors.WithMessagef(err, "invalid slot attribute: %q", v)
		}
		p11lib.slot = uint(id)
		return nil
	}

	slots, err := p11lib.Ctx.GetSlotList(true)
	if err != nil {
		return errors.WithStack(err)
	}
	if len(slots) == 0 {
		return errors.WithMessage(accel.ErrNoDevice, "no token present")
	}
	p11lib.slot = slots[0]
	return nil
}

// Name implements accel.Driver.
func (p11lib *P11Lib) Name() string {
	return DriverName
}

// NUMANode implements accel.Driver.
func (p11lib *P11Lib) NUMANode() int {
	return p11lib.numa
}

// EnvManaged implements accel.Driver.
func (p11lib *P11Lib) EnvManaged() bool {
	return false
}

// RequestContext implements accel.Driver. Tokens cannot deliver
// completions, so asynchronous contexts are refused.
func (p11lib *P11Lib) RequestContext(mode accel.ContextMode) (accel.ContextHandle, error) {
	if mode == accel.ContextAsync {
		return 0, errors.WithStack(accel.ErrNotSupported)
	}
	return accel.ContextHandle(p11lib.slot + 1), nil
}

// ReleaseContext implements accel.Driver.
func (p11lib *P11Lib) ReleaseContext(accel.ContextHandle) error {
	return nil
}

// OpenSession implements accel.Driver.
func (p11lib *P11Lib) OpenSession(setup accel.SessionSetup) (accel.SessionHandle, error) {
	if setup.Category != accel.CategoryRSA {
		return 0, errors.WithStack(accel.ErrNotSupported)
	}
	sh, err := p11lib.Ctx.OpenSession(p11lib.slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return 0, errors.WithMessagef(err, "OpenSession on slot %d", p11lib.slot)
	}

	p11lib.mu.Lock()
	defer p11lib.mu.Unlock()
	if p11lib.closed {
		_ = p11lib.Ctx.CloseSession(sh)
		return 0, errors.New("driver closed")
	}
	p11lib.nextSess++
	h := accel.SessionHandle(p11lib.nextSess)
	p11lib.sessions[h] = &tokenSession{sh: sh, setup: setup}
	return h, nil
}

// CloseSession implements accel.Driver.
func (p11lib *P11Lib) CloseSession(h accel.SessionHandle) error {
	p11lib.mu.Lock()
	ts, ok := p11lib.sessions[h]
	delete(p11lib.sessions, h)
	p11lib.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown session: %d", h)
	}
	return errors.WithStack(p11lib.Ctx.CloseSession(ts.sh))
}

// SubmitSync implements accel.Driver.
func (p11lib *P11Lib) SubmitSync(h accel.SessionHandle, req *accel.Request) error {
	p11lib.mu.Lock()
	ts, ok := p11lib.sessions[h]
	p11lib.mu.Unlock()
	if !ok {
		return errors.Errorf("unknown session: %d", h)
	}
	return p11lib.execute(ts, req)
}

// SubmitAsync implements accel.Driver.
func (p11lib *P11Lib) SubmitAsync(accel.SessionHandle, *accel.Request) error {
	return errors.WithStack(accel.ErrNotSupported)
}

// Poll implements accel.Driver.
func (p11lib *P11Lib) Poll(accel.Category, int) (int, error) {
	return 0, errors.WithStack(accel.ErrNotSupported)
}

// Close implements accel.Driver.
func (p11lib *P11Lib) Close() error {
	p11lib.mu.Lock()
	defer p11lib.mu.Unlock()
	if p11lib.closed {
		return nil
	}
	p11lib.closed = true
	for h, ts := range p11lib.sessions {
		_ = p11lib.Ctx.CloseSession(ts.sh)
		delete(p11lib.sessions, h)
	}
	err := p11lib.Ctx.Finalize()
	p11lib.Ctx.Destroy()
	return errors.WithStack(err)
}

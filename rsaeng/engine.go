package rsaeng

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"math/big"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/effective-security/xoffload/accel"
	"github.com/effective-security/xoffload/async"
	"github.com/effective-security/xoffload/metricskey"
	"github.com/effective-security/xoffload/rsapad"
)

// Padding selects the encoding scheme applied around the raw modular
// exponentiation.
type Padding int

const (
	// PaddingNone performs the raw operation; the input must already be
	// a full modulus-length block.
	PaddingNone Padding = iota

	// PaddingPKCS1 is PKCS#1 v1.5: block type 1 for private-key
	// operations, block type 2 for encryption.
	PaddingPKCS1

	// PaddingOAEP is EME-OAEP with an empty label.
	PaddingOAEP

	// PaddingX931 is the ANSI X9.31 signature encoding.
	PaddingX931
)

// ErrInvalidInput is returned for malformed arguments that software
// would reject as well, without consulting the device.
var ErrInvalidInput = errors.New("rsaeng: invalid input")

// Fallback computes an operation on the host CPU when offload is
// declined or fails. Results must be indistinguishable from the
// hardware path.
type Fallback interface {
	PublicEncrypt(random io.Reader, pub *rsa.PublicKey, msg []byte, padding Padding) ([]byte, error)
	PrivateDecrypt(priv *rsa.PrivateKey, ciphertext []byte, padding Padding) ([]byte, error)
	Sign(priv *rsa.PrivateKey, msg []byte, padding Padding) ([]byte, error)
	Verify(pub *rsa.PublicKey, sig []byte, padding Padding) ([]byte, error)
	GenerateKey(random io.Reader, bits int) (*rsa.PrivateKey, error)
}

// Engine dispatches RSA operations to a crypto accelerator, falling
// back to software whenever the device cannot serve a request.
// An Engine is safe for concurrent use.
type Engine struct {
	res      *resources
	open     func() (accel.Driver, error)
	slots    int
	oaepHash crypto.Hash
	soft     Fallback
	rand     io.Reader
}

// Option customizes an Engine.
type Option func(*Engine)

// WithFallback overrides the software implementation invoked when
// offload is declined or fails.
func WithFallback(f Fallback) Option {
	return func(e *Engine) {
		e.soft = f
	}
}

// WithRandom overrides the source of padding and key generation
// randomness.
func WithRandom(random io.Reader) Option {
	return func(e *Engine) {
		e.rand = random
	}
}

// WithOAEPHash overrides the hash used by OAEP padding.
func WithOAEPHash(h crypto.Hash) Option {
	return func(e *Engine) {
		e.oaepHash = h
	}
}

// New creates an Engine that loads its device driver from the
// configuration on first use. Driver load failures are not surfaced
// here: they permanently route the Engine to software.
func New(cfg accel.DeviceConfig, ops ...Option) *Engine {
	return newEngine(func() (accel.Driver, error) {
		return accel.LoadDriverWithConfig(cfg)
	}, cfg.SlotCapacity(), ops...)
}

// NewWithDriver creates an Engine over an already-constructed driver.
// The Engine takes ownership and closes the driver on Close.
func NewWithDriver(drv accel.Driver, slotCapacity int, ops ...Option) *Engine {
	return newEngine(func() (accel.Driver, error) {
		return drv, nil
	}, slotCapacity, ops...)
}

func newEngine(open func() (accel.Driver, error), slotCapacity int, ops ...Option) *Engine {
	e := &Engine{
		res:      &resources{},
		open:     open,
		slots:    slotCapacity,
		oaepHash: crypto.SHA1,
		rand:     rand.Reader,
	}
	for _, op := range ops {
		op(e)
	}
	if e.soft == nil {
		e.soft = SoftFallback{OAEPHash: e.oaepHash}
	}
	return e
}

// Close releases the device sessions, contexts and the poller. The
// Engine remains usable afterwards: the next operation reinitializes.
func (e *Engine) Close() error {
	e.res.uninit()
	return nil
}

// ensureInit lazily binds the Engine to the device for the current
// process, re-binding after a fork.
func (e *Engine) ensureInit() error {
	return e.res.ensureInit(e.open, e.slots)
}

// PublicEncrypt encrypts msg with the public key. PaddingPKCS1 and
// PaddingOAEP wrap msg before the operation; PaddingNone requires msg
// to be exactly one modulus-length block.
func (e *Engine) PublicEncrypt(ctx context.Context, pub *rsa.PublicKey, msg []byte, padding Padding) ([]byte, error) {
	if pub == nil || pub.N == nil || pub.N.Sign() <= 0 || len(msg) == 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(),
		accel.CategoryRSA.String(), accel.OpEncrypt.String())

	soft := func(reason string) ([]byte, error) {
		e.noteFallback(reason)
		return e.soft.PublicEncrypt(e.rand, pub, msg, padding)
	}

	k := keyBytes(pub.N)
	if CheckModulusBits(pub.N.BitLen()) != HardwareOK {
		return soft("size")
	}
	if err := e.ensureInit(); err != nil {
		return soft("init")
	}
	em, err := padForEncrypt(e.rand, e.oaepHash, k, msg, padding)
	if err != nil {
		return soft("padding")
	}
	s, err := newSession(e.res.driver, e.res.numa, pub.N.BitLen(), false)
	if err != nil {
		return soft("session")
	}
	defer s.close()
	if err := s.fillPublic(pub, accel.OpEncrypt, em, make([]byte, k)); err != nil {
		return soft("key")
	}
	if err := e.doCrypto(ctx, s); err != nil {
		logger.Warningf("op=encrypt, reason=submit, err=[%v]", err)
		return soft("submit")
	}
	if s.req.Status != accel.StatusOK {
		return soft("status")
	}
	return canonical(k, s.req.Dst), nil
}

// PrivateDecrypt decrypts ciphertext with the private key, removing the
// padding layer afterwards.
func (e *Engine) PrivateDecrypt(ctx context.Context, priv *rsa.PrivateKey, ciphertext []byte, padding Padding) ([]byte, error) {
	if priv == nil || priv.N == nil || priv.D == nil || len(ciphertext) == 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	k := keyBytes(priv.N)
	if len(ciphertext) > k {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(),
		accel.CategoryRSA.String(), accel.OpDecrypt.String())

	soft := func(reason string) ([]byte, error) {
		e.noteFallback(reason)
		return e.soft.PrivateDecrypt(priv, ciphertext, padding)
	}

	if CheckModulusBits(priv.N.BitLen()) != HardwareOK {
		return soft("size")
	}
	if err := e.ensureInit(); err != nil {
		return soft("init")
	}
	crt := hasCRT(priv)
	s, err := newSession(e.res.driver, e.res.numa, priv.N.BitLen(), crt)
	if err != nil {
		return soft("session")
	}
	defer s.close()
	src := leftPad(k, ciphertext)
	if err := s.fillPrivate(priv, accel.OpDecrypt, src, make([]byte, k)); err != nil {
		return soft("key")
	}
	if err := e.doCrypto(ctx, s); err != nil {
		logger.Warningf("op=decrypt, reason=submit, err=[%v]", err)
		return soft("submit")
	}
	if s.req.Status != accel.StatusOK {
		return soft("status")
	}
	return unpadAfterDecrypt(e.oaepHash, k, canonical(k, s.req.Dst), padding)
}

// Sign produces a signature over msg with the private key. For
// PaddingPKCS1 msg must already be a DigestInfo encoding; PaddingX931
// applies the X9.31 framing and canonical minimum selection.
func (e *Engine) Sign(ctx context.Context, priv *rsa.PrivateKey, msg []byte, padding Padding) ([]byte, error) {
	if priv == nil || priv.N == nil || priv.D == nil || len(msg) == 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(),
		accel.CategoryRSA.String(), accel.OpSign.String())

	soft := func(reason string) ([]byte, error) {
		e.noteFallback(reason)
		return e.soft.Sign(priv, msg, padding)
	}

	k := keyBytes(priv.N)
	if CheckModulusBits(priv.N.BitLen()) != HardwareOK {
		return soft("size")
	}
	if err := e.ensureInit(); err != nil {
		return soft("init")
	}
	em, err := padForSign(k, msg, padding)
	if err != nil {
		return soft("padding")
	}
	crt := hasCRT(priv)
	s, err := newSession(e.res.driver, e.res.numa, priv.N.BitLen(), crt)
	if err != nil {
		return soft("session")
	}
	defer s.close()
	if err := s.fillPrivate(priv, accel.OpSign, em, make([]byte, k)); err != nil {
		return soft("key")
	}
	if err := e.doCrypto(ctx, s); err != nil {
		logger.Warningf("op=sign, reason=submit, err=[%v]", err)
		return soft("submit")
	}
	if s.req.Status != accel.StatusOK {
		return soft("status")
	}
	ret := new(big.Int).SetBytes(s.req.Dst)
	if padding == PaddingX931 {
		ret = rsapad.X931SignResult(priv.N, ret)
	}
	out := make([]byte, k)
	ret.FillBytes(out)
	return out, nil
}

// Verify recovers the message from sig with the public key and strips
// the signature padding, returning the embedded payload.
func (e *Engine) Verify(ctx context.Context, pub *rsa.PublicKey, sig []byte, padding Padding) ([]byte, error) {
	if pub == nil || pub.N == nil || pub.N.Sign() <= 0 || len(sig) == 0 {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	k := keyBytes(pub.N)
	if len(sig) > k {
		return nil, errors.WithStack(ErrInvalidInput)
	}
	defer metricskey.PerfOffloadOperation.MeasureSince(time.Now(),
		accel.CategoryRSA.String(), accel.OpVerify.String())

	soft := func(reason string) ([]byte, error) {
		e.noteFallback(reason)
		return e.soft.Verify(pub, sig, padding)
	}

	if CheckModulusBits(pub.N.BitLen()) != HardwareOK {
		return soft("size")
	}
	if err := e.ensureInit(); err != nil {
		return soft("init")
	}
	s, err := newSession(e.res.driver, e.res.numa, pub.N.BitLen(), false)
	if err != nil {
		return soft("session")
	}
	defer s.close()
	src := leftPad(k, sig)
	if err := s.fillPublic(pub, accel.OpVerify, src, make([]byte, k)); err != nil {
		return soft("key")
	}
	if err := e.doCrypto(ctx, s); err != nil {
		logger.Warningf("op=verify, reason=submit, err=[%v]", err)
		return soft("submit")
	}
	if s.req.Status != accel.StatusOK {
		return soft("status")
	}
	ret := new(big.Int).SetBytes(s.req.Dst)
	if padding == PaddingX931 {
		ret = rsapad.X931VerifyResult(pub.N, ret)
	}
	em := make([]byte, k)
	ret.FillBytes(em)
	return unpadAfterVerify(em, padding)
}

func (e *Engine) noteFallback(reason string) {
	metricskey.StatsOffloadFallback.IncrCounter(1, accel.CategoryRSA.String(), reason)
	logger.Debugf("reason=%s, dispatch=software", reason)
}

// ExecutionMode reports how the current process dispatches requests.
func (e *Engine) ExecutionMode() async.ExecutionMode {
	if e.ensureInit() != nil {
		return async.Blocking
	}
	return e.res.mode()
}

func keyBytes(n *big.Int) int {
	return (n.BitLen() + 7) / 8
}

// canonical reduces the device output to the canonical big-endian,
// fixed-width representation.
func canonical(k int, b []byte) []byte {
	out := make([]byte, k)
	new(big.Int).SetBytes(b).FillBytes(out)
	return out
}

func leftPad(k int, b []byte) []byte {
	out := make([]byte, k)
	copy(out[k-len(b):], b)
	return out
}

func hasCRT(priv *rsa.PrivateKey) bool {
	return len(priv.Primes) >= 2 &&
		priv.Primes[0] != nil && priv.Primes[1] != nil
}

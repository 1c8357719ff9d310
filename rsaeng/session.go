package rsaeng

import (
	"crypto/rsa"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"

	"github.com/effective-security/xoffload/accel"
)

// session binds one hardware session to one crypto call. Sessions are
// single-use: opened at dispatch entry and closed on every exit path.
type session struct {
	drv     accel.Driver
	h       accel.SessionHandle
	setup   accel.SessionSetup
	keySize int
	req     accel.Request

	keyReady bool

	// abandoned transfers ownership of the teardown to the late
	// completion callback after the waiter hit its deadline.
	abandoned atomic.Bool
	closeOnce sync.Once
}

func newSession(drv accel.Driver, numa, bits int, crt bool) (*session, error) {
	setup := accel.SessionSetup{
		Category: accel.CategoryRSA,
		KeyBits:  bits,
		NUMANode: numa,
		CRT:      crt,
	}
	h, err := drv.OpenSession(setup)
	if err != nil {
		return nil, errors.WithMessagef(err, "open session: %d bits", bits)
	}
	s := &session{
		drv:     drv,
		h:       h,
		setup:   setup,
		keySize: setup.BlockSize(),
	}
	s.req.Category = accel.CategoryRSA
	return s, nil
}

// fillPublic installs the public key material and the buffer pair for a
// public-key operation.
func (s *session) fillPublic(pub *rsa.PublicKey, op accel.OpType, src, dst []byte) error {
	if s.keyReady {
		return errors.New("session key already installed")
	}
	key, err := accel.MarshalRSAPublicKey(s.keySize, pub)
	if err != nil {
		return err
	}
	s.req.Op = op
	s.req.Key = key
	s.req.Src = src
	s.req.Dst = dst
	s.keyReady = true
	return nil
}

// fillPrivate installs the private key material, in CRT form when the
// session was opened for it.
func (s *session) fillPrivate(priv *rsa.PrivateKey, op accel.OpType, src, dst []byte) error {
	if s.keyReady {
		return errors.New("session key already installed")
	}
	var key []byte
	var err error
	if s.setup.CRT {
		key, err = accel.MarshalRSACRTKey(s.keySize, priv)
	} else {
		key, err = accel.MarshalRSAPrivateKey(s.keySize, priv)
	}
	if err != nil {
		return err
	}
	s.req.Op = op
	s.req.Key = key
	s.req.Src = src
	s.req.Dst = dst
	s.keyReady = true
	return nil
}

// fillKeyGen installs the key generation input block and an output
// buffer sized for the device.
func (s *session) fillKeyGen(in []byte) error {
	if s.keyReady {
		return errors.New("session key already installed")
	}
	s.req.Op = accel.OpKeyGen
	s.req.Src = in
	s.req.Dst = make([]byte, accel.RSAKeyGenOutSize(s.keySize))
	s.keyReady = true
	return nil
}

// close releases the hardware session unless it was abandoned, in which
// case the late completion callback owns the teardown.
func (s *session) close() {
	if s.abandoned.Load() {
		return
	}
	s.reallyClose()
}

func (s *session) reallyClose() {
	s.closeOnce.Do(func() {
		if err := s.drv.CloseSession(s.h); err != nil {
			logger.Warningf("reason=close_session, bits=%d, err=[%v]", s.setup.KeyBits, err)
		}
	})
}

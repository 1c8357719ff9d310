package accel

// Category identifies a hardware task category. Each category has its
// own completion poller and task-slot accounting.
type Category int

// Supported task categories.
const (
	CategoryCipher Category = iota
	CategoryDigest
	CategoryRSA
	CategoryDH
	CategoryECC
)

// String returns the category name used in logs and metric tags.
func (c Category) String() string {
	switch c {
	case CategoryCipher:
		return "cipher"
	case CategoryDigest:
		return "digest"
	case CategoryRSA:
		return "rsa"
	case CategoryDH:
		return "dh"
	case CategoryECC:
		return "ecc"
	}
	return "unknown"
}

// OpType identifies the operation subtype within a category.
type OpType int

// RSA operation subtypes.
const (
	OpInvalid OpType = iota
	OpSign
	OpVerify
	OpEncrypt
	OpDecrypt
	OpKeyGen
)

// String returns the operation name used in logs and metric tags.
func (o OpType) String() string {
	switch o {
	case OpSign:
		return "sign"
	case OpVerify:
		return "verify"
	case OpEncrypt:
		return "encrypt"
	case OpDecrypt:
		return "decrypt"
	case OpKeyGen:
		return "keygen"
	}
	return "invalid"
}

// Request status codes. The driver writes Status exactly once, before
// the completion callback fires.
const (
	// StatusOK indicates the request completed successfully.
	StatusOK = 0
	// StatusPending is set by the engine before submission; any request
	// observed with this status has not completed.
	StatusPending = -1
)

// Request is the payload submitted to hardware. Src and Dst must be
// sized to the session's key-size-derived block length before
// submission.
type Request struct {
	Category Category
	Op       OpType

	Src []byte
	Dst []byte

	// Key is the marshalled key-material block for the operation, laid
	// out per the category's wire format (see rsakey.go for RSA).
	Key []byte

	// Status is driver-defined: 0 means success, negative means error.
	Status int

	// Done is invoked exactly once per completed asynchronous request,
	// from the poller goroutine. It must only touch state safe to
	// mutate cross-goroutine.
	Done func(*Request) `copier:"-"`
}

// SessionHandle is an opaque, single-use binding to an accelerator
// execution context. Zero is never a valid handle.
type SessionHandle uint64

// ContextHandle identifies one low-level hardware context allocated in
// explicit-context mode. Zero is never a valid handle.
type ContextHandle uint64

// ContextMode selects synchronous or asynchronous submission for a
// hardware context.
type ContextMode int

// Context modes for explicit-context configurations.
const (
	ContextSync ContextMode = iota
	ContextAsync
)

// SessionSetup carries the parameters to size and place a session.
type SessionSetup struct {
	Category Category
	// KeyBits is the modulus length; the session's request block length
	// is KeyBits/8.
	KeyBits int
	// NUMANode is the resource affinity hint, -1 for no preference.
	NUMANode int
	// CRT requests the Chinese Remainder Theorem private-key form.
	CRT bool
}

// BlockSize returns the fixed request block length for the session.
func (s *SessionSetup) BlockSize() int {
	return s.KeyBits >> 3
}

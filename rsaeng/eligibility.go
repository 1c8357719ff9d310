package rsaeng

// MinModulusBits is the absolute hardware minimum; anything below runs
// in software.
const MinModulusBits = 512

// Eligibility classifies an operand size against the hardware's
// supported domain.
type Eligibility int

// Eligibility outcomes.
const (
	// HardwareOK means the size is on the accelerator's allow-list.
	HardwareOK Eligibility = iota
	// TooSmallUseSoftware means the size is below the hardware minimum.
	TooSmallUseSoftware
	// UnsupportedUseSoftware means the size is not on the allow-list.
	UnsupportedUseSoftware
)

// hwModulusBits is the fixed allow-list of accelerator-supported
// modulus lengths.
var hwModulusBits = map[int]bool{
	1024: true,
	2048: true,
	3072: true,
	4096: true,
}

// CheckModulusBits is the eligibility predicate applied before any
// shared hardware resource is touched.
func CheckModulusBits(bits int) Eligibility {
	if bits < MinModulusBits {
		return TooSmallUseSoftware
	}
	if hwModulusBits[bits] {
		return HardwareOK
	}
	return UnsupportedUseSoftware
}

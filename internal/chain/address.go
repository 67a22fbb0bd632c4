package chain

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ValidateAddress rejects malformed addresses before any I/O. A valid
// address is base58 for exactly 32 bytes.
func ValidateAddress(addr string) error {
	if len(addr) < 32 || len(addr) > 44 {
		return fmt.Errorf("%w: %q has invalid length", ErrInvalidToken, addr)
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return fmt.Errorf("%w: %q is not base58", ErrInvalidToken, addr)
	}
	if len(raw) != 32 {
		return fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidToken, addr, len(raw))
	}
	return nil
}

// IsOnCurve reports whether addr is a valid ed25519 point. Wallet keys are
// on-curve; program derived addresses are not. Used to tell user wallets
// from program accounts during buyer enrichment.
func IsOnCurve(addr string) bool {
	raw, err := base58.Decode(addr)
	if err != nil || len(raw) != 32 {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/noteforge/core/internal/common"
	"github.com/noteforge/core/internal/shared"
	"golang.org/x/crypto/pbkdf2"
)

// Version tags the protocol variant in use. Each has its own key
// derivation and envelope rules; see envelope.go.
type Version string

const (
	V000 Version = "000" // plaintext sentinel, not a real protocol version
	V001 Version = "001"
	V002 Version = "002"
	V003 Version = "003"
)

// AuthParams are the key-derivation parameters needed to reconstruct a
// user's keys: enough to recompute pw/mk/ak from a candidate password.
type AuthParams struct {
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	PwCost     int    `json:"pw_cost"`
	PwNonce    string `json:"pw_nonce,omitempty"`
	PwSalt     string `json:"pw_salt,omitempty"`
}

// minCost is the minimum accepted pw_cost per protocol version. Login
// below this threshold is refused outright (§4.1).
func minCost(version string) (int, error) {
	switch Version(version) {
	case V003:
		return 110000, nil
	case V001, V002:
		return 3000, nil
	default:
		return 0, fmt.Errorf("%w: %q", common.ErrProtocolTooNew, version)
	}
}

// Keys is the derived 768-bit key hierarchy, split into three 256-bit
// keys: pw (sent to the server as the password verifier), mk (master
// encryption key, wraps per-item keys), ak (master authentication key).
type Keys struct {
	Pw []byte
	Mk []byte
	Ak []byte
}

// Wipe zeros all three key buffers. Callers should defer this once keys
// are no longer needed.
func (k *Keys) Wipe() {
	if k == nil {
		return
	}
	shared.WipeByteArray(k.Pw)
	shared.WipeByteArray(k.Mk)
	shared.WipeByteArray(k.Ak)
}

// NewPwNonce generates a fresh 128-bit pw_nonce for a new account's
// AuthParams (§4.1): a random value, not a password-derived one, minted
// once at registration and stored alongside the account thereafter.
func NewPwNonce() (string, error) {
	return shared.MakeRandHexString(16)
}

// DerivePasswordSalt computes the "003" pw_salt: SHA-256(identifier : "SF"
// : version : pw_cost : pw_nonce), hex-encoded. Versions "001"/"002" are
// supplied a salt by the server instead and never call this.
func DerivePasswordSalt(identifier, version string, pwCost int, pwNonce string) string {
	material := fmt.Sprintf("%s:SF:%s:%d:%s", identifier, version, pwCost, pwNonce)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// DeriveKeys runs PBKDF2-HMAC-SHA512 over the password and returns the
// pw/mk/ak triad. Refuses to proceed if pw_cost is below the version's
// minimum.
func DeriveKeys(password string, p AuthParams) (*Keys, error) {
	min, err := minCost(p.Version)
	if err != nil {
		return nil, err
	}
	if p.PwCost < min {
		return nil, fmt.Errorf("%w: version %s requires >= %d, got %d", common.ErrKeyCostTooLow, p.Version, min, p.PwCost)
	}

	var salt string
	switch Version(p.Version) {
	case V003:
		salt = DerivePasswordSalt(p.Identifier, p.Version, p.PwCost, p.PwNonce)
	case V001, V002:
		if p.PwSalt == "" {
			return nil, fmt.Errorf("%w: pw_salt required for version %s", common.ErrMalformedEnvelope, p.Version)
		}
		salt = p.PwSalt
	default:
		return nil, fmt.Errorf("%w: %q", common.ErrProtocolTooNew, p.Version)
	}

	dk := pbkdf2.Key([]byte(password), []byte(salt), p.PwCost, 96, sha512.New)
	keys := &Keys{
		Pw: append([]byte(nil), dk[0:32]...),
		Mk: append([]byte(nil), dk[32:64]...),
		Ak: append([]byte(nil), dk[64:96]...),
	}
	shared.WipeByteArray(dk)
	return keys, nil
}

package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/noteforge/core/internal/common"
	"github.com/noteforge/core/internal/shared"
)

// ItemKey is the random per-item key (§4.1): a 512-bit value split into an
// encryption half (Ek) and an authentication half (Ak).
type ItemKey struct {
	Ek []byte
	Ak []byte
}

// Wipe zeros both halves.
func (k *ItemKey) Wipe() {
	if k == nil {
		return
	}
	shared.WipeByteArray(k.Ek)
	shared.WipeByteArray(k.Ak)
}

// GenerateItemKey produces a fresh random item key.
func GenerateItemKey(randSource io.Reader) (*ItemKey, error) {
	if randSource == nil {
		randSource = rand.Reader
	}
	buf := make([]byte, 64)
	if _, err := io.ReadFull(randSource, buf); err != nil {
		return nil, fmt.Errorf("generate item key: %w", err)
	}
	return &ItemKey{Ek: buf[:32], Ak: buf[32:64]}, nil
}

// WrapItemKey encrypts an item key under the user's master key pair,
// producing the item's enc_item_key using the same envelope scheme as
// content (§4.1).
func WrapItemKey(version Version, itemUUID string, ik *ItemKey, mk, mak []byte, params AuthParams, randSource io.Reader) (string, error) {
	plaintext := []byte(hex.EncodeToString(ik.Ek) + ":" + hex.EncodeToString(ik.Ak))
	return Encrypt(version, itemUUID, plaintext, mk, mak, params, randSource)
}

// UnwrapItemKey decrypts enc_item_key back into an ItemKey.
func UnwrapItemKey(envelope string, itemUUID string, mk, mak []byte) (*ItemKey, error) {
	plaintext, err := Decrypt(envelope, itemUUID, mk, mak, "")
	if err != nil {
		return nil, err
	}
	parts := strings.Split(string(plaintext), ":")
	if len(parts) != 2 {
		return nil, common.ErrMalformedEnvelope
	}
	ek, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	ak, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
	}
	return &ItemKey{Ek: ek, Ak: ak}, nil
}

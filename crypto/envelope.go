package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/noteforge/core/internal/common"
)

const ivSize = aes.BlockSize // 16 bytes, 128 bits

// Encrypt produces the wire envelope for plaintext under the given
// encryption/auth key pair, per §4.1 and §6.
//
//   - V002/V003: "version:auth_hash:uuid:iv:content_b64:auth_params_b64"
//   - V000:      "000" + base64(plaintext), unencrypted
//   - V001 is read-only in modern clients (§4.1); Encrypt refuses it.
func Encrypt(version Version, itemUUID string, plaintext []byte, ek, ak []byte, params AuthParams, randSource io.Reader) (string, error) {
	if randSource == nil {
		randSource = rand.Reader
	}

	switch version {
	case V000:
		return "000" + base64.StdEncoding.EncodeToString(plaintext), nil
	case V001:
		return "", fmt.Errorf("%w: version 001 is read-only", common.ErrProtocolTooOld)
	case V002, V003:
		// fallthrough below
	default:
		return "", fmt.Errorf("%w: %q", common.ErrProtocolTooNew, version)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(randSource, iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	ciphertext, err := aesCBCEncrypt(pkcs7Pad(plaintext, aes.BlockSize), ek, iv)
	if err != nil {
		return "", err
	}

	ivHex := hex.EncodeToString(iv)
	ctB64 := base64.StdEncoding.EncodeToString(ciphertext)
	authHash := authHashFor(string(version), itemUUID, ivHex, ctB64, ak)

	apJSON, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal auth params: %w", err)
	}
	apB64 := base64.StdEncoding.EncodeToString(apJSON)

	return strings.Join([]string{string(version), authHash, itemUUID, ivHex, ctB64, apB64}, ":"), nil
}

// Decrypt parses and authenticates an envelope, returning the plaintext.
// legacyAuthHash is the item's top-level auth_hash field, consulted only
// for version "001" (whose hash is not bound inside the envelope string).
func Decrypt(envelope string, itemUUID string, ek, ak []byte, legacyAuthHash string) ([]byte, error) {
	if len(envelope) < 3 {
		return nil, common.ErrMalformedEnvelope
	}

	switch envelope[:3] {
	case "000":
		decoded, err := base64.StdEncoding.DecodeString(envelope[3:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
		}
		return decoded, nil

	case "001":
		ciphertext, err := base64.StdEncoding.DecodeString(envelope[3:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
		}
		if legacyAuthHash != "" {
			expected := authHashFor("001", itemUUID, "", envelope[3:], ak)
			if !hmac.Equal([]byte(expected), []byte(legacyAuthHash)) {
				return nil, common.ErrAuthenticationFailed
			}
		}
		iv := make([]byte, ivSize) // zero IV, per §4.1
		plain, err := aesCBCDecrypt(ciphertext, ek, iv)
		if err != nil {
			return nil, common.ErrAuthenticationFailed
		}
		return pkcs7Unpad(plain)

	case "002", "003":
		parts := strings.Split(envelope, ":")
		if len(parts) != 6 {
			return nil, fmt.Errorf("%w: expected 6 fields, got %d", common.ErrMalformedEnvelope, len(parts))
		}
		version, authHash, uuid, ivHex, ctB64 := parts[0], parts[1], parts[2], parts[3], parts[4]

		if uuid != itemUUID {
			return nil, common.ErrAuthenticationFailed
		}

		expected := authHashFor(version, uuid, ivHex, ctB64, ak)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(authHash)) != 1 {
			return nil, common.ErrAuthenticationFailed
		}

		iv, err := hex.DecodeString(ivHex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
		}
		ciphertext, err := base64.StdEncoding.DecodeString(ctB64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedEnvelope, err)
		}

		plain, err := aesCBCDecrypt(ciphertext, ek, iv)
		if err != nil {
			return nil, common.ErrAuthenticationFailed
		}
		return pkcs7Unpad(plain)

	default:
		return nil, common.ErrMalformedEnvelope
	}
}

func authHashFor(version, uuid, ivHex, ctB64 string, ak []byte) string {
	mac := hmac.New(sha256.New, ak)
	mac.Write([]byte(fmt.Sprintf("%s:%s:%s:%s", version, uuid, ivHex, ctB64)))
	return hex.EncodeToString(mac.Sum(nil))
}

func aesCBCEncrypt(padded, key, iv []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func aesCBCDecrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext not a multiple of block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte(nil), data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, common.ErrAuthenticationFailed
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, common.ErrAuthenticationFailed
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, common.ErrAuthenticationFailed
		}
	}
	return data[:len(data)-padLen], nil
}

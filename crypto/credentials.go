// Package crypto implements the credential-transport encryption and
// request-signing primitives required by the AlgoLab broker API.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

const blockSize = aes.BlockSize // 16

// zeroIV is the broker's documented initialization vector: sixteen zero
// bytes. Deterministic, not a design choice — do not reuse this cipher
// mode for anything that needs real confidentiality.
var zeroIV = make([]byte, blockSize)

// Encryptor wraps an AES-128-CBC cipher keyed from the broker API secret.
// It is used only to wrap credentials, tokens, and OTP codes before they
// cross the wire; it is not a general-purpose encryption helper.
type Encryptor struct {
	key []byte
}

// NewEncryptor derives the cipher key from the base64-encoded API secret.
func NewEncryptor(base64Secret string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(base64Secret)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode api secret: %w", err)
	}
	if len(key) != 16 {
		return nil, fmt.Errorf("crypto: api secret must decode to 16 bytes, got %d", len(key))
	}
	return &Encryptor{key: key}, nil
}

// Encrypt pads plaintext with PKCS#7, encrypts it under AES-128-CBC with
// the zero IV, and returns the base64 encoding of the ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}

	padded := pkcs7Pad([]byte(plaintext), blockSize)
	ciphertext := make([]byte, len(padded))

	mode := cipher.NewCBCEncrypter(block, zeroIV)
	mode.CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. Provided for completeness and for tests that
// need to assert round-trip correctness; the gateway itself never
// decrypts broker payloads.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("crypto: decode ciphertext: %w", err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%blockSize != 0 {
		return "", fmt.Errorf("crypto: ciphertext is not a multiple of the block size")
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, zeroIV)
	mode.CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, blockSize)
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, size int) []byte {
	padLen := size - len(data)%size
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%size != 0 {
		return nil, fmt.Errorf("crypto: invalid padded length %d", n)
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > size || padLen > n {
		return nil, fmt.Errorf("crypto: invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("crypto: invalid padding bytes")
		}
	}
	return data[:n-padLen], nil
}

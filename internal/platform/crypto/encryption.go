package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/hkdf"
)

const keySize = 32

var keyInfo = []byte("hrpayroll data-at-rest v1")

// Service encrypts payslip archives with AES-256-GCM. A zero Service passes
// data through unchanged.
type Service struct {
	key []byte
}

func New(key string) (*Service, error) {
	if key == "" {
		return &Service{key: nil}, nil
	}
	derived, err := deriveKey(key)
	if err != nil {
		return nil, err
	}
	return &Service{key: derived}, nil
}

func (s *Service) Configured() bool {
	return s != nil && len(s.key) == keySize
}

func (s *Service) Encrypt(plain []byte) ([]byte, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return plain, nil
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, plain, nil)
	return append(nonce, ciphertext...), nil
}

func (s *Service) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	if !s.Configured() {
		return ciphertext, nil
	}
	gcm, err := s.aead()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	data := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, data, nil)
}

func (s *Service) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// deriveKey uses a 32-byte hex or base64 key as is. Any other secret is
// stretched to 32 bytes with HKDF-SHA256.
func deriveKey(raw string) ([]byte, error) {
	if decoded, ok := decodeKey(raw); ok && len(decoded) == keySize {
		return decoded, nil
	}
	out := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(raw), nil, keyInfo), out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeKey(raw string) ([]byte, bool) {
	if len(raw) == 2*keySize {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded, true
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded, true
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded, true
	}
	return nil, false
}

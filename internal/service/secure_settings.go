package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gorm.io/datatypes"

	"github.com/olujimiAdebakin/Paynode-Aggregator/internal/models"
)

const sealedFormat = "aes-gcm-v1"

// RedactedValue replaces sensitive values in listings.
const RedactedValue = `"***"`

type sealedSettingValue struct {
	Enc   string `json:"enc"`
	Nonce string `json:"nonce"`
	Data  string `json:"data"`
}

// SettingsCipher seals settings whose key names a credential. The previous
// key is only used to open values sealed before a rotation. A nil cipher
// stores everything in the clear.
type SettingsCipher struct {
	primary cipher.AEAD
	all     []cipher.AEAD
}

// NewSettingsCipher returns nil when no key is configured.
func NewSettingsCipher(key, previous string) (*SettingsCipher, error) {
	key, previous = strings.TrimSpace(key), strings.TrimSpace(previous)
	if key == "" {
		return nil, nil
	}
	primary, err := newGCM(key)
	if err != nil {
		return nil, fmt.Errorf("settings key: %w", err)
	}
	c := &SettingsCipher{primary: primary, all: []cipher.AEAD{primary}}
	if previous != "" && previous != key {
		prev, err := newGCM(previous)
		if err != nil {
			return nil, fmt.Errorf("previous settings key: %w", err)
		}
		c.all = append(c.all, prev)
	}
	return c, nil
}

func (c *SettingsCipher) Protect(key string, raw []byte) ([]byte, error) {
	if c == nil || !IsSensitiveSettingKey(key) {
		return raw, nil
	}
	nonce := make([]byte, c.primary.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	ct := c.primary.Seal(nil, nonce, raw, additionalData(key))
	return json.Marshal(sealedSettingValue{
		Enc:   sealedFormat,
		Nonce: base64.StdEncoding.EncodeToString(nonce),
		Data:  base64.StdEncoding.EncodeToString(ct),
	})
}

// Reveal opens a sealed value. Values stored in the clear, or sealed under a
// key no longer configured, come back unchanged.
func (c *SettingsCipher) Reveal(key string, raw []byte) []byte {
	if c == nil || !IsSensitiveSettingKey(key) {
		return raw
	}
	nonce, ct, ok := decodeSealed(raw)
	if !ok {
		return raw
	}
	for _, gcm := range c.all {
		if pt, err := gcm.Open(nil, nonce, ct, additionalData(key)); err == nil {
			return pt
		}
	}
	return raw
}

// Reseal moves a value onto the primary key. Clear values get sealed, values
// sealed under the previous key are resealed, and values no configured key
// opens are left alone. The bool reports whether raw needs replacing.
func (c *SettingsCipher) Reseal(key string, raw []byte) ([]byte, bool, error) {
	if c == nil || !IsSensitiveSettingKey(key) {
		return raw, false, nil
	}
	nonce, ct, sealed := decodeSealed(raw)
	if sealed {
		if _, err := c.primary.Open(nil, nonce, ct, additionalData(key)); err == nil {
			return raw, false, nil
		}
	}
	plain := c.Reveal(key, raw)
	if sealed && slices.Equal(plain, raw) {
		return raw, false, nil
	}
	out, err := c.Protect(key, plain)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func decodeSealed(raw []byte) (nonce, ct []byte, ok bool) {
	if len(raw) == 0 {
		return nil, nil, false
	}
	var payload sealedSettingValue
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, false
	}
	if payload.Enc != sealedFormat || payload.Nonce == "" || payload.Data == "" {
		return nil, nil, false
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return nil, nil, false
	}
	ct, err = base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, nil, false
	}
	return nonce, ct, true
}

// IsSensitiveSettingKey reports whether a setting key names a credential,
// such as "webhook.secret" or "paas.api_key".
func IsSensitiveSettingKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	for _, m := range []string{"secret", "token", "password", "api_key", "private_key"} {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

// RedactSetting masks the value of a sensitive setting.
func RedactSetting(item models.SystemSetting) models.SystemSetting {
	if IsSensitiveSettingKey(item.Key) {
		item.Value = datatypes.JSON(RedactedValue)
	}
	return item
}

func additionalData(key string) []byte {
	return []byte(strings.ToLower(strings.TrimSpace(key)))
}

func newGCM(k string) (cipher.AEAD, error) {
	keyBytes := parseSettingsKey(k)
	if len(keyBytes) == 0 {
		return nil, errors.New("key must be at least 16 bytes")
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// parseSettingsKey accepts base64 or raw bytes and trims to the nearest AES
// key size.
func parseSettingsKey(k string) []byte {
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		keyBytes = []byte(k)
	}
	switch n := len(keyBytes); {
	case n < 16:
		return nil
	case n < 24:
		return keyBytes[:16]
	case n < 32:
		return keyBytes[:24]
	default:
		return keyBytes[:32]
	}
}

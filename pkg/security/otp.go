package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const digits = "0123456789"

// GenerateNumericCode returns a uniformly random decimal code of the given length.
// Leading zeros are kept so every code has exactly length digits.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		idx, err := randInt(len(digits))
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b.WriteByte(digits[idx])
	}
	return b.String(), nil
}

// HashCode derives the stored form of a one-time code. The flow id salts the
// digest so identical codes in different flows never collide.
func HashCode(pepper, flowID, code string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(flowID))
	mac.Write([]byte{0})
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// CompareCode checks a submitted code against its stored hash in constant time.
func CompareCode(pepper, flowID, code, storedHash string) bool {
	want, err := hex.DecodeString(storedHash)
	if err != nil {
		return false
	}
	got, _ := hex.DecodeString(HashCode(pepper, flowID, code))
	return hmac.Equal(got, want)
}

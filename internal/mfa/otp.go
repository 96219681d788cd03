package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

const (
	otpDigits          = 6
	recoveryCodeLen    = 10
	recoveryAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	defaultRecoverySet = 10
)

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random 6-digit numeric code (e.g. "042917").
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// HashOTP returns a SHA-256 hash of the code, hex-encoded.
func HashOTP(otp string) string {
	h := sha256.Sum256([]byte(otp))
	return hex.EncodeToString(h[:])
}

// OTPEqual performs constant-time comparison of the provided code's hash with the stored hash.
func OTPEqual(providedOTP, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	providedHash := HashOTP(providedOTP)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}

// GenerateRecoveryCodes returns n codes formatted as XXXXX-XXXXX.
func GenerateRecoveryCodes(n int) ([]string, error) {
	if n <= 0 {
		n = defaultRecoverySet
	}
	alphabet := big.NewInt(int64(len(recoveryAlphabet)))
	codes := make([]string, n)
	for i := range codes {
		var b strings.Builder
		for j := 0; j < recoveryCodeLen; j++ {
			if j == recoveryCodeLen/2 {
				b.WriteByte('-')
			}
			k, err := rand.Int(rand.Reader, alphabet)
			if err != nil {
				return nil, err
			}
			b.WriteByte(recoveryAlphabet[k.Int64()])
		}
		codes[i] = b.String()
	}
	return codes, nil
}

// HashRecoveryCode hashes a recovery code after normalizing case, dashes and spaces.
func HashRecoveryCode(code string) string {
	norm := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(code))
	return HashOTP(norm)
}

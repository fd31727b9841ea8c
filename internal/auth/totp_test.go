package auth

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *TOTPManager {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "InvoiceFlow")
	require.NoError(t, err)
	return tm
}

// ============================================================================
// Constructor Tests
// ============================================================================

func TestNewTOTPManager_ValidKey(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := NewTOTPManager(key, "InvoiceFlow")
	assert.NoError(t, err)
	assert.NotNil(t, tm)
}

func TestNewTOTPManager_InvalidKeyLength(t *testing.T) {
	// Test with various invalid key lengths
	tests := []int{0, 16, 24, 31, 33, 64}
	for _, length := range tests {
		key := make([]byte, length)
		tm, err := NewTOTPManager(key, "InvoiceFlow")
		assert.Error(t, err)
		assert.Nil(t, tm)
		assert.Contains(t, err.Error(), "must be exactly 32 bytes")
	}
}

// ============================================================================
// Enrollment Tests
// ============================================================================

func TestGenerateEnrollment_Fields(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.NotEmpty(t, enrollment.Encrypted)
	assert.Len(t, enrollment.Nonce, 12) // GCM nonce is 12 bytes

	// Secret must be valid unpadded base32 so authenticator apps accept it
	_, err = base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(enrollment.Secret)
	assert.NoError(t, err)

	assert.True(t, strings.HasPrefix(enrollment.ProvisioningURI, "otpauth://totp/"))
	assert.Contains(t, enrollment.ProvisioningURI, "InvoiceFlow")
	assert.Contains(t, enrollment.ProvisioningURI, "alice@example.com")
}

func TestGenerateEnrollment_QRCodeFormat(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	// QR code should be a data URL wrapping a PNG
	require.True(t, strings.HasPrefix(enrollment.QRCode, "data:image/png;base64,"))

	pngData, err := base64.StdEncoding.DecodeString(enrollment.QRCode[len("data:image/png;base64,"):])
	require.NoError(t, err)
	require.Greater(t, len(pngData), 4)

	// PNG signature: 137 80 78 71
	assert.Equal(t, byte(137), pngData[0])
	assert.Equal(t, byte(80), pngData[1])
	assert.Equal(t, byte(78), pngData[2])
	assert.Equal(t, byte(71), pngData[3])
}

func TestGenerateEnrollment_EncryptedRoundTrip(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	// The stored ciphertext must decrypt back to the base32 secret
	decrypted, err := tm.DecryptSecret(enrollment.Encrypted, enrollment.Nonce)
	require.NoError(t, err)
	assert.Equal(t, enrollment.Secret, string(decrypted))
}

func TestGenerateEnrollment_FreshSecretEachCall(t *testing.T) {
	tm := newTestManager(t)

	first, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)
	second, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.Secret, second.Secret)
}

// ============================================================================
// Encryption/Decryption Tests
// ============================================================================

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	tm := newTestManager(t)

	originalSecret := []byte("JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP")

	encrypted, nonce, err := tm.EncryptSecret(originalSecret)
	require.NoError(t, err)

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	require.NoError(t, err)

	assert.Equal(t, originalSecret, decrypted)
}

func TestDecryptSecret_TamperedCiphertext(t *testing.T) {
	tm := newTestManager(t)

	encrypted, nonce, err := tm.EncryptSecret([]byte("test_secret_value"))
	require.NoError(t, err)

	// Flip bits; GCM authentication must reject the result
	encrypted[0] ^= 0xFF

	decrypted, err := tm.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
	assert.Nil(t, decrypted)
	assert.Contains(t, err.Error(), "failed to decrypt")
}

func TestDecryptSecret_WrongNonce(t *testing.T) {
	tm := newTestManager(t)

	encrypted, _, err := tm.EncryptSecret([]byte("test_secret_value"))
	require.NoError(t, err)

	wrongNonce := make([]byte, 12)
	_, err = rand.Read(wrongNonce)
	require.NoError(t, err)

	decrypted, err := tm.DecryptSecret(encrypted, wrongNonce)
	assert.Error(t, err)
	assert.Nil(t, decrypted)
}

func TestDecryptSecret_WrongKey(t *testing.T) {
	tm := newTestManager(t)
	other := newTestManager(t)

	encrypted, nonce, err := tm.EncryptSecret([]byte("test_secret_value"))
	require.NoError(t, err)

	decrypted, err := other.DecryptSecret(encrypted, nonce)
	assert.Error(t, err)
	assert.Nil(t, decrypted)
}

// ============================================================================
// TOTP Validation Tests
// ============================================================================

func TestValidateTOTP_ValidCode(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	validCode, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	valid, err := tm.ValidateTOTP(enrollment.Secret, validCode, nil)
	assert.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateTOTP_PlusOneTimeStep(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	// Code from the next 30s step should pass with the one-step skew
	futureCode, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(30*time.Second))
	require.NoError(t, err)

	valid, err := tm.ValidateTOTP(enrollment.Secret, futureCode, nil)
	assert.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateTOTP_MinusOneTimeStep(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	pastCode, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(-30*time.Second))
	require.NoError(t, err)

	valid, err := tm.ValidateTOTP(enrollment.Secret, pastCode, nil)
	assert.NoError(t, err)
	assert.True(t, valid)
}

func TestValidateTOTP_InvalidCode(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	valid, err := tm.ValidateTOTP(enrollment.Secret, "000000", nil)
	assert.NoError(t, err)
	assert.False(t, valid)
}

func TestValidateTOTP_ExpiredCode(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	// Three minutes is well outside the 90s acceptance window
	expiredCode, err := totp.GenerateCode(enrollment.Secret, time.Now().Add(-3*time.Minute))
	require.NoError(t, err)

	valid, err := tm.ValidateTOTP(enrollment.Secret, expiredCode, nil)
	assert.NoError(t, err)
	assert.False(t, valid)
}

func TestValidateTOTP_ReplayRejected(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	validCode, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	// First use succeeds
	valid, err := tm.ValidateTOTP(enrollment.Secret, validCode, nil)
	require.NoError(t, err)
	require.True(t, valid)

	// Re-use inside the tolerance window is treated as just another
	// invalid code, indistinguishable from a wrong guess
	lastUsedAt := time.Now().Add(-30 * time.Second)
	valid, err = tm.ValidateTOTP(enrollment.Secret, validCode, &lastUsedAt)
	assert.NoError(t, err)
	assert.False(t, valid)
}

func TestValidateTOTP_OldLastUseDoesNotBlock(t *testing.T) {
	tm := newTestManager(t)

	enrollment, err := tm.GenerateEnrollment("alice@example.com")
	require.NoError(t, err)

	validCode, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)

	// A use from a prior window cannot collide with the current code
	lastUsedAt := time.Now().Add(-5 * time.Minute)
	valid, err := tm.ValidateTOTP(enrollment.Secret, validCode, &lastUsedAt)
	assert.NoError(t, err)
	assert.True(t, valid)
}

// ============================================================================
// Recovery Code Generation Tests
// ============================================================================

func TestGenerateRecoveryCodes_Count(t *testing.T) {
	tm := newTestManager(t)

	codes, err := tm.GenerateRecoveryCodes(10)
	assert.NoError(t, err)
	assert.Len(t, codes, 10)
}

func TestGenerateRecoveryCodes_Uniqueness(t *testing.T) {
	tm := newTestManager(t)

	codes, err := tm.GenerateRecoveryCodes(10)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.False(t, seen[code], "duplicate code found: %s", code)
		seen[code] = true
	}
}

func TestGenerateRecoveryCodes_CharsetValidation(t *testing.T) {
	tm := newTestManager(t)

	codes, err := tm.GenerateRecoveryCodes(10)
	require.NoError(t, err)

	// Charset should only contain 2-9 and A-Z excluding 0/O/1/I/L
	for _, code := range codes {
		assert.Equal(t, 8, len(code))
		for _, ch := range code {
			assert.Contains(t, recoveryCharset, string(ch), "invalid character in code: %c", ch)
		}
	}
}

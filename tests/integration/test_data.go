package integration

import (
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// TestAccountCreds generates unique test account credentials using timestamp
func TestAccountCreds(suffix string) (username, password string) {
	ts := time.Now().UnixNano()
	username = fmt.Sprintf("user-%d-%s", ts, suffix)
	password = "TestPassword123!"
	return
}

// GenerateTOTPCode produces a currently-valid code for the base32 secret
// returned by the setup endpoint
func GenerateTOTPCode(secret string) (string, error) {
	return totp.GenerateCode(secret, time.Now())
}

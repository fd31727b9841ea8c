package models

import (
	"time"
)

// SecondFactorState is the lifecycle position of an account's profile.
type SecondFactorState string

const (
	SecondFactorDisabled     SecondFactorState = "disabled"
	SecondFactorSetupPending SecondFactorState = "setup_pending"
	SecondFactorEnabled      SecondFactorState = "enabled"
)

// SecondFactorProfile is the one-to-one second-factor record for an account.
// The TOTP secret is stored AES-256-GCM encrypted; recovery codes are stored
// as bcrypt hashes and the plaintext is shown to the user exactly once.
type SecondFactorProfile struct {
	AccountID          string
	SecretEncrypted    []byte
	SecretNonce        []byte
	Enabled            bool
	RecoveryCodeHashes []string
	LastUsedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// State derives the lifecycle position from the stored fields.
// Enabled implies a non-empty secret; a staged secret without the enabled
// flag means setup has begun but possession was never proven.
func (p *SecondFactorProfile) State() SecondFactorState {
	switch {
	case p == nil:
		return SecondFactorDisabled
	case p.Enabled:
		return SecondFactorEnabled
	case len(p.SecretEncrypted) > 0:
		return SecondFactorSetupPending
	default:
		return SecondFactorDisabled
	}
}

// SecondFactorSetup carries the one-time setup material back to the caller.
// None of it can be retrieved again; the secret and QR exist only until the
// profile is enabled or setup is re-run.
type SecondFactorSetup struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCode          string   `json:"qr_code"`
	RecoveryCodes   []string `json:"recovery_codes"`
}

// SecondFactorStatus is the read-only view exposed to the account owner.
type SecondFactorStatus struct {
	Enabled                bool       `json:"enabled"`
	RecoveryCodesRemaining int        `json:"recovery_codes_remaining"`
	LastUsedAt             *time.Time `json:"last_used_at"`
}

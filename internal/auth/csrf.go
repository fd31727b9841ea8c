package auth

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// csrfTokenEntry stores token metadata
type csrfTokenEntry struct {
	sessionID string
	expiry    time.Time
}

// CSRFTokenManager handles CSRF token generation and validation.
// Tokens live in process memory only; a restart forces re-issue on the
// next login, which the handler does anyway.
type CSRFTokenManager struct {
	validTokens map[string]*csrfTokenEntry // token -> entry (sessionID + expiry)
	mu          sync.RWMutex
	tokenTTL    time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewCSRFTokenManager creates a new CSRF token manager
func NewCSRFTokenManager(tokenTTL time.Duration) *CSRFTokenManager {
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}

	manager := &CSRFTokenManager{
		validTokens: make(map[string]*csrfTokenEntry),
		tokenTTL:    tokenTTL,
		stopCh:      make(chan struct{}),
	}

	// Start cleanup goroutine to remove expired tokens
	go manager.cleanupExpiredTokens()

	return manager
}

// Stop ends the background cleanup goroutine. Issued tokens keep working
// until their expiry; only the sweep stops.
func (m *CSRFTokenManager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}

// GenerateToken creates a new CSRF token bound to a specific session
func (m *CSRFTokenManager) GenerateToken(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Generate 32 random bytes
	randomBytes := make([]byte, 32)
	_, err := rand.Read(randomBytes)
	if err != nil {
		return "", err
	}

	token := hex.EncodeToString(randomBytes)
	m.validTokens[token] = &csrfTokenEntry{
		sessionID: sessionID,
		expiry:    time.Now().Add(m.tokenTTL),
	}

	return token, nil
}

// ValidateToken checks if a CSRF token is valid and belongs to the session
func (m *CSRFTokenManager) ValidateToken(token, sessionID string) bool {
	m.mu.RLock()
	entry, exists := m.validTokens[token]
	m.mu.RUnlock()

	if !exists {
		return false
	}

	// Verify token belongs to this session
	if entry.sessionID != sessionID {
		return false
	}

	if time.Now().After(entry.expiry) {
		// Token is expired, remove it
		m.mu.Lock()
		delete(m.validTokens, token)
		m.mu.Unlock()
		return false
	}

	return true
}

// RevokeToken invalidates a single CSRF token
func (m *CSRFTokenManager) RevokeToken(token string) {
	m.mu.Lock()
	delete(m.validTokens, token)
	m.mu.Unlock()
}

// RevokeSession invalidates every CSRF token issued to a session.
// Called when the session itself is revoked.
func (m *CSRFTokenManager) RevokeSession(sessionID string) {
	m.mu.Lock()
	for token, entry := range m.validTokens {
		if entry.sessionID == sessionID {
			delete(m.validTokens, token)
		}
	}
	m.mu.Unlock()
}

// cleanupExpiredTokens periodically removes expired tokens
func (m *CSRFTokenManager) cleanupExpiredTokens() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for token, entry := range m.validTokens {
				if now.After(entry.expiry) {
					delete(m.validTokens, token)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/invoiceflow/gatehouse/internal/auth"
	"github.com/invoiceflow/gatehouse/internal/models"
	"github.com/invoiceflow/gatehouse/internal/services"
	pkghttp "github.com/invoiceflow/gatehouse/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithSessionContext injects a resolved account, session, and token into
// the request context the way the session middleware would
func WithSessionContext(req *http.Request, account *models.Account, session *models.Session, token string) *http.Request {
	ctx := req.Context()
	if account != nil {
		ctx = context.WithValue(ctx, auth.AccountContextKey, account)
	}
	if session != nil {
		ctx = context.WithValue(ctx, auth.SessionContextKey, session)
	}
	if token != "" {
		ctx = context.WithValue(ctx, auth.TokenContextKey, token)
	}
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// WithChiRouteContext adds chi URL parameters to request context for testing
func WithChiRouteContext(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc          func(ctx context.Context, src models.SourceContext, username, password string) (*services.LoginResult, error)
	LogoutFunc         func(ctx context.Context, token string) error
	ChangePasswordFunc func(ctx context.Context, src models.SourceContext, account *models.Account, currentPassword, newPassword, currentToken string) error
}

func (m *MockAuthService) Login(ctx context.Context, src models.SourceContext, username, password string) (*services.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, src, username, password)
}

func (m *MockAuthService) Logout(ctx context.Context, token string) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, token)
}

func (m *MockAuthService) ChangePassword(ctx context.Context, src models.SourceContext, account *models.Account, currentPassword, newPassword, currentToken string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, src, account, currentPassword, newPassword, currentToken)
}

// MockSessionRegistry implements SessionRegistryInterface for testing
type MockSessionRegistry struct {
	ListFunc      func(ctx context.Context, account *models.Account, currentToken string) ([]models.SessionView, error)
	RevokeFunc    func(ctx context.Context, account *models.Account, sessionID string) error
	RevokeAllFunc func(ctx context.Context, accountID, exceptToken string) (int64, error)
}

func (m *MockSessionRegistry) List(ctx context.Context, account *models.Account, currentToken string) ([]models.SessionView, error) {
	if m.ListFunc == nil {
		return []models.SessionView{}, nil
	}
	return m.ListFunc(ctx, account, currentToken)
}

func (m *MockSessionRegistry) Revoke(ctx context.Context, account *models.Account, sessionID string) error {
	if m.RevokeFunc == nil {
		return nil
	}
	return m.RevokeFunc(ctx, account, sessionID)
}

func (m *MockSessionRegistry) RevokeAll(ctx context.Context, accountID, exceptToken string) (int64, error) {
	if m.RevokeAllFunc == nil {
		return 0, nil
	}
	return m.RevokeAllFunc(ctx, accountID, exceptToken)
}

// MockSecondFactorService implements SecondFactorServiceInterface for testing
type MockSecondFactorService struct {
	SetupFunc          func(ctx context.Context, account *models.Account) (*models.SecondFactorSetup, error)
	EnableFunc         func(ctx context.Context, account *models.Account, sessionID, code string) error
	ConfirmSessionFunc func(ctx context.Context, account *models.Account, sessionID, code string) error
	DisableFunc        func(ctx context.Context, account *models.Account, password, code string) error
	StatusFunc         func(ctx context.Context, accountID string) (*models.SecondFactorStatus, error)
}

func (m *MockSecondFactorService) Setup(ctx context.Context, account *models.Account) (*models.SecondFactorSetup, error) {
	if m.SetupFunc == nil {
		return &models.SecondFactorSetup{
			Secret:          "JBSWY3DPEHPK3PXP",
			ProvisioningURI: "otpauth://totp/test",
			QRCode:          "data:image/png;base64,dGVzdA==",
			RecoveryCodes:   []string{"AAAA2222", "BBBB3333"},
		}, nil
	}
	return m.SetupFunc(ctx, account)
}

func (m *MockSecondFactorService) Enable(ctx context.Context, account *models.Account, sessionID, code string) error {
	if m.EnableFunc == nil {
		return nil
	}
	return m.EnableFunc(ctx, account, sessionID, code)
}

func (m *MockSecondFactorService) ConfirmSession(ctx context.Context, account *models.Account, sessionID, code string) error {
	if m.ConfirmSessionFunc == nil {
		return nil
	}
	return m.ConfirmSessionFunc(ctx, account, sessionID, code)
}

func (m *MockSecondFactorService) Disable(ctx context.Context, account *models.Account, password, code string) error {
	if m.DisableFunc == nil {
		return nil
	}
	return m.DisableFunc(ctx, account, password, code)
}

func (m *MockSecondFactorService) Status(ctx context.Context, accountID string) (*models.SecondFactorStatus, error) {
	if m.StatusFunc == nil {
		return &models.SecondFactorStatus{}, nil
	}
	return m.StatusFunc(ctx, accountID)
}

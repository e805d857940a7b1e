package cmd

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const (
	findByCanonicalEmailQuery = `(?s)SELECT id, email, canonical_email, password_hash, created_at, updated_at\s+FROM users WHERE canonical_email = \?`
	insertUserQuery           = `(?s)INSERT INTO users \(email, canonical_email, password_hash, created_at, updated_at\)\s+VALUES \(\?, \?, \?, \?, \?\)`
	insertResetTokenQuery     = `(?s)INSERT INTO password_reset_tokens \(user_id, token_hash, expires_at, created_at\)\s+VALUES \(\?, \?, \?, \?\)`
)

var userColumns = []string{"id", "email", "canonical_email", "password_hash", "created_at", "updated_at"}

func testConfig() *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:          "0123456789abcdef0123456789abcdef",
			Issuer:          "credentials-test",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 24 * time.Hour,
		},
		Password: config.PasswordConfig{
			Policy:     config.PasswordPolicy{MinLength: 8},
			BcryptCost: bcrypt.MinCost,
		},
		Reset: config.ResetConfig{
			TokenTTL: time.Hour,
			URLBase:  "https://app.example.com/reset",
		},
		Notification: config.NotificationConfig{Transport: config.NotificationTransportLog},
	}
}

func newTestApp(t *testing.T) (*components, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	app, err := buildComponents(testConfig(), db)
	if err != nil {
		t.Fatalf("failed to build components: %v", err)
	}
	return app, mock, func() { _ = db.Close() }
}

func request(e http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHTTPServer_HealthAndMetrics(t *testing.T) {
	app, _, cleanup := newTestApp(t)
	defer cleanup()
	e := newHTTPServer(app)

	if rec := request(e, http.MethodGet, "/health", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected health 200, got %d", rec.Code)
	}

	rec := request(e, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Fatal("expected default registry metrics")
	}
}

func TestHTTPServer_ProtectedRoutes(t *testing.T) {
	app, _, cleanup := newTestApp(t)
	defer cleanup()
	e := newHTTPServer(app)

	rec := request(e, http.MethodGet, "/auth/me", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	refresh, err := app.tokens.IssueRefreshToken(42)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	rec = request(e, http.MethodGet, "/auth/me", "", refresh)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for refresh token, got %d", rec.Code)
	}

	access, err := app.tokens.IssueAccessToken(42)
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	rec = request(e, http.MethodGet, "/auth/me", "", access)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"user_id":42}` {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestHTTPServer_Register(t *testing.T) {
	app, mock, cleanup := newTestApp(t)
	defer cleanup()
	e := newHTTPServer(app)

	mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))
	mock.ExpectExec(insertUserQuery).
		WithArgs("user@example.com", "user@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(5, 1))

	rec := request(e, http.MethodPost, "/auth/register", `{"email":"user@example.com","password":"Password1"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIssueResetToken(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("user@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(uint64(9), "user@example.com", "user@example.com", "hash", now, now))
	mock.ExpectExec(insertResetTokenQuery).
		WithArgs(uint64(9), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	if err := issueResetToken(cmd, testConfig(), db, "User@Example.com"); err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !strings.Contains(out.String(), "user_id: 9") || !strings.Contains(out.String(), "reset_url: https://app.example.com/reset?token=") {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIssueResetToken_UnknownUser(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(findByCanonicalEmailQuery).
		WithArgs("nobody@example.com").
		WillReturnRows(sqlmock.NewRows(userColumns))

	if err := issueResetToken(&cobra.Command{}, testConfig(), db, "nobody@example.com"); err == nil {
		t.Fatal("expected error for unknown user")
	}
}

func TestConfigureLogging(t *testing.T) {
	cfg := testConfig()
	cfg.Log = config.LogConfig{Level: "debug", Format: "text"}
	if err := configureLogging(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg.Log = config.LogConfig{Level: "loud", Format: "json"}
	if err := configureLogging(cfg); err == nil {
		t.Fatal("expected error for invalid level")
	}

	cfg.Log = config.LogConfig{Level: "info", Format: "xml"}
	if err := configureLogging(cfg); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nutriplan/nutriplan/internal/api"
	"github.com/nutriplan/nutriplan/internal/app"
	iauth "github.com/nutriplan/nutriplan/internal/auth"
	sharedtestutil "github.com/nutriplan/nutriplan/internal/database/testutil"
	"github.com/nutriplan/nutriplan/internal/middleware"
	"github.com/nutriplan/nutriplan/internal/models"
	"github.com/nutriplan/nutriplan/pkg/mail"
	"github.com/nutriplan/nutriplan/pkg/response"
)

// ApprovalBaseURL is the approval page configured for test environments.
const ApprovalBaseURL = "https://app.nutriplan.test/coach-approval"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Outbox *mail.Outbox
	Config *app.Config
}

// EnvOption adjusts the configuration before the router is built.
type EnvOption func(*app.Config)

// WithRateLimit enables approval throttling with the given budget.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.Server.RateLimit = app.RateLimitConfig{Enabled: true, Requests: requests, Window: window}
	}
}

// WithPendingDeduplication rejects a second pending invitation to the same invitee.
func WithPendingDeduplication() EnvOption {
	return func(cfg *app.Config) {
		cfg.Invitations.DeduplicatePending = true
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	jwtSecret := "test-suite-super-secret-key-32-bytes!!"
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         jwtSecret,
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{
			PublicURL: "https://app.nutriplan.test",
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: jwtSecret,
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Invitations: app.InvitationsConfig{
			Expiry:       7 * 24 * time.Hour,
			TokenBytes:   32,
			ApprovalPath: "/coach-approval",
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	outbox := mail.NewOutbox()
	store := middleware.NewMemoryRateStore(time.Minute)
	t.Cleanup(store.Close)

	router, err := api.NewRouter(db, jwtSvc, cfg, outbox, store)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Outbox: outbox,
		Config: cfg,
	}
}

// Account is a signed-in user with a bearer token.
type Account struct {
	ID    string
	Email string
	Name  string
	Token string
}

// CreateUser inserts a profile row and mints an access token for it.
func (e *Env) CreateUser(email, name string) Account {
	e.T.Helper()

	user := models.User{ID: uuid.NewString(), Email: email, FullName: name}
	require.NoError(e.T, e.DB.Create(&user).Error)

	return Account{ID: user.ID, Email: email, Name: name, Token: e.Token(user.ID, email, name)}
}

// CreateCoach inserts a user plus a coach roster entry.
func (e *Env) CreateCoach(email, name string) Account {
	e.T.Helper()

	account := e.CreateUser(email, name)
	require.NoError(e.T, e.DB.Create(&models.Coach{
		UserID:        account.ID,
		Certification: "Registered Dietitian",
		JoinedAt:      time.Now().UTC(),
	}).Error)
	return account
}

// Token mints an access token the way the identity provider would.
func (e *Env) Token(userID, email, name string) string {
	e.T.Helper()

	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{UserID: userID, Email: email, Name: name})
	require.NoError(e.T, err)
	return token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RequireError asserts the recorder holds an error envelope with the given status and code.
func RequireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) APIResponse {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error, w.Body.String())
	require.Equal(t, code, resp.Error.Code, w.Body.String())
	return resp
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

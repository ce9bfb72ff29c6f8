package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"concord/internal/app/store"
	"concord/internal/configs"
	"concord/internal/pkg/auth/jwt"
	"concord/internal/pkg/errs"
	"concord/internal/pkg/resp"
)

func newTestDeps(t *testing.T) (*AppDeps, *store.MemUserStore) {
	t.Helper()

	users := store.NewMemUserStore()
	return &AppDeps{
		Config: &configs.AppConfig{
			Environment: "development",
			JWTSecret:   "test-secret",
		},
		Users: users,
	}, users
}

func seedUser(t *testing.T, users *store.MemUserStore, name, password, role string) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	err = users.Create(context.Background(), store.UserRecord{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: string(hash),
		Joined:       time.Now().UTC(),
		Role:         role,
	})
	require.NoError(t, err)
}

func postJSON(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) resp.JSONResponse {
	t.Helper()

	var body resp.JSONResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleSignup(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{
			name:       "valid signup",
			body:       `{"name":"alice","email":"alice@example.com","password":"hunter22","dob":"1990-04-01"}`,
			wantStatus: http.StatusCreated,
			wantCode:   0,
		},
		{
			name:       "signup without dob",
			body:       `{"name":"bob","email":"bob@example.com","password":"hunter22"}`,
			wantStatus: http.StatusCreated,
			wantCode:   0,
		},
		{
			name:       "invalid username",
			body:       `{"name":"No Spaces Allowed","email":"x@example.com","password":"hunter22"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errs.ErrInvalidUsername,
		},
		{
			name:       "invalid email",
			body:       `{"name":"carol","email":"not-an-email","password":"hunter22"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errs.ErrInvalidEmail,
		},
		{
			name:       "short password",
			body:       `{"name":"carol","email":"carol@example.com","password":"abc"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errs.ErrInvalidPassword,
		},
		{
			name:       "bad dob format",
			body:       `{"name":"carol","email":"carol@example.com","password":"hunter22","dob":"01/04/1990"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errs.ErrInvalidParams,
		},
		{
			name:       "unknown field rejected",
			body:       `{"name":"carol","email":"carol@example.com","password":"hunter22","admin":true}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errs.ErrInvalidJSONFormat,
		},
	}

	deps, _ := newTestDeps(t)
	handler := HandleSignup(deps)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, postJSON("/api/auth/signup", tt.body))

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeResponse(t, w)
			assert.Equal(t, tt.wantCode, body.Code)
		})
	}
}

func TestHandleSignupConflict(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	handler := HandleSignup(deps)

	w := httptest.NewRecorder()
	handler(w, postJSON("/api/auth/signup",
		`{"name":"alice","email":"fresh@example.com","password":"hunter22"}`))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errs.ErrUserAlreadyExists, decodeResponse(t, w).Code)

	// Same email under a new name conflicts too.
	w = httptest.NewRecorder()
	handler(w, postJSON("/api/auth/signup",
		`{"name":"alice2","email":"alice@example.com","password":"hunter22"}`))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleSignupIssuesValidToken(t *testing.T) {
	deps, _ := newTestDeps(t)

	w := httptest.NewRecorder()
	HandleSignup(deps)(w, postJSON("/api/auth/signup",
		`{"name":"alice","email":"alice@example.com","password":"hunter22"}`))
	require.Equal(t, http.StatusCreated, w.Code)

	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotEmpty(t, body.Data.Token)

	payload, err := jwt.ParseToken(body.Data.Token, deps.Config.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, "alice", payload.Name)
	assert.Equal(t, "user", payload.Role)
}

func TestHandleLogin(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	handler := HandleLogin(deps)

	t.Run("valid credentials", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/auth/login", `{"name":"alice","password":"hunter22"}`))

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				Token string            `json:"token"`
				User  store.UserRecord  `json:"user"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.NotEmpty(t, body.Data.Token)
		assert.Equal(t, "alice", body.Data.User.Name)
	})

	t.Run("wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/auth/login", `{"name":"alice","password":"wrong"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, errs.ErrInvalidCredentials, decodeResponse(t, w).Code)
	})

	t.Run("unknown user answers the same as wrong password", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/auth/login", `{"name":"ghost","password":"hunter22"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, errs.ErrInvalidCredentials, decodeResponse(t, w).Code)
	})
}

func TestHandleLoginNeverLeaksPasswordHash(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")

	w := httptest.NewRecorder()
	HandleLogin(deps)(w, postJSON("/api/auth/login", `{"name":"alice","password":"hunter22"}`))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "$2a$")
}

func TestHandleCheckUser(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	handler := HandleCheckUser(deps)

	tests := []struct {
		name       string
		body       string
		wantExists bool
	}{
		{"existing name", `{"name":"alice"}`, true},
		{"existing email", `{"email":"alice@example.com"}`, true},
		{"unknown name", `{"name":"bob"}`, false},
		{"unknown both", `{"name":"bob","email":"bob@example.com"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, postJSON("/api/auth/check-user", tt.body))

			require.Equal(t, http.StatusOK, w.Code)

			var body struct {
				Data struct {
					Exists bool `json:"exists"`
				} `json:"data"`
			}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantExists, body.Data.Exists)
		})
	}

	t.Run("empty probe rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/auth/check-user", `{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

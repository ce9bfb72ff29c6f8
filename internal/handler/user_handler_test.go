package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concord/internal/pkg/auth/jwt"
	"concord/internal/pkg/errs"
)

// stubStorage fakes the object store for handler tests.
type stubStorage struct {
	objects map[string]bool
	deleted []string
}

func newStubStorage() *stubStorage {
	return &stubStorage{objects: make(map[string]bool)}
}

func (s *stubStorage) PresignUpload(ctx context.Context, key, mimeType string, fileSize int64, d time.Duration) (string, error) {
	return "https://s3.test/upload/" + key, nil
}

func (s *stubStorage) PresignDownload(ctx context.Context, key string, d time.Duration) (string, error) {
	return "https://s3.test/download/" + key, nil
}

func (s *stubStorage) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *stubStorage) GetObjectMetadata(ctx context.Context, key string) (map[string]string, error) {
	if !s.objects[key] {
		return nil, errors.New("file not found")
	}
	return map[string]string{"Content-Type": "image/png"}, nil
}

func (s *stubStorage) PublicURL(key string) string {
	return "https://cdn.test/" + key
}

func authedRequest(r *http.Request, payload *jwt.Payload) *http.Request {
	ctx := context.WithValue(r.Context(), jwt.ContextAuthPayloadKey, payload)
	return r.WithContext(ctx)
}

func TestHandleGetUser(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")

	router := chi.NewRouter()
	router.Get("/api/user/{name}", HandleGetUser(deps))

	t.Run("anonymous rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/user/alice", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("profile without password hash", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(httptest.NewRequest(http.MethodGet, "/api/user/alice", nil),
			&jwt.Payload{Name: "bob", Role: "user"})
		router.ServeHTTP(w, r)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"name":"alice"`)
		assert.NotContains(t, w.Body.String(), "$2a$")
	})

	t.Run("unknown user", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(httptest.NewRequest(http.MethodGet, "/api/user/ghost", nil),
			&jwt.Payload{Name: "bob", Role: "user"})
		router.ServeHTTP(w, r)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandleUpdateProfile(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	seedUser(t, users, "bob", "hunter22", "user")
	handler := HandleUpdateProfile(deps)

	t.Run("email updated", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/profile", `{"email":"new@example.com"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code)

		rec, err := users.FindByName(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", rec.Email)
	})

	t.Run("email conflict", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/profile", `{"email":"bob@example.com"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("invalid email", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/profile", `{"email":"nope"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errs.ErrInvalidEmail, decodeResponse(t, w).Code)
	})

	t.Run("anonymous rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/user/profile", `{"email":"x@example.com"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestHandlePresignAvatarURL(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	deps.StorageService = newStubStorage()
	handler := HandlePresignAvatarURL(deps)

	t.Run("valid image", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar/presign",
			`{"file_name":"me.png","mime_type":"image/png","file_size":1024}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				PresignedURL string `json:"presignedUrl"`
				FileKey      string `json:"fileKey"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, strings.HasPrefix(body.Data.FileKey, "avatars/alice/"))
		assert.Contains(t, body.Data.PresignedURL, body.Data.FileKey)
	})

	t.Run("non-image rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar/presign",
			`{"file_name":"malware.exe","mime_type":"application/octet-stream","file_size":1024}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errs.ErrFileTypeInvalid, decodeResponse(t, w).Code)
	})

	t.Run("oversize rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar/presign",
			`{"file_name":"big.png","mime_type":"image/png","file_size":99999999}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errs.ErrFileSizeTooLarge, decodeResponse(t, w).Code)
	})

	t.Run("extension must match mime type", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar/presign",
			`{"file_name":"sneaky.exe","mime_type":"image/png","file_size":1024}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleCommitAvatar(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	stub := newStubStorage()
	deps.StorageService = stub
	handler := HandleCommitAvatar(deps)

	t.Run("key outside own prefix rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar", `{"fileKey":"avatars/bob/steal.png"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("object must exist in bucket", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar", `{"fileKey":"avatars/alice/missing.png"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, errs.ErrFileStorageFailed, decodeResponse(t, w).Code)
	})

	t.Run("commit updates the account", func(t *testing.T) {
		stub.objects["avatars/alice/new.png"] = true

		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/user/avatar", `{"fileKey":"avatars/alice/new.png"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code)

		rec, err := users.FindByName(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn.test/avatars/alice/new.png", rec.AvatarURL)
	})
}

func TestHandlePresignFileDownloadURL(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	deps.StorageService = newStubStorage()
	handler := HandlePresignFileDownloadURL(deps)

	t.Run("anonymous rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/file/presign-download", `{"file_key":"chat/alice/pic.jpg"}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("key outside object areas rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/file/presign-download", `{"file_key":"../etc/passwd"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, errs.ErrInvalidParams, decodeResponse(t, w).Code)
	})

	t.Run("valid key", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/file/presign-download", `{"file_key":"chat/alice/pic.jpg"}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				DownloadURL string `json:"downloadUrl"`
				FileKey     string `json:"fileKey"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "https://s3.test/download/chat/alice/pic.jpg", body.Data.DownloadURL)
		assert.Equal(t, "chat/alice/pic.jpg", body.Data.FileKey)
	})
}

func TestHandlePresignChatImageURL(t *testing.T) {
	deps, users := newTestDeps(t)
	seedUser(t, users, "alice", "hunter22", "user")
	deps.StorageService = newStubStorage()
	handler := HandlePresignChatImageURL(deps)

	t.Run("anonymous rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler(w, postJSON("/api/file/presign-upload",
			`{"file_name":"pic.jpg","mime_type":"image/jpeg","file_size":2048}`))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid request", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := authedRequest(postJSON("/api/file/presign-upload",
			`{"file_name":"pic.jpg","mime_type":"image/jpeg","file_size":2048}`),
			&jwt.Payload{Name: "alice", Role: "user"})
		handler(w, r)

		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Data struct {
				FileKey   string `json:"fileKey"`
				PublicURL string `json:"publicUrl"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, strings.HasPrefix(body.Data.FileKey, "chat/alice/"))
		assert.Equal(t, "https://cdn.test/"+body.Data.FileKey, body.Data.PublicURL)
	})
}

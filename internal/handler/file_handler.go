package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"concord/internal/pkg/auth/jwt"
	"concord/internal/pkg/errs"
	"concord/internal/pkg/randx"
	"concord/internal/pkg/req"
	"concord/internal/pkg/resp"
)

const (
	// MaxUploadSize caps uploaded image objects at 10 MiB.
	MaxUploadSize = 10 << 20

	// PresignedURLDuration is how long a generated upload URL stays valid.
	PresignedURLDuration = 15 * time.Minute
)

// allowedImageTypes maps accepted MIME types to their expected extensions.
var allowedImageTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
	"image/webp": {".webp"},
}

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

// validateImageUpload enforces the size cap and the image-only MIME policy,
// including the extension matching the declared type.
func validateImageUpload(input PresignUploadInput) *errs.CustomError {
	if input.FileSize <= 0 || input.FileSize > MaxUploadSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	exts, ok := allowedImageTypes[strings.ToLower(input.MimeType)]
	if !ok {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	fileExt := strings.ToLower(filepath.Ext(input.FileName))
	for _, ext := range exts {
		if fileExt == ext {
			return nil
		}
	}
	return errs.NewError(errs.ErrFileTypeInvalid)
}

// PresignDownloadInput defines the JSON input structure for generating a
// time-limited download URL.
type PresignDownloadInput struct {
	FileKey string `json:"file_key"`
}

// HandlePresignFileDownloadURL creates an HTTP HandlerFunc to generate a
// time-limited, pre-signed URL for fetching a stored object. Only keys inside
// the avatar and chat-image areas are served.
func HandlePresignFileDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignDownloadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !strings.HasPrefix(input.FileKey, "avatars/") && !strings.HasPrefix(input.FileKey, "chat/") {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), input.FileKey, PresignedURLDuration)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		data := map[string]any{
			"downloadUrl": url,
			"fileKey":     input.FileKey,
		}
		resp.RespondSuccess(w, r, data)
	}
}

// HandlePresignChatImageURL creates an HTTP HandlerFunc to generate a
// time-limited, pre-signed URL for uploading a chat image.
func HandlePresignChatImageURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := validateImageUpload(input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		suffix, err := randx.KeySuffix()
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		fileExt := strings.ToLower(filepath.Ext(input.FileName))
		fileKey := fmt.Sprintf("chat/%s/%s%s", payload.Name, suffix, fileExt)

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			PresignedURLDuration,
		)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		data := map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
			"publicUrl":    deps.StorageService.PublicURL(fileKey),
		}
		resp.RespondSuccess(w, r, data)
	}
}

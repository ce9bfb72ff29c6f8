/*
Package handler provides HTTP handler functions for user authentication and management.
*/
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"concord/internal/app/store"
	"concord/internal/pkg/auth/jwt"
	"concord/internal/pkg/errs"
	"concord/internal/pkg/logx"
	"concord/internal/pkg/randx"
	"concord/internal/pkg/req"
	"concord/internal/pkg/resp"
)

// HandleGetUser returns the public profile of the named account. The password
// hash never serializes; everything else in the record does.
func HandleGetUser(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		name := chi.URLParam(r, "name")
		if name == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		rec, err := deps.Users.FindByName(r.Context(), name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "get_user: store lookup failed", "username", name)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"user": rec,
		})
	}
}

// HandlePresignAvatarURL generates a pre-signed upload URL for the caller's
// new avatar. The object key is scoped under the caller's username.
func HandlePresignAvatarURL(deps *AppDeps) http.HandlerFunc {
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
		fileKey := fmt.Sprintf("avatars/%s/%s%s", payload.Name, suffix, fileExt)

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

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
		})
	}
}

type CommitAvatarInput struct {
	FileKey string `json:"fileKey"`
}

// HandleCommitAvatar records a previously uploaded object as the caller's
// avatar, verifying the upload actually landed in the bucket. The old avatar
// object, if any, is deleted in the background.
func HandleCommitAvatar(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CommitAvatarInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		expectedPrefix := fmt.Sprintf("avatars/%s/", payload.Name)
		if !strings.HasPrefix(input.FileKey, expectedPrefix) {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if _, err := deps.StorageService.GetObjectMetadata(r.Context(), input.FileKey); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		rec, err := deps.Users.FindByName(r.Context(), payload.Name)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		avatarURL := deps.StorageService.PublicURL(input.FileKey)
		if err := deps.Users.UpdateAvatar(r.Context(), payload.Name, avatarURL); err != nil {
			logx.Error(err, "commit_avatar: failed to update avatar", "username", payload.Name)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if oldKey := avatarKeyFromURL(deps, rec.AvatarURL); oldKey != "" && oldKey != input.FileKey {
			go func(k string) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = deps.StorageService.Delete(ctx, k)
			}(oldKey)
		}

		newPayload := &jwt.Payload{
			Name:   payload.Name,
			Role:   payload.Role,
			Avatar: avatarURL,
		}
		newToken, err := jwt.GenerateToken(newPayload, deps.Config.JWTSecret, jwt.UserIdentityExpiration)

		finalResponse := map[string]any{
			"profilePicture": avatarURL,
		}
		if err != nil {
			logx.Error(err, "commit_avatar: token refresh failed, client keeps old token", "username", payload.Name)
		} else {
			finalResponse["token"] = newToken
		}

		resp.RespondSuccess(w, r, finalResponse)
	}
}

type UpdateProfileInput struct {
	Email string `json:"email"`
}

// HandleUpdateProfile updates the caller's account. Usernames are immutable
// because they key the registry and message history, so only the email moves.
func HandleUpdateProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := jwt.GetPayloadFromContext(r)
		if payload == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input UpdateProfileInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !emailRegex.MatchString(input.Email) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidEmail))
			return
		}

		if err := deps.Users.UpdateEmail(r.Context(), payload.Name, input.Email); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}
			if errors.Is(err, store.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "update_profile: failed to update email", "username", payload.Name)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"email": input.Email,
		})
	}
}

// avatarKeyFromURL recovers the object key from a stored public avatar URL.
// Returns "" when the URL does not point into our bucket.
func avatarKeyFromURL(deps *AppDeps, avatarURL string) string {
	base := deps.StorageService.PublicURL("")
	if avatarURL == "" || !strings.HasPrefix(avatarURL, base) {
		return ""
	}
	return strings.TrimPrefix(avatarURL, base)
}

/*
Package req provides helper functions for HTTP request parsing and data binding.

It encapsulates strict JSON decoding of request bodies with unified error
reporting via the errs package.
*/
package req

import (
	"encoding/json"
	"net/http"
	"strings"

	"concord/internal/pkg/errs"
)

// MaxRequestBodySize defines the maximum allowed size (1 MB) for a JSON request body.
const MaxRequestBodySize int64 = 1 << 20

// BindJSON attempts to bind the JSON data from the HTTP request body to the
// destination struct dst. Unknown fields and trailing content are rejected.
func BindJSON(r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, MaxRequestBodySize))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

/*
Package req provides helper functions for HTTP request parsing and data binding.

It decodes JSON bodies strictly (no unknown fields, no trailing data, bounded size)
and reports failures as errs.CustomError values ready for the response envelope.
*/
package req

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chatclient/internal/pkg/errs"
)

// MaxJSONBodySize bounds the size of a JSON request body (64 KB).
const MaxJSONBodySize int64 = 64 << 10

// BindJSON binds the JSON body of r to dst.
func BindJSON(w http.ResponseWriter, r *http.Request, dst any) *errs.CustomError {
	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		return errs.NewError(errs.ErrUnsupportedMediaType)
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodySize)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.NewError(errs.ErrRequestEntityTooLarge)
		}
		return errs.NewError(errs.ErrInvalidJSONFormat)
	}

	if decoder.More() {
		return errs.NewError(errs.ErrExtraContentInBody)
	}

	return nil
}

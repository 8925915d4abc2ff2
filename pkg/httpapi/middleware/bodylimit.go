package middleware

import (
	"errors"
	"net/http"
)

// BodyLimit caps the request body at maxBytes, per spec.md §4.10. The
// actual 413 is produced by the handler's body read: http.MaxBytesReader
// makes the first read past the limit return an *http.MaxBytesError,
// which handlers translate via IsBodyTooLarge.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsBodyTooLarge reports whether err was caused by a request body
// exceeding the limit BodyLimit installed.
func IsBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

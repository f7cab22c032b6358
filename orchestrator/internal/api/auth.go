package api

import (
	"crypto/subtle"
	"net/http"
)

// APIKey wraps next with API key authentication.
//
// If mode != "apikey" or key == "", every request passes through. Otherwise
// the value of header must equal key; a missing or wrong key gets 401.
func APIKey(mode, header, key string, next http.Handler) http.Handler {
	if mode != "apikey" || key == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(header)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			jsonErr(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

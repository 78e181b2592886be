package httpx

import (
	"errors"
	"net/http"
)

// ErrUnauthorized marks requests with no usable caller identity. Domain
// packages keep their own typed errors; this one belongs to the HTTP
// boundary itself.
var ErrUnauthorized = errors.New("unauthorized")

// RespondError renders boundary errors as RFC7807 problems. Anything it does
// not recognize becomes a bare 500 so internals never leak to clients.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/siteselect/internal/auth"
	"github.com/sells-group/siteselect/internal/store"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// Envelope wraps every data endpoint response.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeOK(w http.ResponseWriter, data any, message string) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data, Message: message})
}

func writeFail(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

// writeError maps err to a status and a client-safe message. Unexpected
// errors are logged and reported as a 500 with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeFail(w, status, msg)
}

func statusFor(err error) (int, string) {
	if v, ok := auth.IsValidation(err); ok {
		return http.StatusBadRequest, v.Msg
	}
	switch {
	case eris.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "Incorrect email or password"
	case eris.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "Could not validate credentials"
	case eris.Is(err, auth.ErrInactiveUser):
		return http.StatusForbidden, "Inactive user"
	case eris.Is(err, auth.ErrEmailTaken):
		return http.StatusBadRequest, "Email already registered"
	case eris.Is(err, auth.ErrUsernameTaken):
		return http.StatusBadRequest, "Username already taken"
	case eris.Is(err, auth.ErrInvalidResetToken):
		return http.StatusBadRequest, "Invalid or expired reset token"
	case eris.Is(err, auth.ErrGoogleDisabled):
		return http.StatusServiceUnavailable, "Google sign-in is not configured"
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Not found"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// decodeJSON reads a JSON body into v. An empty body leaves v unchanged.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !eris.Is(err, io.EOF) {
		writeFail(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

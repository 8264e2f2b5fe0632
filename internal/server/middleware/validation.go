package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/agentfleet/agentfleet/internal/a2a"
	apperrors "github.com/agentfleet/agentfleet/internal/errors"
)

// DefaultMaxMessageChars caps each message text part.
const DefaultMaxMessageChars = 50000

// envelope is the loosely typed view of a JSON-RPC request used for checks.
type envelope struct {
	JSONRPC any             `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  any             `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Validation rejects malformed JSON-RPC POST bodies with protocol errors
// before they reach a handler. Empty bodies and public paths pass through.
// The body is restored for downstream readers.
func Validation(maxChars int) func(http.Handler) http.Handler {
	if maxChars <= 0 {
		maxChars = DefaultMaxMessageChars
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || isPublic(r.URL.Path) || r.URL.Path == AdminSignalPath || r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					RejectTooLarge(w, r, tooLarge.Limit)
					return
				}
				apperrors.RespondRPCError(w, r, http.StatusBadRequest, nil, a2a.CodeParseError, "Parse error")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if len(bytes.TrimSpace(body)) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			var req envelope
			if err := json.Unmarshal(body, &req); err != nil {
				var typeErr *json.UnmarshalTypeError
				if errors.As(err, &typeErr) {
					// valid JSON that is not an object
					apperrors.RespondRPCError(w, r, http.StatusBadRequest, nil, a2a.CodeInvalidRequest, "Invalid Request: missing jsonrpc 2.0")
					return
				}
				apperrors.RespondRPCError(w, r, http.StatusBadRequest, nil, a2a.CodeParseError, "Parse error")
				return
			}

			if version, _ := req.JSONRPC.(string); version != a2a.Version {
				apperrors.RespondRPCError(w, r, http.StatusBadRequest, req.ID, a2a.CodeInvalidRequest, "Invalid Request: missing jsonrpc 2.0")
				return
			}

			method, _ := req.Method.(string)
			if !a2a.SupportedMethods[method] {
				apperrors.RespondRPCError(w, r, http.StatusBadRequest, req.ID, a2a.CodeMethodNotFound, "Method not found: "+methodName(req.Method))
				return
			}

			if tooLong(req.Params, maxChars) {
				apperrors.RespondRPCError(w, r, http.StatusBadRequest, req.ID, a2a.CodeInvalidParams,
					fmt.Sprintf("Message text exceeds %d characters", maxChars))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// tooLong reports whether any params.message.parts[].text string exceeds max
// characters. Shapes that do not match are left to the handler.
func tooLong(raw json.RawMessage, max int) bool {
	if len(raw) == 0 {
		return false
	}
	var params struct {
		Message struct {
			Parts []any `json:"parts"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return false
	}
	for _, rawPart := range params.Message.Parts {
		part, ok := rawPart.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := part["text"].(string); ok && utf8.RuneCountInString(text) > max {
			return true
		}
	}
	return false
}

func methodName(method any) string {
	switch m := method.(type) {
	case nil:
		return ""
	case string:
		return m
	default:
		return fmt.Sprint(m)
	}
}

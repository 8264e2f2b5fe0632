package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/agentfleet/agentfleet/internal/correlation"
	apperrors "github.com/agentfleet/agentfleet/internal/errors"
	"github.com/agentfleet/agentfleet/internal/metrics"
)

// Recovery middleware recovers from panics and answers 500
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			// Recovery runs before the correlation stage, so the ID is the
			// one already echoed on the response.
			cid := w.Header().Get(correlation.Header)
			if cid == "" {
				cid = correlation.FromContext(r.Context())
			}

			panicErr := errors.NewErrorEnvelope(apperrors.CodeInternal, fmt.Sprintf("panic: %v", rec)).
				WithCorrelationID(cid)
			panicErr, _ = panicErr.WithContext(map[string]interface{}{
				"stack_trace": string(debug.Stack()),
			})
			panicErr, _ = panicErr.WithSeverity(errors.SeverityCritical)

			metrics.RecordPanic()

			apperrors.RespondWithEnvelope(w, r, panicErr)
		}()

		next.ServeHTTP(w, r)
	})
}

package admin

import (
	"net/http"
	"strconv"
	"time"
)

// loggingResponseWriter captures the status code.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

// withMiddleware wraps the mux with panic recovery, request logging and
// request metrics.
func (a *API) withMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				a.log.Error("admin handler panic", "method", r.Method, "path", r.URL.Path, "panic", rec)
				lrw.statusCode = http.StatusInternalServerError
				writeError(w, http.StatusInternalServerError, "internal_error", ErrMsgInternalError)
			}
			a.hub.AdminRequest(r.Method, strconv.Itoa(lrw.statusCode))
			a.log.Debug("admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lrw.statusCode,
				"duration", time.Since(start),
			)
		}()

		handler.ServeHTTP(lrw, r)
	})
}

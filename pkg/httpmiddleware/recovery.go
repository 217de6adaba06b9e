package httpmiddleware

import (
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Recovery turns a handler panic into a 500 INTERNAL envelope and one error
// log entry. It runs outermost, before the request logger is injected, so it
// logs through lg.
//
// http.ErrAbortHandler is re-raised so net/http can drop the connection
// quietly. When the handler already started the response only the log entry
// is written.
func Recovery(lg *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				lg.Error("Panic recovered",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("request_id", ww.Header().Get(RequestIDHeader)),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				if ww.Status() != 0 {
					return
				}
				ww.Header().Set("Connection", "close")
				writeError(ww, http.StatusInternalServerError, "INTERNAL", "internal server error")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

package httpmiddleware

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// panicBody matches the API error envelope.
type panicBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// startedWriter remembers whether the handler began its response.
type startedWriter struct {
	http.ResponseWriter
	started bool
}

func (w *startedWriter) WriteHeader(code int) {
	w.started = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *startedWriter) Write(b []byte) (int, error) {
	w.started = true
	return w.ResponseWriter.Write(b)
}

func (w *startedWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Recovery turns a handler panic into a logged 500. If the handler already
// started writing, the connection is closed and nothing more is sent.
// http.ErrAbortHandler is re-raised untouched.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &startedWriter{ResponseWriter: w}
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				zctx.From(r.Context()).Error("Panic recovered",
					zap.Any("panic", rec),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Bool("response_started", sw.started),
					zap.Stack("stack"),
				)
				if sw.started {
					panic(http.ErrAbortHandler)
				}
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(panicBody{
					Code:    http.StatusInternalServerError,
					Message: "internal server error",
				})
			}()
			next.ServeHTTP(sw, r)
		})
	}
}

package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"

	"github.com/zapgate/zapgate/internal/audit"
	"github.com/zapgate/zapgate/internal/store"
)

// TraceHeader carries the trace id back to the client for debugging.
const TraceHeader = "X-Trace-ID"

// maxCapturedBody caps how much request/response body the audit middleware
// buffers per exchange.
const maxCapturedBody = 64 * 1024

// Audit returns the outermost middleware: it creates the per-request audit
// recorder, starts the timer, exposes the trace id as a response header,
// and persists exactly one inbound log entry after the response is
// written. Paths in excluded are not logged at all.
func Audit(st *store.Store, logger *slog.Logger, excluded []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(excluded))
	for _, p := range excluded {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			rec := audit.NewRecorder(st, logger)
			rec.StartTimer()

			info := &RequestInfo{Recorder: rec}
			ctx := WithRequestInfo(r.Context(), info)
			r = r.WithContext(ctx)

			w.Header().Set(TraceHeader, rec.TraceID())

			reqBody := drainBody(r)
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(cw, r)

			rec.LogInbound(ctx, r, reqBody, audit.ResponseCapture{
				StatusCode: cw.status,
				Headers:    cw.Header(),
				Body:       cw.body.Bytes(),
			}, info.Action, info.Identity(), "")
		})
	}
}

// drainBody reads and restores the request body so both the handler and
// the audit entry can see it.
func drainBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCapturedBody))
	r.Body.Close()
	if err != nil {
		r.Body = http.NoBody
		return nil
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

// captureWriter records the status code and a bounded copy of the response
// body while passing everything through.
type captureWriter struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (w *captureWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *captureWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.body.Len() < maxCapturedBody {
		remain := maxCapturedBody - w.body.Len()
		if len(b) <= remain {
			w.body.Write(b)
		} else {
			w.body.Write(b[:remain])
		}
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter, required for http.Flusher
// and other interface assertions through middleware chains.
func (w *captureWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

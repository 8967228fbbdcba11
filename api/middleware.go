package api

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/gorilla/handlers"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/localpass/site-backend/metrics"
)

func (api *API) middleware(mux *http.ServeMux) http.Handler {
	var h http.Handler = mux
	if len(api.AllowedOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(api.AllowedOrigins),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
			handlers.AllowedHeaders([]string{"Content-Type"}),
		)(h)
	}
	return handlers.LoggingHandler(os.Stdout, recoveryHandler(h))
}

// throttleHandler limits each client IP to api.Rate. Each call gets its own
// store, so endpoints are limited independently. The client IP is taken from
// X-Forwarded-For only when api.TrustForwardHeader is set.
func (api *API) throttleHandler(f http.Handler) http.Handler {
	if api.Rate.Limit <= 0 {
		return f
	}
	rateLimitStore := memory.NewStore()
	rateLimiter := stdlib.NewMiddleware(
		limiter.New(rateLimitStore, api.Rate, limiter.WithTrustForwardHeader(api.TrustForwardHeader)),
		stdlib.WithLimitReachedHandler(limitReached),
		stdlib.WithErrorHandler(limiterError),
	)
	return rateLimiter.Handler(f)
}

func limitReached(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, response{StatusCode: http.StatusTooManyRequests,
		Message: "Too many requests, please try again later"})
}

func limiterError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("rate limiter: %v", err)
	writeJSON(w, unexpected(err))
}

// recoveryHandler turns a panic into a 500 JSON response and reports it.
func recoveryHandler(f http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			rval := recover()
			if rval == nil {
				return
			}
			if rval == http.ErrAbortHandler {
				panic(rval)
			}
			message := "Unexpected error"
			switch v := rval.(type) {
			case error:
				message = v.Error()
				packet := raven.NewPacket(message, raven.NewException(v, raven.GetOrNewStacktrace(v, 2, 3, nil)), raven.NewHttp(r))
				raven.Capture(packet, nil)
			case string:
				message = v
				raven.CaptureMessage(fmt.Sprintf("panic: %s", v), nil, raven.NewHttp(r))
			default:
				raven.CaptureMessage(fmt.Sprintf("panic: %v", v), nil, raven.NewHttp(r))
			}
			if rw.wroteHeader {
				return
			}
			writeJSON(w, serverError("%s", message))
		}()

		f.ServeHTTP(rw, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code and
// whether the response has started.
type statusRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// instrument records request count and latency for the named handler.
func instrument(name string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		metrics.HTTPRequestDuration.WithLabelValues(name, r.Method).Observe(time.Since(start).Seconds())
		metrics.HTTPRequestsTotal.WithLabelValues(name, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

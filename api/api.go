package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	raven "github.com/getsentry/raven-go"
	"github.com/ulule/limiter/v3"

	"github.com/localpass/site-backend/captcha"
)

////////////////////////////////
//  *****   REST API   *****  //
////////////////////////////////

// Maximum accepted size of an inbound submission body.
const maxBodySize = 64 * 1024

// API is the HTTP API that this service provides.
// Error responses are JSON objects with a single "message" field that the
// site shows to the visitor verbatim. Successful submissions respond with
// {"ok": true}.
type API struct {
	// Captcha verifies Turnstile tokens. Nil disables the captcha step and
	// the token requirement.
	Captcha CaptchaVerifier
	Relay   FormRelay

	FormID       string
	StudioFormID string // Empty disables /api/join-studio.
	SiteKey      string

	AllowedOrigins []string
	// Rate limits each submission endpoint per client IP. A zero Limit
	// disables throttling.
	Rate limiter.Rate
	// TrustForwardHeader takes the client IP from X-Forwarded-For. Only set
	// it behind a proxy that overwrites the header.
	TrustForwardHeader bool
}

// CaptchaVerifier interface wraps a bot-verification back-end.
type CaptchaVerifier interface {
	// Verify checks a client token. A rejected token is not an error.
	Verify(ctx context.Context, token string) (captcha.Result, error)
}

// FormRelay interface wraps the service that durably collects submissions.
type FormRelay interface {
	// Submit forwards payload to the form identified by formID.
	Submit(ctx context.Context, formID string, payload interface{}) error
}

type response struct {
	StatusCode int         `json:"-"`
	Message    string      `json:"message,omitempty"`
	OK         bool        `json:"ok,omitempty"`
	Response   interface{} `json:"-"` // Written instead of the envelope when set.

	submissionID string
}

type apiHandler func(r *http.Request) response

func (api *API) wrapper(handler apiHandler) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		response := handler(r)
		if response.StatusCode == http.StatusInternalServerError {
			tags := map[string]string{}
			if response.submissionID != "" {
				tags["submission_id"] = response.submissionID
			}
			packet := raven.NewPacket(response.Message, raven.NewHttp(r))
			raven.Capture(packet, tags)
		}
		writeJSON(w, response)
	}
}

func pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
}

// RegisterHandlers binds API functions to the given http server,
// and returns the resulting handler.
func (api *API) RegisterHandlers(mux *http.ServeMux) http.Handler {
	mux.Handle("/api/subscribe", instrument("subscribe",
		api.throttleHandler(http.HandlerFunc(api.wrapper(api.subscribe)))))
	if api.StudioFormID != "" {
		mux.Handle("/api/join-studio", instrument("join-studio",
			api.throttleHandler(http.HandlerFunc(api.wrapper(api.joinStudio)))))
	}
	mux.Handle("/api/captcha", instrument("captcha", http.HandlerFunc(api.wrapper(api.captchaConfig))))
	mux.Handle("/api/ping", instrument("ping", http.HandlerFunc(pingHandler)))
	return api.middleware(mux)
}

// captchaConfig is the handler for /api/captcha
//   GET /api/captcha
//        Returns whether submissions need a Turnstile token and the public
//        site key to render the widget with.
func (api *API) captchaConfig(r *http.Request) response {
	if r.Method != http.MethodGet {
		return response{StatusCode: http.StatusMethodNotAllowed,
			Message: "/api/captcha only accepts GET requests"}
	}
	return response{
		StatusCode: http.StatusOK,
		Response: struct {
			Enabled bool   `json:"enabled"`
			SiteKey string `json:"site_key"`
		}{api.Captcha != nil, api.SiteKey},
	}
}

// Writes `apiResponse` as a JSON object to http.ResponseWriter `w`. If an
// error occurs, writes `http.StatusInternalServerError` to `w`.
func writeJSON(w http.ResponseWriter, apiResponse response) {
	var v interface{} = apiResponse
	if apiResponse.Response != nil {
		v = apiResponse.Response
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("could not format JSON response: %v", err)
		b = []byte(`{"message": "Unexpected error"}`)
		apiResponse.StatusCode = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(apiResponse.StatusCode)
	fmt.Fprintf(w, "%s\n", b)
}

func badRequest(format string, a ...interface{}) response {
	return response{
		StatusCode: http.StatusBadRequest,
		Message:    fmt.Sprintf(format, a...),
	}
}

func serverError(format string, a ...interface{}) response {
	return response{
		StatusCode: http.StatusInternalServerError,
		Message:    fmt.Sprintf(format, a...),
	}
}

// unexpected converts an error nobody planned for into a 500 carrying its
// text.
func unexpected(err error) response {
	if err == nil || err.Error() == "" {
		return serverError("Unexpected error")
	}
	return serverError("%s", err.Error())
}

// NewRate returns a limiter.Rate of limit requests per period.
func NewRate(limit int64, period time.Duration) limiter.Rate {
	return limiter.Rate{Period: period, Limit: limit}
}

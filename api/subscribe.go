package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/localpass/site-backend/metrics"
	"github.com/localpass/site-backend/models"
	"github.com/localpass/site-backend/relay"
	"github.com/localpass/site-backend/util"
)

// Subscribe is the handler for /api/subscribe
//   POST /api/subscribe
//        email: Address to sign up.
//        token: Turnstile token. Required when captcha is enabled.
//        Accepts a JSON object or form-encoded values. Responds {"ok": true}.
func (api *API) subscribe(r *http.Request) response {
	if r.Method != http.MethodPost {
		return response{StatusCode: http.StatusMethodNotAllowed,
			Message: "/api/subscribe only accepts POST requests"}
	}
	values, err := bodyValues(r)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("subscribe", metrics.OutcomeError).Inc()
		return unexpected(err)
	}
	return api.process(r, "subscribe", api.FormID, models.SubmissionFromForm(values))
}

// JoinStudio is the handler for /api/join-studio
//   POST /api/join-studio
//        email, businessName, contactName: required.
//        phone, location, bookingSoftware, message: optional.
//        token: Turnstile token. Required when captcha is enabled.
func (api *API) joinStudio(r *http.Request) response {
	if r.Method != http.MethodPost {
		return response{StatusCode: http.StatusMethodNotAllowed,
			Message: "/api/join-studio only accepts POST requests"}
	}
	values, err := bodyValues(r)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues("join-studio", metrics.OutcomeError).Inc()
		return unexpected(err)
	}
	return api.process(r, "join-studio", api.StudioFormID, models.StudioApplicationFromForm(values))
}

// process runs a decoded form through validation, captcha verification and
// the relay, stopping at the first failure.
func (api *API) process(r *http.Request, name string, formID string, form models.Form) response {
	id := uuid.New().String()
	outcome := func(o string) { metrics.SubmissionsTotal.WithLabelValues(name, o).Inc() }

	if msg := form.Validate(); msg != "" {
		outcome(metrics.OutcomeMissingField)
		return badRequest("%s", msg)
	}

	if api.Captcha != nil {
		token := form.CaptchaToken()
		if token == "" {
			outcome(metrics.OutcomeCaptchaMissing)
			return badRequest("Captcha token missing")
		}
		result, err := api.Captcha.Verify(r.Context(), token)
		if err != nil {
			log.Printf("%s %s: captcha verification error: %v", name, id, err)
			outcome(metrics.OutcomeError)
			resp := unexpected(err)
			resp.submissionID = id
			return resp
		}
		if !result.Success {
			log.Printf("%s %s: captcha rejected %v", name, id, result.ErrorCodes)
			outcome(metrics.OutcomeCaptchaFailed)
			return badRequest("Captcha verification failed")
		}
	}

	err := api.Relay.Submit(r.Context(), formID, form.RelayPayload())
	if err != nil {
		log.Printf("%s %s: relay failed for domain %s: %v", name, id, util.EmailDomain(form.ContactEmail()), err)
		var relayErr *relay.Error
		var resp response
		if errors.As(err, &relayErr) {
			outcome(metrics.OutcomeRelayError)
			resp = serverError("Formspree error: %s", relayErr.Body)
		} else {
			outcome(metrics.OutcomeError)
			resp = unexpected(err)
		}
		resp.submissionID = id
		return resp
	}

	log.Printf("%s %s: relayed submission for domain %s", name, id, util.EmailDomain(form.ContactEmail()))
	outcome(metrics.OutcomeOK)
	return response{StatusCode: http.StatusOK, OK: true}
}

// bodyValues reads the submitted fields from a form-encoded or JSON body.
func bodyValues(r *http.Request) (url.Values, error) {
	if isFormEncoded(r) {
		if err := parseFormBody(r); err != nil {
			return nil, err
		}
		return r.PostForm, nil
	}
	return decodeJSON(r)
}

// isFormEncoded reports whether the body carries form values rather than JSON.
func isFormEncoded(r *http.Request) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data"
}

// parseFormBody populates r.PostForm from either form encoding.
func parseFormBody(r *http.Request) error {
	err := r.ParseMultipartForm(maxBodySize)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}

// decodeJSON reads the string members of a JSON object body. Members of any
// other type, and bodies that are empty or not an object, yield no values so
// validation reports the missing field. Only syntactically invalid JSON is an
// error.
func decodeJSON(r *http.Request) (url.Values, error) {
	var body interface{}
	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return url.Values{}, nil
	}
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	fields, _ := body.(map[string]interface{})
	for name, v := range fields {
		if str, ok := v.(string); ok {
			values.Set(name, str)
		}
	}
	return values, nil
}

package models

import "net/url"

// TokenFormField is the hidden input the Turnstile widget adds to forms.
const TokenFormField = "cf-turnstile-response"

// Form is a submission that can be validated and relayed downstream.
type Form interface {
	// Validate returns a user-facing message naming the first missing
	// required field, or "" if the form is complete.
	Validate() string
	// CaptchaToken returns the client-supplied verification token.
	CaptchaToken() string
	// ContactEmail returns the submitter's email address.
	ContactEmail() string
	// RelayPayload is what gets forwarded to the form service. It never
	// includes the captcha token.
	RelayPayload() interface{}
}

// MsgEmailRequired is returned for a submission without an email.
const MsgEmailRequired = "Email is required"

// Submission is a newsletter signup. It lives for a single request.
type Submission struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// SubmissionFromForm reads a Submission from form-encoded values.
func SubmissionFromForm(values url.Values) *Submission {
	s := &Submission{
		Email: values.Get("email"),
		Token: values.Get("token"),
	}
	if s.Token == "" {
		s.Token = values.Get(TokenFormField)
	}
	return s
}

// Validate implements Form.
func (s *Submission) Validate() string {
	if s.Email == "" {
		return MsgEmailRequired
	}
	return ""
}

// CaptchaToken implements Form.
func (s *Submission) CaptchaToken() string { return s.Token }

// ContactEmail implements Form.
func (s *Submission) ContactEmail() string { return s.Email }

// RelayPayload implements Form.
func (s *Submission) RelayPayload() interface{} {
	return struct {
		Email string `json:"email"`
	}{s.Email}
}

package models

import "net/url"

// StudioApplication is a request from a studio to join the network.
type StudioApplication struct {
	BusinessName    string `json:"businessName"`
	ContactName     string `json:"contactName"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	Location        string `json:"location"`
	BookingSoftware string `json:"bookingSoftware"`
	Message         string `json:"message"`
	Token           string `json:"token"`
}

// studioRelay mirrors StudioApplication minus the token.
type studioRelay struct {
	BusinessName    string `json:"businessName"`
	ContactName     string `json:"contactName"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Location        string `json:"location,omitempty"`
	BookingSoftware string `json:"bookingSoftware,omitempty"`
	Message         string `json:"message,omitempty"`
}

// StudioApplicationFromForm reads a StudioApplication from form-encoded values.
func StudioApplicationFromForm(values url.Values) *StudioApplication {
	a := &StudioApplication{
		BusinessName:    values.Get("businessName"),
		ContactName:     values.Get("contactName"),
		Email:           values.Get("email"),
		Phone:           values.Get("phone"),
		Location:        values.Get("location"),
		BookingSoftware: values.Get("bookingSoftware"),
		Message:         values.Get("message"),
		Token:           values.Get("token"),
	}
	if a.Token == "" {
		a.Token = values.Get(TokenFormField)
	}
	return a
}

// Validate implements Form.
func (a *StudioApplication) Validate() string {
	switch {
	case a.Email == "":
		return MsgEmailRequired
	case a.BusinessName == "":
		return "Business name is required"
	case a.ContactName == "":
		return "Contact name is required"
	}
	return ""
}

// CaptchaToken implements Form.
func (a *StudioApplication) CaptchaToken() string { return a.Token }

// ContactEmail implements Form.
func (a *StudioApplication) ContactEmail() string { return a.Email }

// RelayPayload implements Form.
func (a *StudioApplication) RelayPayload() interface{} {
	return studioRelay{
		BusinessName:    a.BusinessName,
		ContactName:     a.ContactName,
		Email:           a.Email,
		Phone:           a.Phone,
		Location:        a.Location,
		BookingSoftware: a.BookingSoftware,
		Message:         a.Message,
	}
}

package api

import (
	"net/http"
	"testing"
)

const validStudioApplication = `{
	"businessName": "Sunrise Yoga",
	"contactName": "Sam Rivera",
	"email": "owner@sunrise.example",
	"phone": "555-0100",
	"location": "Brooklyn, NY",
	"bookingSoftware": "Mindbody",
	"message": "We'd love to join.",
	"token": "tok"
}`

func TestJoinStudioValidationOrder(t *testing.T) {
	u := newUpstreams(t)
	server := serve(t, testAPI(u))

	tests := []struct {
		body    string
		message string
	}{
		{`{"businessName": "Sunrise Yoga", "contactName": "Sam"}`, "Email is required"},
		{`{"email": "owner@sunrise.example", "contactName": "Sam"}`, "Business name is required"},
		{`{"email": "owner@sunrise.example", "businessName": 7, "contactName": "Sam"}`, "Business name is required"},
		{`{"email": "owner@sunrise.example", "businessName": "Sunrise Yoga"}`, "Contact name is required"},
		{`{"email": "owner@sunrise.example", "businessName": "Sunrise Yoga", "contactName": "Sam"}`, "Captcha token missing"},
	}
	for _, test := range tests {
		status, obj := postJSON(t, server, "/api/join-studio", test.body)
		if status != http.StatusBadRequest {
			t.Errorf("POST %s: expected 400, got %d", test.body, status)
		}
		expectMessage(t, obj, test.message)
	}
	if u.captchaCalls() != 0 || u.relayCalls() != 0 {
		t.Errorf("no upstream calls expected, got captcha=%d relay=%d", u.captchaCalls(), u.relayCalls())
	}
}

func TestJoinStudioRelaysApplication(t *testing.T) {
	u := newUpstreams(t)
	server := serve(t, testAPI(u))

	status, obj := postJSON(t, server, "/api/join-studio", validStudioApplication)
	if status != http.StatusOK || obj["ok"] != true {
		t.Fatalf("expected 200 {\"ok\": true}, got %d %v", status, obj)
	}
	path, payload := u.relayed(0)
	if path != "/f/"+cfg.FormspreeStudioFormID {
		t.Errorf("relayed to %s", path)
	}
	if _, ok := payload["token"]; ok {
		t.Errorf("token must not be relayed: %v", payload)
	}
	if payload["businessName"] != "Sunrise Yoga" || payload["bookingSoftware"] != "Mindbody" {
		t.Errorf("unexpected payload %v", payload)
	}
}

func TestJoinStudioRelayError(t *testing.T) {
	u := newUpstreams(t)
	u.configure(func(u *upstreams) {
		u.relayStatus = http.StatusBadRequest
		u.relayBody = `{"error":"form not found"}`
	})
	server := serve(t, testAPI(u))

	status, obj := postJSON(t, server, "/api/join-studio", validStudioApplication)
	if status != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", status)
	}
	expectMessage(t, obj, `Formspree error: {"error":"form not found"}`)
}

func TestJoinStudioDisabledWithoutFormID(t *testing.T) {
	api := testAPI(newUpstreams(t))
	api.StudioFormID = ""
	server := serve(t, api)

	resp, err := http.Post(server.URL+"/api/join-studio", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 when no studio form is configured, got %d", resp.StatusCode)
	}
}

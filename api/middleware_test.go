package api

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/localpass/site-backend/metrics"
)

func TestPanicRecovery(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Expected server to handle panic")
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/panic", panickingHandler)
	panicServer := httptest.NewServer(testAPI(newUpstreams(t)).RegisterHandlers(mux))
	defer panicServer.Close()

	resp, err := http.Get(fmt.Sprintf("%s/panic", panicServer.URL))
	if err != nil {
		t.Fatalf("Request to panic endpoint failed: %s\n", err)
	}
	status, obj := decodeResponse(t, resp)
	if status != http.StatusInternalServerError {
		t.Errorf("Expected server to respond with 500, got %d", status)
	}
	expectMessage(t, obj, "oh no")
}

func panickingHandler(w http.ResponseWriter, r *http.Request) {
	panic(fmt.Errorf("oh no"))
}

func TestAllowedOrigins(t *testing.T) {
	api := testAPI(newUpstreams(t))
	api.AllowedOrigins = []string{"https://foo.example.com", "https://bar.example.com"}
	server := serve(t, api)

	// Allowed domain should get CORS header
	req, err := http.NewRequest("GET", server.URL+"/api/ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("origin", "https://foo.example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	corsHeader := resp.Header["Access-Control-Allow-Origin"]
	if len(corsHeader) != 1 || corsHeader[0] != "https://foo.example.com" {
		t.Error("Expected CORS header to be set for allowed domain")
	}

	// Disallowed domain should not get CORS header
	req, err = http.NewRequest("GET", server.URL+"/api/ping", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("origin", "https://baz.example.com")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.Header["Access-Control-Allow-Origin"] != nil {
		t.Error("Expected CORS header not to be set for disallowed domain")
	}
}

func TestPreflight(t *testing.T) {
	api := testAPI(newUpstreams(t))
	api.AllowedOrigins = []string{"https://foo.example.com"}
	server := serve(t, api)

	req, err := http.NewRequest(http.MethodOptions, server.URL+"/api/subscribe", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://foo.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected preflight to succeed, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "https://foo.example.com" {
		t.Errorf("Expected CORS header on preflight, got %v", resp.Header)
	}
}

func TestThrottle(t *testing.T) {
	api := testAPI(newUpstreams(t))
	api.Rate = NewRate(1, time.Minute)
	server := serve(t, api)

	status, _ := postJSON(t, server, "/api/subscribe", `{}`)
	if status != http.StatusBadRequest {
		t.Fatalf("first request should reach the handler, got %d", status)
	}
	status, obj := postJSON(t, server, "/api/subscribe", `{}`)
	if status != http.StatusTooManyRequests {
		t.Errorf("second request should be throttled, got %d", status)
	}
	expectMessage(t, obj, "Too many requests, please try again later")

	// Other endpoints are not throttled.
	resp, err := http.Get(server.URL + "/api/captcha")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /api/captcha should not be throttled, got %d", resp.StatusCode)
	}
}

// postFrom posts an empty JSON object claiming to be forwarded for ip.
func postFrom(t *testing.T, server *httptest.Server, ip string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/subscribe", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", ip)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	status, _ := decodeResponse(t, resp)
	return status
}

func TestThrottleIgnoresForwardedForByDefault(t *testing.T) {
	api := testAPI(newUpstreams(t))
	api.Rate = NewRate(1, time.Minute)
	server := serve(t, api)

	if status := postFrom(t, server, "203.0.113.1"); status != http.StatusBadRequest {
		t.Fatalf("first request should reach the handler, got %d", status)
	}
	if status := postFrom(t, server, "203.0.113.2"); status != http.StatusTooManyRequests {
		t.Errorf("a spoofed X-Forwarded-For should not get a fresh bucket, got %d", status)
	}
}

func TestThrottleTrustsForwardedFor(t *testing.T) {
	api := testAPI(newUpstreams(t))
	api.Rate = NewRate(1, time.Minute)
	api.TrustForwardHeader = true
	server := serve(t, api)

	if status := postFrom(t, server, "203.0.113.1"); status != http.StatusBadRequest {
		t.Fatalf("first request should reach the handler, got %d", status)
	}
	if status := postFrom(t, server, "203.0.113.2"); status != http.StatusBadRequest {
		t.Errorf("a different forwarded client should have its own bucket, got %d", status)
	}
	if status := postFrom(t, server, "203.0.113.1"); status != http.StatusTooManyRequests {
		t.Errorf("repeat client should be throttled, got %d", status)
	}
}

func TestPanicAfterWrite(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/partial", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, "partial")
		panic("too late")
	})
	server := httptest.NewServer(testAPI(newUpstreams(t)).RegisterHandlers(mux))
	defer server.Close()

	resp, err := http.Get(server.URL + "/partial")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted || string(body) != "partial" {
		t.Errorf("response already started should be left alone, got %d %q", resp.StatusCode, body)
	}
}

func TestMetricsNotOnSiteMux(t *testing.T) {
	server := serve(t, testAPI(newUpstreams(t)))
	resp, err := http.Get(server.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("metrics should not be exposed on the site mux, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server := serve(t, testAPI(newUpstreams(t)))
	metricsServer := httptest.NewServer(metrics.Handler())
	defer metricsServer.Close()

	if status, obj := postJSON(t, server, "/api/subscribe", `{"email": "someone@example.com", "token": "tok"}`); status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, obj)
	}
	resp, err := http.Get(metricsServer.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`subscribe_submissions_total{form="subscribe",outcome="ok"}`,
		`http_requests_total{handler="subscribe",method="POST",status="200"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("expected %s in /metrics output", want)
		}
	}
}

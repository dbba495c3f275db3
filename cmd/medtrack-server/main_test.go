package main

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/config"
	"github.com/medtrack/medtrack/internal/domain/followup"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:                      "development",
		CORSOrigins:              []string{"http://localhost:3000"},
		RedThresholdDays:         14,
		LookaheadDays:            7,
		SurveillanceIntervalDays: 90,
		ANCGraceDays:             7,
		ANCMilestoneWeeks:        "12,20,28,36",
	}
}

func TestResolveSigningKey_FromHex(t *testing.T) {
	want := make([]byte, 32)
	for i := range want {
		want[i] = byte(i)
	}
	key, err := resolveSigningKey(hex.EncodeToString(want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hex.EncodeToString(key) != hex.EncodeToString(want) {
		t.Errorf("key mismatch: got %x, want %x", key, want)
	}
}

func TestResolveSigningKey_Empty(t *testing.T) {
	key, err := resolveSigningKey("")
	if err != nil || key != nil {
		t.Fatalf("expected nil key and nil error, got %x, %v", key, err)
	}
}

func TestResolveSigningKey_Invalid(t *testing.T) {
	if _, err := resolveSigningKey("not-valid-hex!!!"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := resolveSigningKey("abcd"); err == nil {
		t.Fatal("expected error for a short key")
	}
}

func TestParseAsOf(t *testing.T) {
	clock := func() time.Time { return time.Date(2024, 3, 5, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800)) }

	got, err := parseAsOf("", clock)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(followup.Date(2024, time.March, 5)) {
		t.Errorf("expected local calendar date 2024-03-05, got %s", got)
	}

	got, err = parseAsOf("2024-01-31", clock)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(followup.Date(2024, time.January, 31)) {
		t.Errorf("unexpected date %s", got)
	}

	if _, err := parseAsOf("31/01/2024", clock); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestRouter_RegistersRoutes(t *testing.T) {
	a, err := newApp(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	e, err := a.router()
	if err != nil {
		t.Fatal(err)
	}

	have := map[string]bool{}
	for _, r := range e.Routes() {
		have[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /health/db",
		"POST /api/v1/patients",
		"GET /api/v1/cases",
		"POST /api/v1/cases",
		"PUT /api/v1/cases/:id/pathway",
		"POST /api/v1/cases/:id/close",
		"POST /api/v1/tasks/:id/complete",
		"GET /api/v1/cases/:id/calls",
		"GET /api/v1/settings/roles",
		"GET /api/v1/dashboard",
	} {
		if !have[want] {
			t.Errorf("route %s not registered", want)
		}
	}
}

func TestRouter_Health(t *testing.T) {
	a, err := newApp(testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	e, err := a.router()
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRouter_JWTModeRejectsAnonymous(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "production"
	cfg.AuthIssuer = "https://idp.example"
	cfg.AuthSignKey = hex.EncodeToString(make([]byte, 32))

	a, err := newApp(cfg, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	e, err := a.router()
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected /health to stay public, got %d", rec.Code)
	}
}

func TestNewApp_RejectsBadPolicy(t *testing.T) {
	cfg := testConfig()
	cfg.ANCMilestoneWeeks = "12,12"
	if _, err := newApp(cfg, nil, zerolog.Nop()); err == nil {
		t.Fatal("expected error for duplicate milestone weeks")
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/dispatch-engine/internal/config"
	"github.com/example/dispatch-engine/internal/logging"
	"github.com/example/dispatch-engine/internal/models"
)

func testConfig() config.ServerConfig {
	// no backends configured: everything runs in memory
	return config.ServerConfig{
		RadiiKm:            []float64{5, 10, 15, 20},
		HeartbeatFreshness: 10 * time.Minute,
		WalletMinBalance:   0,
		MaxUnpaid:          1,
		MaxCandidates:      8,
		AvgSpeedKmh:        30,

		SweepMaxAgeTransport:   30 * time.Minute,
		SweepMaxAgeDelivery:    30 * time.Minute,
		SweepMaxAgeMarketplace: 24 * time.Hour,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := NewServer(testConfig(), logging.NewLogger("error"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestDispatchUnknownOrderIs404(t *testing.T) {
	s := newTestServer(t)
	w := postJSON(t, s, "/api/v1/dispatch", map[string]any{"order_id": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDispatchFlow(t *testing.T) {
	s := newTestServer(t)
	pickup := models.Coord{Lat: -4.3217, Lon: 15.3069}

	// register a driver 3 km from pickup through the public intake
	loc := postJSON(t, s, "/internal/driver/locations", models.DriverAvailability{
		DriverID:  "d1",
		Loc:       models.Coord{Lat: pickup.Lat + 0.027, Lon: pickup.Lon},
		Class:     models.ClassSedan,
		Services:  []models.OrderType{models.OrderTransport},
		Available: true,
	})
	if loc.Code != http.StatusNoContent {
		t.Fatalf("location intake failed: %d %s", loc.Code, loc.Body.String())
	}

	if err := s.Engine.Orders.SaveOrder(context.Background(), &models.Order{
		ID: "o1", Type: models.OrderTransport, Status: models.StatusPending,
		Pickup: pickup, RequiredClass: models.ClassSedan, RequesterID: "u1",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	w := postJSON(t, s, "/api/v1/dispatch", map[string]any{"order_id": "o1"})
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch failed: %d %s", w.Code, w.Body.String())
	}
	var res struct {
		Candidates []struct {
			DriverID   string  `json:"driver_id"`
			DistanceKm float64 `json:"distance_km"`
		} `json:"candidates"`
		RadiusUsed float64 `json:"radius_used"`
		Total      int     `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.RadiusUsed != 5 || res.Candidates[0].DriverID != "d1" {
		t.Fatalf("unexpected dispatch response: %+v", res)
	}

	// assign the candidate, then a second assign must conflict
	w = postJSON(t, s, "/api/v1/assign", map[string]any{"order_id": "o1", "driver_id": "d1"})
	if w.Code != http.StatusOK {
		t.Fatalf("assign failed: %d %s", w.Code, w.Body.String())
	}
	var ar assignResponse
	if err := json.Unmarshal(w.Body.Bytes(), &ar); err != nil {
		t.Fatal(err)
	}
	if !ar.Success || ar.DriverID != "d1" {
		t.Fatalf("unexpected assign response: %+v", ar)
	}

	w = postJSON(t, s, "/api/v1/assign", map[string]any{"order_id": "o1", "driver_id": "d1"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on the lost race, got %d", w.Code)
	}
}

func TestDispatchNoDriversIs503(t *testing.T) {
	s := newTestServer(t)
	if err := s.Engine.Orders.SaveOrder(context.Background(), &models.Order{
		ID: "o1", Type: models.OrderTransport, Status: models.StatusPending,
		Pickup:        models.Coord{Lat: -4.3217, Lon: 15.3069},
		RequiredClass: models.ClassSedan, RequesterID: "u1",
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}
	w := postJSON(t, s, "/api/v1/dispatch", map[string]any{"order_id": "o1"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("no drivers available")) {
		t.Fatalf("expected a plain retry message, got %s", w.Body.String())
	}
}

func TestSweepEndpoint(t *testing.T) {
	s := newTestServer(t)
	if err := s.Engine.Orders.SaveOrder(context.Background(), &models.Order{
		ID: "late", Type: models.OrderDelivery, Status: models.StatusPending,
		RequesterID: "u1", CreatedAt: time.Now().Add(-31 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}
	w := postJSON(t, s, "/internal/sweep", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sweep failed: %d %s", w.Code, w.Body.String())
	}
	var rep struct {
		Cancelled struct {
			Delivery int `json:"delivery"`
			Total    int `json:"total"`
		} `json:"cancelled"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatal(err)
	}
	if rep.Cancelled.Delivery != 1 || rep.Cancelled.Total != 1 {
		t.Fatalf("unexpected sweep report: %s", w.Body.String())
	}
}

package gridapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/VerdantProject/verdant/pkg/retry"
)

func testClient(serverURL string) *Client {
	return New([]string{"eu-west-2"},
		WithBaseURL(serverURL),
		WithRetry(retry.Config{MaxAttempts: 1}),
	)
}

func TestCurrentActual(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/intensity" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[{"from":"2026-03-01T10:00Z","to":"2026-03-01T10:30Z",
			"intensity":{"forecast":120,"actual":117,"index":"low"}}]}`))
	}))
	defer server.Close()

	reading, err := testClient(server.URL).Current(context.Background(), "eu-west-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Value != 117 {
		t.Errorf("Value = %v, want actual 117", reading.Value)
	}
	if reading.Confidence != actualConfidence {
		t.Errorf("Confidence = %v, want %v", reading.Confidence, actualConfidence)
	}
	if reading.Source != "gridapi" || !reading.Realtime {
		t.Errorf("unexpected reading metadata: %+v", reading)
	}
}

func TestCurrentFallsBackToForecastValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"from":"2026-03-01T10:00Z","to":"2026-03-01T10:30Z",
			"intensity":{"forecast":140,"actual":null,"index":"moderate"}}]}`))
	}))
	defer server.Close()

	reading, err := testClient(server.URL).Current(context.Background(), "eu-west-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reading.Value != 140 {
		t.Errorf("Value = %v, want forecast 140", reading.Value)
	}
	if reading.Confidence != forecastConfidence {
		t.Errorf("Confidence = %v, want %v", reading.Confidence, forecastConfidence)
	}
}

func TestCurrentUncoveredRegion(t *testing.T) {
	if _, err := testClient("http://unused").Current(context.Background(), "us-east-1"); err == nil {
		t.Fatal("expected error for uncovered region")
	}
}

func TestForecast(t *testing.T) {
	now := time.Now().UTC()
	p1 := now.Add(time.Hour).Format(timeLayout)
	p2 := now.Add(30 * time.Hour).Format(timeLayout)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/intensity/") || !strings.HasSuffix(r.URL.Path, "/fw48h") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"data":[
			{"from":"` + p1 + `","intensity":{"forecast":95,"index":"low"}},
			{"from":"` + p2 + `","intensity":{"forecast":210,"index":"moderate"}},
			{"from":"` + p1 + `","intensity":{"forecast":null,"index":"low"}}
		]}`))
	}))
	defer server.Close()

	points, err := testClient(server.URL).Forecast(context.Background(), "eu-west-2", 24)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The 30h point is beyond the horizon; the null-forecast period is dropped.
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d: %+v", len(points), points)
	}
	if points[0].Value != 95 {
		t.Errorf("Value = %v, want 95", points[0].Value)
	}
}

func TestCurrentEmptyData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	if _, err := testClient(server.URL).Current(context.Background(), "eu-west-2"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

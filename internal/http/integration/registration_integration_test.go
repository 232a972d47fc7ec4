package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/bellcorp/events/internal/auth"
	"github.com/bellcorp/events/internal/config"
	apphttp "github.com/bellcorp/events/internal/http"
	"github.com/bellcorp/events/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// These tests need a migrated Postgres; they skip unless TEST_DB_DSN is
// set. Run migrations/001_init.sql against the test database first.

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		JWTSecret:      "test-secret-key",
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		AuthRateLimit:  1000,
		AuthRateWindow: time.Minute,
	}
}

func setupTestRouter(t *testing.T) (*gin.Engine, *pgxpool.Pool, config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	cfg := testConfig()
	router := apphttp.NewRouter(cfg, log, pool, reg, prom, nil)

	return router, pool, cfg
}

func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`TRUNCATE registrations, jobs, refresh_tokens, events, users CASCADE`)
	if err != nil {
		t.Fatalf("truncate: %v", err)
	}
}

func seedUser(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		id, id+"@example.com", "x", "Test User", "user", now, now)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	return id
}

func seedEvent(t *testing.T, pool *pgxpool.Pool, capacity int) string {
	t.Helper()

	id := uuid.NewString()
	now := time.Now().UTC()

	_, err := pool.Exec(context.Background(),
		`INSERT INTO events (id, name, organizer, location, date, description, capacity, available_seats, category, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		id, "Test Event", "Bellcorp", "Toronto", now.Add(24*time.Hour),
		"integration test event", capacity, capacity, "Technology", now, now)
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}

	return id
}

func accessTokenFor(t *testing.T, cfg config.Config, userID string) string {
	t.Helper()

	m := auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)

	token, err := m.GenerateAccessToken(userID, userID+"@example.com", "user")
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func doJSON(router *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func availableSeats(t *testing.T, pool *pgxpool.Pool, eventID string) int {
	t.Helper()

	var seats int
	err := pool.QueryRow(context.Background(),
		`SELECT available_seats FROM events WHERE id = $1`, eventID).Scan(&seats)
	if err != nil {
		t.Fatalf("read seats: %v", err)
	}
	return seats
}

func TestRegistrationLifecycle(t *testing.T) {
	router, pool, cfg := setupTestRouter(t)
	resetDB(t, pool)

	userID := seedUser(t, pool)
	eventID := seedEvent(t, pool, 2)
	token := accessTokenFor(t, cfg, userID)

	// register
	w := doJSON(router, http.MethodPost, "/registrations/"+eventID, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("register: status %d body=%s", w.Code, w.Body.String())
	}

	if got := availableSeats(t, pool, eventID); got != 1 {
		t.Fatalf("seats = %d, want 1", got)
	}

	// a confirmation job must be queued in the same commit
	var jobCount int
	if err := pool.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM jobs WHERE type = 'registration.confirmed'`).Scan(&jobCount); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if jobCount != 1 {
		t.Fatalf("confirmation jobs = %d, want 1", jobCount)
	}

	// duplicate register
	w = doJSON(router, http.MethodPost, "/registrations/"+eventID, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate register: status %d body=%s", w.Code, w.Body.String())
	}

	// check
	w = doJSON(router, http.MethodGet, "/registrations/check/"+eventID, token)
	if w.Code != http.StatusOK {
		t.Fatalf("check: status %d", w.Code)
	}

	var check struct {
		Registered bool `json:"registered"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &check); err != nil {
		t.Fatalf("unmarshal check: %v", err)
	}
	if !check.Registered {
		t.Fatal("expected registered=true")
	}

	// cancel restores the seat
	w = doJSON(router, http.MethodDelete, "/registrations/"+eventID, token)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: status %d body=%s", w.Code, w.Body.String())
	}

	if got := availableSeats(t, pool, eventID); got != 2 {
		t.Fatalf("seats after cancel = %d, want 2", got)
	}

	// cancel again is a 404
	w = doJSON(router, http.MethodDelete, "/registrations/"+eventID, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel: status %d", w.Code)
	}
}

func TestRegistrationSoldOut(t *testing.T) {
	router, pool, cfg := setupTestRouter(t)
	resetDB(t, pool)

	eventID := seedEvent(t, pool, 1)

	first := seedUser(t, pool)
	second := seedUser(t, pool)

	w := doJSON(router, http.MethodPost, "/registrations/"+eventID, accessTokenFor(t, cfg, first))
	if w.Code != http.StatusCreated {
		t.Fatalf("first register: status %d body=%s", w.Code, w.Body.String())
	}

	w = doJSON(router, http.MethodPost, "/registrations/"+eventID, accessTokenFor(t, cfg, second))
	if w.Code != http.StatusConflict {
		t.Fatalf("second register: status %d body=%s", w.Code, w.Body.String())
	}

	if got := availableSeats(t, pool, eventID); got != 0 {
		t.Fatalf("seats = %d, want 0", got)
	}
}

func TestRegistrationRequiresAuth(t *testing.T) {
	router, pool, _ := setupTestRouter(t)
	resetDB(t, pool)

	eventID := seedEvent(t, pool, 1)

	w := doJSON(router, http.MethodPost, "/registrations/"+eventID, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
}

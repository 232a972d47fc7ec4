package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bellcorp/events/internal/cache"
	"github.com/bellcorp/events/internal/domain/event"
	"github.com/bellcorp/events/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type fakeEventsRepo struct {
	createFn    func(ctx context.Context, req event.CreateEventRequest) (event.Event, error)
	listFn      func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error)
	getFn       func(ctx context.Context, id string) (event.Event, error)
	updateFn    func(ctx context.Context, id string, req event.UpdateEventRequest) (event.Event, error)
	deleteFn    func(ctx context.Context, id string) error
	locationsFn func(ctx context.Context) ([]string, error)
}

func (f *fakeEventsRepo) Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) List(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
	if f.listFn != nil {
		return f.listFn(ctx, filter)
	}
	return nil, 0, nil
}

func (f *fakeEventsRepo) GetByID(ctx context.Context, id string) (event.Event, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) Update(ctx context.Context, id string, req event.UpdateEventRequest) (event.Event, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, req)
	}
	return event.Event{}, nil
}

func (f *fakeEventsRepo) Delete(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	return nil
}

func (f *fakeEventsRepo) DistinctLocations(ctx context.Context) ([]string, error) {
	if f.locationsFn != nil {
		return f.locationsFn(ctx)
	}
	return nil, nil
}

func eventsRouter(repo *fakeEventsRepo, c *cache.Cache) *gin.Engine {
	r := gin.New()

	h := handlers.NewEventsHandler(repo, c)

	r.GET("/events", h.ListEvents)
	r.GET("/events/meta/categories", h.Categories)
	r.GET("/events/meta/locations", h.Locations)
	r.GET("/events/:id", h.GetEventByID)
	r.POST("/events", h.CreateEvent)
	r.PUT("/events/:id", h.UpdateEvent)
	r.DELETE("/events/:id", h.DeleteEvent)

	return r
}

func sampleEvent(now time.Time) event.Event {
	return event.Event{
		ID:             uuid.NewString(),
		Name:           "Go Conference",
		Organizer:      "Bellcorp",
		Location:       "Toronto",
		Date:           now.Add(72 * time.Hour),
		Description:    "Talks and workshops",
		Capacity:       100,
		AvailableSeats: 100,
		Category:       "Technology",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestListEventsHandler(t *testing.T) {
	now := time.Now().UTC()

	tests := []struct {
		name           string
		url            string
		repoSetup      func(*fakeEventsRepo)
		wantStatusCode int
		wantTotal      int
	}{
		{
			name: "success_defaults",
			url:  "/events",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
					if filter.Page != 1 {
						return nil, 0, errors.New("default page not 1")
					}
					return []event.Event{sampleEvent(now)}, 1, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantTotal:      1,
		},
		{
			name: "search_and_category_forwarded",
			url:  "/events?search=go&category=Technology&page=2&limit=5",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
					if filter.Search == nil || *filter.Search != "go" {
						return nil, 0, errors.New("search filter not passed")
					}
					if filter.Category == nil || *filter.Category != "Technology" {
						return nil, 0, errors.New("category filter not passed")
					}
					if filter.Page != 2 || filter.Limit != 5 {
						return nil, 0, errors.New("pagination not passed")
					}
					return []event.Event{}, 11, nil
				}
			},
			wantStatusCode: http.StatusOK,
			wantTotal:      11,
		},
		{
			name: "date_range_forwarded",
			url:  "/events?startDate=2026-09-01&endDate=2026-09-30",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
					if filter.From == nil || filter.To == nil {
						return nil, 0, errors.New("date range not passed")
					}
					return []event.Event{}, 0, nil
				}
			},
			wantStatusCode: http.StatusOK,
		},
		{
			name:           "invalid_page",
			url:            "/events?page=zero",
			repoSetup:      nil,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name:           "unknown_category",
			url:            "/events?category=Wizardry",
			repoSetup:      nil,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			url:  "/events",
			repoSetup: func(f *fakeEventsRepo) {
				f.listFn = func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
					return nil, 0, errors.New("db down")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventsRepo{}

			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			} else {
				repo.listFn = func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
					t.Error("repo should not be called")
					return nil, 0, nil
				}
			}

			r := eventsRouter(repo, nil)

			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}

			if tt.wantStatusCode == http.StatusOK && tt.wantTotal > 0 {
				var resp struct {
					TotalEvents int `json:"totalEvents"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
					t.Fatalf("unmarshal: %v", err)
				}
				if resp.TotalEvents != tt.wantTotal {
					t.Fatalf("totalEvents = %d, want %d", resp.TotalEvents, tt.wantTotal)
				}
			}
		})
	}
}

func TestListEventsCacheHit(t *testing.T) {
	now := time.Now().UTC()
	calls := 0

	repo := &fakeEventsRepo{
		listFn: func(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error) {
			calls++
			return []event.Event{sampleEvent(now)}, 1, nil
		},
	}

	r := eventsRouter(repo, cache.New(time.Minute))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/events?limit=10", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("repo called %d times, want 1 (cache)", calls)
	}
}

func TestGetEventByID(t *testing.T) {
	now := time.Now().UTC()
	ev := sampleEvent(now)

	repo := &fakeEventsRepo{
		getFn: func(ctx context.Context, id string) (event.Event, error) {
			if id == ev.ID {
				return ev, nil
			}
			return event.Event{}, event.ErrNotFound
		},
	}

	r := eventsRouter(repo, nil)

	// hit
	req := httptest.NewRequest(http.MethodGet, "/events/"+ev.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}

	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("expected an ETag header")
	}

	// conditional revalidation
	req = httptest.NewRequest(http.MethodGet, "/events/"+ev.ID, nil)
	req.Header.Set("If-None-Match", etag)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotModified {
		t.Fatalf("got status %d, want 304", w.Code)
	}

	// miss
	req = httptest.NewRequest(http.MethodGet, "/events/"+uuid.NewString(), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}

	// malformed id never reaches the repo
	req = httptest.NewRequest(http.MethodGet, "/events/oops", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404 for non-uuid id", w.Code)
	}
}

func TestCreateEventHandler(t *testing.T) {
	now := time.Now().UTC()

	validBody := `{
		"name": "Go Conference",
		"organizer": "Bellcorp",
		"location": "Toronto",
		"date": "` + now.Add(72*time.Hour).Format(time.RFC3339) + `",
		"description": "Talks and workshops",
		"capacity": 100,
		"category": "Technology"
	}`

	tests := []struct {
		name           string
		body           string
		repoSetup      func(*fakeEventsRepo)
		wantStatusCode int
	}{
		{
			name: "success",
			body: validBody,
			repoSetup: func(f *fakeEventsRepo) {
				f.createFn = func(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
					if req.Capacity != 100 {
						return event.Event{}, errors.New("capacity not bound")
					}
					e := sampleEvent(now)
					e.Name = req.Name
					return e, nil
				}
			},
			wantStatusCode: http.StatusCreated,
		},
		{
			name:           "validation_error",
			body:           `{"name": ""}`,
			repoSetup:      nil,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "unknown_category",
			body: `{
				"name": "Go Conference",
				"organizer": "Bellcorp",
				"location": "Toronto",
				"date": "` + now.Format(time.RFC3339) + `",
				"description": "x",
				"capacity": 10,
				"category": "Wizardry"
			}`,
			repoSetup:      nil,
			wantStatusCode: http.StatusBadRequest,
		},
		{
			name: "repo_error",
			body: validBody,
			repoSetup: func(f *fakeEventsRepo) {
				f.createFn = func(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
					return event.Event{}, errors.New("db error")
				}
			},
			wantStatusCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		tt := tt

		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeEventsRepo{}

			if tt.repoSetup != nil {
				tt.repoSetup(repo)
			} else {
				repo.createFn = func(ctx context.Context, req event.CreateEventRequest) (event.Event, error) {
					t.Error("repo should not be called")
					return event.Event{}, nil
				}
			}

			r := eventsRouter(repo, nil)

			req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.wantStatusCode {
				t.Fatalf("got status %d, want %d, body=%s", w.Code, tt.wantStatusCode, w.Body.String())
			}
		})
	}
}

func TestCategoriesHandler(t *testing.T) {
	r := eventsRouter(&fakeEventsRepo{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/events/meta/categories", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", w.Code)
	}

	var resp struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if len(resp.Categories) != len(event.Categories) {
		t.Fatalf("got %d categories, want %d", len(resp.Categories), len(event.Categories))
	}
}

func TestLocationsHandlerUsesCache(t *testing.T) {
	calls := 0

	repo := &fakeEventsRepo{
		locationsFn: func(ctx context.Context) ([]string, error) {
			calls++
			return []string{"Lagos", "Toronto"}, nil
		},
	}

	r := eventsRouter(repo, cache.New(time.Minute))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/events/meta/locations", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
	}

	if calls != 1 {
		t.Fatalf("repo called %d times, want 1", calls)
	}
}

func TestDeleteEventHandler(t *testing.T) {
	id := uuid.NewString()

	repo := &fakeEventsRepo{
		deleteFn: func(ctx context.Context, got string) error {
			if got != id {
				return event.ErrNotFound
			}
			return nil
		},
	}

	r := eventsRouter(repo, nil)

	req := httptest.NewRequest(http.MethodDelete, "/events/"+id, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/events/"+uuid.NewString(), nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

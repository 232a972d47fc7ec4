package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bellcorp/events/internal/cache"
	"github.com/bellcorp/events/internal/config"
	"github.com/bellcorp/events/internal/domain/event"
	"github.com/bellcorp/events/internal/utils"
	"github.com/gin-gonic/gin"
)

type EventsStore interface {
	Create(ctx context.Context, req event.CreateEventRequest) (event.Event, error)
	List(ctx context.Context, filter event.ListEventsFilter) ([]event.Event, int, error)
	GetByID(ctx context.Context, id string) (event.Event, error)
	Update(ctx context.Context, id string, req event.UpdateEventRequest) (event.Event, error)
	Delete(ctx context.Context, id string) error
	DistinctLocations(ctx context.Context) ([]string, error)
}

type EventsHandler struct {
	repo  EventsStore
	cache *cache.Cache
}

func NewEventsHandler(repo EventsStore, c *cache.Cache) *EventsHandler {
	return &EventsHandler{repo: repo, cache: c}
}

type eventListResponse struct {
	Events      []event.Event `json:"events"`
	CurrentPage int           `json:"currentPage"`
	TotalPages  int           `json:"totalPages"`
	TotalEvents int           `json:"totalEvents"`
}

const (
	defaultPageSize = 12
	maxPageSize     = 100
)

func (h *EventsHandler) ListEvents(ctx *gin.Context) {
	filter, ok := parseListFilter(ctx)
	if !ok {
		return
	}

	key := utils.BuildEventsListCacheKey(filter)

	if h.cache != nil {
		if v, hit := h.cache.Get(key); hit {
			if resp, ok := v.(eventListResponse); ok {
				ctx.JSON(http.StatusOK, resp)
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	events, total, err := h.repo.List(cctx, filter)

	if err != nil {
		RespondInternal(ctx, "Could not list events")
		return
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	if totalPages == 0 {
		totalPages = 1
	}

	resp := eventListResponse{
		Events:      events,
		CurrentPage: filter.Page,
		TotalPages:  totalPages,
		TotalEvents: total,
	}

	if h.cache != nil {
		h.cache.Set(key, resp)
	}

	ctx.JSON(http.StatusOK, resp)
}

func (h *EventsHandler) GetEventByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondNotFound(ctx, "Event not found")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	e, err := h.repo.GetByID(cctx, id)

	if err != nil {
		if err == event.ErrNotFound {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not fetch event")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, e)
}

func (h *EventsHandler) CreateEvent(ctx *gin.Context) {
	var req event.CreateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !event.IsValidCategory(req.Category) {
		RespondBadRequest(ctx, "Unknown category", gin.H{"field": "category"})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	e, err := h.repo.Create(cctx, req)

	if err != nil {
		RespondInternal(ctx, "Could not create event")
		return
	}

	h.invalidateLists()

	ctx.JSON(http.StatusCreated, e)
}

func (h *EventsHandler) UpdateEvent(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondNotFound(ctx, "Event not found")
		return
	}

	var req event.UpdateEventRequest

	if !BindJSON(ctx, &req) {
		return
	}

	if !event.IsValidCategory(req.Category) {
		RespondBadRequest(ctx, "Unknown category", gin.H{"field": "category"})
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	e, err := h.repo.Update(cctx, id, req)

	if err != nil {
		if err == event.ErrNotFound {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not update event")
		return
	}

	h.invalidateLists()

	ctx.JSON(http.StatusOK, e)
}

func (h *EventsHandler) DeleteEvent(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondNotFound(ctx, "Event not found")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	err := h.repo.Delete(cctx, id)

	if err != nil {
		if err == event.ErrNotFound {
			RespondNotFound(ctx, "Event not found")
			return
		}
		RespondInternal(ctx, "Could not delete event")
		return
	}

	h.invalidateLists()

	ctx.Status(http.StatusNoContent)
}

// Categories is static metadata; the list never changes at runtime.
func (h *EventsHandler) Categories(ctx *gin.Context) {
	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"categories": event.Categories})
}

func (h *EventsHandler) Locations(ctx *gin.Context) {
	const key = "events:meta:locations"

	if h.cache != nil {
		if v, hit := h.cache.Get(key); hit {
			if locations, ok := v.([]string); ok {
				ctx.JSON(http.StatusOK, gin.H{"locations": locations})
				return
			}
		}
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	locations, err := h.repo.DistinctLocations(cctx)

	if err != nil {
		RespondInternal(ctx, "Could not list locations")
		return
	}

	if h.cache != nil {
		h.cache.Set(key, locations)
	}

	ctx.JSON(http.StatusOK, gin.H{"locations": locations})
}

func (h *EventsHandler) invalidateLists() {
	if h.cache != nil {
		h.cache.Clear()
	}
}

func parseListFilter(ctx *gin.Context) (event.ListEventsFilter, bool) {
	filter := event.ListEventsFilter{
		Page:  1,
		Limit: defaultPageSize,
	}

	if raw := ctx.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(ctx, "page must be a positive integer", gin.H{"field": "page"})
			return filter, false
		}
		filter.Page = n
	}

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(ctx, "limit must be a positive integer", gin.H{"field": "limit"})
			return filter, false
		}
		if n > maxPageSize {
			n = maxPageSize
		}
		filter.Limit = n
	}

	if raw := strings.TrimSpace(ctx.Query("search")); raw != "" {
		filter.Search = &raw
	}

	if raw := strings.TrimSpace(ctx.Query("category")); raw != "" {
		if !event.IsValidCategory(raw) {
			RespondBadRequest(ctx, "Unknown category", gin.H{"field": "category"})
			return filter, false
		}
		filter.Category = &raw
	}

	if raw := strings.TrimSpace(ctx.Query("location")); raw != "" {
		filter.Location = &raw
	}

	if raw := ctx.Query("startDate"); raw != "" {
		t, ok := parseDateParam(ctx, "startDate", raw)
		if !ok {
			return filter, false
		}
		filter.From = &t
	}

	if raw := ctx.Query("endDate"); raw != "" {
		t, ok := parseDateParam(ctx, "endDate", raw)
		if !ok {
			return filter, false
		}
		filter.To = &t
	}

	return filter, true
}

func parseDateParam(ctx *gin.Context, name, raw string) (time.Time, bool) {
	// accept bare dates as well as full timestamps
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		RespondBadRequest(ctx, name+" must be an RFC3339 timestamp or YYYY-MM-DD", gin.H{"field": name})
		return time.Time{}, false
	}

	return t.UTC(), true
}

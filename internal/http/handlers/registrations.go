package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bellcorp/events/internal/config"
	"github.com/bellcorp/events/internal/domain/event"
	"github.com/bellcorp/events/internal/domain/registration"
	"github.com/bellcorp/events/internal/http/middlewares"
	"github.com/bellcorp/events/internal/utils"
	"github.com/gin-gonic/gin"
)

// RegistrationService is the seat-accounting core; the handler only
// translates identity + params in and errors out.
type RegistrationService interface {
	Register(ctx context.Context, userID, eventID string) (registration.Registration, error)
	Cancel(ctx context.Context, userID, eventID string) error
	IsRegistered(ctx context.Context, userID, eventID string) (bool, error)
	ListForUser(ctx context.Context, userID string) (registration.MyEvents, error)
}

type RegistrationsHandler struct {
	svc RegistrationService
}

func NewRegistrationsHandler(svc RegistrationService) *RegistrationsHandler {
	return &RegistrationsHandler{svc: svc}
}

func (h *RegistrationsHandler) Register(ctx *gin.Context) {
	userID, eventID, ok := h.identify(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	reg, err := h.svc.Register(cctx, userID, eventID)

	if err != nil {
		h.respondRegistrationError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"registration": reg})
}

func (h *RegistrationsHandler) Cancel(ctx *gin.Context) {
	userID, eventID, ok := h.identify(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	err := h.svc.Cancel(cctx, userID, eventID)

	if err != nil {
		h.respondRegistrationError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func (h *RegistrationsHandler) Check(ctx *gin.Context) {
	userID, eventID, ok := h.identify(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	registered, err := h.svc.IsRegistered(cctx, userID, eventID)

	if err != nil {
		h.respondRegistrationError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"registered": registered})
}

func (h *RegistrationsHandler) MyEvents(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	my, err := h.svc.ListForUser(cctx, userID)

	if err != nil {
		h.respondRegistrationError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, my)
}

func (h *RegistrationsHandler) identify(ctx *gin.Context) (userID, eventID string, ok bool) {
	userID, found := middlewares.UserIDFromContext(ctx)

	if !found || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity context")
		return "", "", false
	}

	eventID = ctx.Param("eventId")

	if !utils.IsUUID(eventID) {
		RespondNotFound(ctx, "Event not found")
		return "", "", false
	}

	return userID, eventID, true
}

func (h *RegistrationsHandler) respondRegistrationError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, event.ErrNotFound):
		RespondNotFound(ctx, "Event not found")
	case errors.Is(err, registration.ErrNotFound):
		RespondNotFound(ctx, "Registration not found")
	case errors.Is(err, registration.ErrSoldOut):
		RespondConflict(ctx, "sold_out", "Event is sold out.")
	case errors.Is(err, registration.ErrAlreadyRegistered):
		RespondConflict(ctx, "already_registered", "You are already registered for this event.")
	case errors.Is(err, registration.ErrTransient):
		RespondServiceUnavailable(ctx, "Temporary storage issue, please retry.")
	default:
		RespondInternal(ctx, "Registration could not be processed")
	}
}

package event

import (
	"time"

	"github.com/google/uuid"
)

func NewFromCreateRequest(req CreateEventRequest) Event {
	now := time.Now()

	// a brand new event starts with every seat unclaimed
	return Event{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Organizer:      req.Organizer,
		Location:       req.Location,
		Date:           req.Date,
		Description:    req.Description,
		Capacity:       req.Capacity,
		AvailableSeats: req.Capacity,
		Category:       req.Category,
		Tags:           req.Tags,
		ImageURL:       req.ImageURL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

package event

import (
	"errors"
	"time"
)

type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Organizer      string    `json:"organizer"`
	Location       string    `json:"location"`
	Date           time.Time `json:"date"`
	Description    string    `json:"description"`
	Capacity       int       `json:"capacity"`
	AvailableSeats int       `json:"availableSeats"`
	Category       string    `json:"category"`
	Tags           []string  `json:"tags,omitempty"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// the fixed category set served under /events/meta/categories
var Categories = []string{
	"Technology",
	"Business",
	"Arts & Culture",
	"Sports",
	"Education",
	"Health & Wellness",
	"Entertainment",
	"Music",
	"Food & Drink",
	"Networking",
}

func IsValidCategory(c string) bool {
	for _, known := range Categories {
		if known == c {
			return true
		}
	}
	return false
}

// with pointers if optional, it will be nil
type ListEventsFilter struct {
	Search   *string
	Category *string
	Location *string
	From     *time.Time
	To       *time.Time
	Page     int
	Limit    int
}

var ErrNotFound = errors.New("event not found")

type CreateEventRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=120"`
	Organizer   string    `json:"organizer" binding:"required,min=2,max=120"`
	Location    string    `json:"location" binding:"required,min=2,max=120"`
	Date        time.Time `json:"date" binding:"required"`
	Description string    `json:"description" binding:"required,max=2000"`
	Capacity    int       `json:"capacity" binding:"required,min=1,max=50000"`
	Category    string    `json:"category" binding:"required"`
	Tags        []string  `json:"tags" binding:"omitempty,dive,min=1,max=40"`
	ImageURL    string    `json:"imageUrl" binding:"omitempty,url"`
}

// a full update payload, might switch to a patch which optionally provides means for partial updates.
// capacity is immutable after creation so it is absent here.
type UpdateEventRequest struct {
	Name        string    `json:"name" binding:"required,min=3,max=120"`
	Organizer   string    `json:"organizer" binding:"required,min=2,max=120"`
	Location    string    `json:"location" binding:"required,min=2,max=120"`
	Date        time.Time `json:"date" binding:"required"`
	Description string    `json:"description" binding:"required,max=2000"`
	Category    string    `json:"category" binding:"required"`
	Tags        []string  `json:"tags" binding:"omitempty,dive,min=1,max=40"`
	ImageURL    string    `json:"imageUrl" binding:"omitempty,url"`
}

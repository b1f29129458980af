package collab

import (
	"context"
	"net/http"
	"time"

	"github.com/malwarebo/reserva/models"
)

// CalendarClient pushes bookings into the facility's shared calendar feed.
type CalendarClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func CreateCalendarClient(baseURL, apiKey string) *CalendarClient {
	return &CalendarClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

type calendarEvent struct {
	ExternalID string    `json:"external_id"`
	ResourceID string    `json:"resource_id"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Canceled   bool      `json:"canceled,omitempty"`
}

func (c *CalendarClient) SyncBooking(ctx context.Context, booking *models.Booking) error {
	return postJSON(ctx, c.client, c.baseURL+"/events", c.headers(), calendarEvent{
		ExternalID: booking.ID,
		ResourceID: booking.ResourceID,
		Title:      booking.Title,
		StartsAt:   booking.StartsAt,
		EndsAt:     booking.EndsAt,
	})
}

func (c *CalendarClient) CancelBooking(ctx context.Context, booking *models.Booking) error {
	return postJSON(ctx, c.client, c.baseURL+"/events", c.headers(), calendarEvent{
		ExternalID: booking.ID,
		ResourceID: booking.ResourceID,
		Canceled:   true,
	})
}

func (c *CalendarClient) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

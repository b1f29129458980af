package collab

import (
	"context"
	"net/http"

	"github.com/malwarebo/reserva/models"
)

// ChatNotifier posts booking events to a chat webhook. Notifications are a
// secondary side effect: they go through the envelope with critical=false
// and must never fail the booking transaction.
type ChatNotifier struct {
	webhookURL string
	client     *http.Client
}

func CreateChatNotifier(webhookURL string) *ChatNotifier {
	return &ChatNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{},
	}
}

type chatMessage struct {
	Text string `json:"text"`
}

func (n *ChatNotifier) BookingCreated(ctx context.Context, booking *models.Booking) error {
	return postJSON(ctx, n.client, n.webhookURL, nil, chatMessage{
		Text: "New booking " + booking.ID + " for resource " + booking.ResourceID,
	})
}

func (n *ChatNotifier) BookingArchived(ctx context.Context, booking *models.Booking) error {
	return postJSON(ctx, n.client, n.webhookURL, nil, chatMessage{
		Text: "Booking " + booking.ID + " was archived",
	})
}

// Package collab holds the narrow clients for the external collaborators the
// booking flow talks to: the deposit processor, the calendar feed, the chat
// webhook and the issue tracker. Every call returns either success or an
// error classifiable by HTTP-status class; callers are expected to invoke
// them through the resilience envelope, never directly.
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/malwarebo/reserva/utils"
)

const (
	CollaboratorDeposits = "deposits"
	CollaboratorCalendar = "calendar"
	CollaboratorChat     = "chat"
	CollaboratorTracker  = "tracker"
)

func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &utils.StatusError{Code: resp.StatusCode, Message: string(detail)}
	}

	return nil
}

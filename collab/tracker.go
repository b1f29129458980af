package collab

import (
	"context"
	"net/http"
)

// TrackerClient files an issue when an operation needs human follow-up, for
// example a deposit that could not be reversed after a failed booking.
type TrackerClient struct {
	baseURL  string
	apiToken string
	project  string
	client   *http.Client
}

func CreateTrackerClient(baseURL, apiToken, project string) *TrackerClient {
	return &TrackerClient{
		baseURL:  baseURL,
		apiToken: apiToken,
		project:  project,
		client:   &http.Client{},
	}
}

type trackerIssue struct {
	Project string `json:"project"`
	Summary string `json:"summary"`
	Details string `json:"details"`
}

func (t *TrackerClient) CreateIssue(ctx context.Context, summary, details string) error {
	return postJSON(ctx, t.client, t.baseURL+"/issues", map[string]string{
		"Authorization": "Bearer " + t.apiToken,
	}, trackerIssue{
		Project: t.project,
		Summary: summary,
		Details: details,
	})
}

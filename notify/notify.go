package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Event describes a finalized submission for downstream consumers.
type Event struct {
	SubmissionID   string    `json:"respostaId"`
	Protocol       string    `json:"protocolo"`
	ScopeID        string    `json:"escopoId"`
	UnitName       string    `json:"unidade"`
	SupervisorID   string    `json:"supervisorId"`
	SupervisorName string    `json:"supervisor"`
	SubmittedAt    time.Time `json:"enviadoEm"`
}

// Notifier is fire-and-forget: callers dispatch after commit, log failures
// and never let them reach the response path.
type Notifier interface {
	SubmissionFinalized(ctx context.Context, ev Event) error
}

type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *WebhookNotifier) SubmissionFinalized(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("content-type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		return errors.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier is used when no webhook is configured.
type NopNotifier struct{}

func (NopNotifier) SubmissionFinalized(context.Context, Event) error { return nil }

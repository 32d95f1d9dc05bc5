package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/focustagency/media-api/log"
	"github.com/focustagency/media-api/metrics"
)

// CallbackStatus tags the terminal outcome a callback reports.
type CallbackStatus string

const (
	CallbackSuccess CallbackStatus = "success"
	CallbackError   CallbackStatus = "error"
)

// CallbackMessage is the envelope POSTed to the remote lifecycle service.
// Exactly one of HLSPath or Error is present, depending on Status.
type CallbackMessage struct {
	Status  CallbackStatus    `json:"status"`
	UserID  string            `json:"user_id,omitempty"`
	VideoID string            `json:"video_id,omitempty"`
	HLSPath string            `json:"hls_path,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message"`
	Context map[string]string `json:"context,omitempty"`
}

// CallbackClient delivers lifecycle callbacks. Delivery is best-effort and
// single-shot: a 10 second wall-clock timeout, no retries, failures logged
// and swallowed.
type CallbackClient struct {
	httpClient *retryablehttp.Client
	bearer     string
}

func NewCallbackClient(bearer string) CallbackClient {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.HTTPClient = &http.Client{
		Timeout: 10 * time.Second,
	}
	return CallbackClient{httpClient: client, bearer: bearer}
}

// Send POSTs the message as JSON. The returned error is informational; the
// orchestrator never fails a job over callback delivery.
func (c CallbackClient) Send(callbackURL string, msg CallbackMessage) error {
	err := c.send(callbackURL, msg)
	if err != nil {
		metrics.Metrics.CallbackDeliveryCount.WithLabelValues(string(msg.Status), "failed").Inc()
		log.LogNoRequestID("callback delivery failed", "url", callbackURL, "status", msg.Status, "err", err.Error())
		return err
	}
	metrics.Metrics.CallbackDeliveryCount.WithLabelValues(string(msg.Status), "delivered").Inc()
	return nil
}

func (c CallbackClient) send(callbackURL string, msg CallbackMessage) error {
	if callbackURL == "" {
		return fmt.Errorf("no callback URL configured")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	r, err := retryablehttp.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.httpClient.Do(r)
	if err != nil {
		return fmt.Errorf("failed to send callback to %q: %w", callbackURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("failed to send callback to %q: HTTP %d", callbackURL, resp.StatusCode)
	}
	return nil
}

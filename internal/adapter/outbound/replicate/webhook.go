package replicate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/portraitlab/server/internal/port/outbound"
)

// Webhook errors.
var (
	ErrInvalidPayload   = errors.New("replicate: invalid webhook payload")
	ErrInvalidSignature = errors.New("replicate: invalid webhook signature")
	ErrStaleWebhook     = errors.New("replicate: webhook timestamp outside tolerance")
)

// WebhookTolerance bounds the age of a signed delivery.
const WebhookTolerance = 5 * time.Minute

// ParseWebhook decodes a training webhook body into a provider update.
func ParseWebhook(body []byte) (*outbound.ProviderUpdate, error) {
	var t trainingResponse
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return t.toUpdate()
}

func (t *trainingResponse) toUpdate() (*outbound.ProviderUpdate, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidPayload)
	}
	update := &outbound.ProviderUpdate{
		JobID: t.ID,
		State: mapState(t.Status),
		Error: errorText(t.Error),
	}
	if t.Output != nil {
		update.Version = t.Output.Version
	}
	return update, nil
}

// mapState maps Replicate statuses onto provider job states. Unknown
// statuses pass through unchanged and are rejected by the state machine.
func mapState(status string) outbound.ProviderJobState {
	switch status {
	case "starting":
		return outbound.ProviderJobQueued
	case "processing":
		return outbound.ProviderJobProcessing
	case "succeeded":
		return outbound.ProviderJobSucceeded
	case "failed":
		return outbound.ProviderJobFailed
	case "canceled":
		return outbound.ProviderJobCanceled
	default:
		return outbound.ProviderJobState(status)
	}
}

// VerifyWebhook checks the signature headers Replicate attaches to webhook
// deliveries. secret is the signing secret including its "whsec_" prefix.
// signature may hold several space separated "v1,<base64>" entries.
func VerifyWebhook(secret, id, timestamp, signature string, body []byte, now time.Time) error {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return fmt.Errorf("replicate: decode webhook secret: %w", err)
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	sent := time.Unix(ts, 0)
	if now.Sub(sent) > WebhookTolerance || sent.Sub(now) > WebhookTolerance {
		return ErrStaleWebhook
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, entry := range strings.Fields(signature) {
		scheme, value, ok := strings.Cut(entry, ",")
		if !ok || scheme != "v1" {
			continue
		}
		got, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			continue
		}
		if hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

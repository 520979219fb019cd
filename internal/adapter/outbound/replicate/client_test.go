package replicate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/infra/config"
	"github.com/portraitlab/server/internal/port/outbound"
	"github.com/portraitlab/server/internal/utils/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New("test", prometheus.NewRegistry())
	cfg := config.ReplicateConfig{
		APIToken:         "r8_test",
		BaseURL:          srv.URL + "/v1/",
		TrainerVersion:   "ostris/flux-dev-lora-trainer:abc123",
		Destination:      "portraitlab/users",
		WebhookURL:       "https://hooks.example.com/replicate",
		TriggerWord:      "TOK",
		TrainingSteps:    1000,
		PredictWait:      60 * time.Second,
		FailureThreshold: 2,
		CircuitTimeout:   time.Minute,
	}
	return NewClient(cfg, srv.Client(), m, zap.NewNop()), m
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_EnqueueTraining(t *testing.T) {
	var got trainingRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/models/ostris/flux-dev-lora-trainer/versions/abc123/trainings", r.URL.Path)
		assert.Equal(t, "Bearer r8_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusCreated, map[string]any{"id": "train-1", "status": "starting"})
	})

	id, err := client.EnqueueTraining(context.Background(), &outbound.TrainingJob{
		UserID:    uuid.New(),
		ImageURLs: []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "train-1", id)

	assert.Equal(t, "portraitlab/users", got.Destination)
	assert.Equal(t, "https://hooks.example.com/replicate", got.Webhook)
	assert.Equal(t, []string{"start", "completed"}, got.WebhookEventsFilter)
	assert.Equal(t, "TOK", got.Input["trigger_word"])
	assert.Len(t, got.Input["input_images"], 2)
}

func TestClient_EnqueueTraining_InvalidTrainerVersion(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	client.cfg.TrainerVersion = "ostris/flux-dev-lora-trainer"

	_, err := client.EnqueueTraining(context.Background(), &outbound.TrainingJob{})
	assert.Error(t, err)
	assert.Zero(t, hits.Load())
}

func TestClient_GetTraining(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/trainings/train-9", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{
			"id":     "train-9",
			"status": "succeeded",
			"output": map[string]any{"version": "portraitlab/users:def456", "weights": "https://x/w.tar"},
		})
	})

	update, err := client.GetTraining(context.Background(), "train-9")
	require.NoError(t, err)
	assert.Equal(t, &outbound.ProviderUpdate{
		JobID:   "train-9",
		State:   outbound.ProviderJobSucceeded,
		Version: "portraitlab/users:def456",
	}, update)
}

func TestClient_CancelTraining(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/trainings/train-2/cancel", r.URL.Path)
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "train-2", "status": "canceled"})
	})

	require.NoError(t, client.CancelTraining(context.Background(), "train-2"))
}

func TestClient_RunInference(t *testing.T) {
	tests := []struct {
		name    string
		resp    map[string]any
		want    string
		wantErr bool
	}{
		{
			name: "list output",
			resp: map[string]any{"id": "p1", "status": "succeeded", "output": []string{"https://replicate.delivery/a.webp", "https://replicate.delivery/b.webp"}},
			want: "https://replicate.delivery/a.webp",
		},
		{
			name: "string output",
			resp: map[string]any{"id": "p2", "status": "succeeded", "output": "https://replicate.delivery/c.png"},
			want: "https://replicate.delivery/c.png",
		},
		{
			name: "empty output",
			resp: map[string]any{"id": "p3", "status": "succeeded", "output": nil},
			want: "",
		},
		{
			name:    "failed prediction",
			resp:    map[string]any{"id": "p4", "status": "failed", "error": "NSFW content detected"},
			wantErr: true,
		},
		{
			name:    "still running after wait",
			resp:    map[string]any{"id": "p5", "status": "processing"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/predictions", r.URL.Path)
				assert.Equal(t, "wait=60", r.Header.Get("Prefer"))

				var body predictionRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "def456", body.Version)
				assert.Equal(t, "portrait of TOK", body.Input["prompt"])

				writeJSON(t, w, http.StatusCreated, tt.resp)
			})

			got, err := client.RunInference(context.Background(), &outbound.InferenceRequest{
				ModelVersion: "portraitlab/users:def456",
				Prompt:       "portrait of TOK",
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_APIError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid version"})
	})

	for range 5 {
		_, err := client.GetTraining(context.Background(), "x")
		var apiErr *APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
		assert.Equal(t, "invalid version", apiErr.Detail)
	}
	assert.Equal(t, gobreaker.StateClosed, client.BreakerState(opGetTraining), "client errors do not trip the breaker")
}

func TestClient_CircuitBreaker(t *testing.T) {
	var hits atomic.Int32
	client, m := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	for range 2 {
		_, err := client.GetTraining(ctx, "x")
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, client.BreakerState(opGetTraining))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderBreakerOpen.WithLabelValues(providerName, opGetTraining)))

	_, err := client.GetTraining(ctx, "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load(), "open breaker short-circuits")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderRequestsTotal.WithLabelValues(providerName, opGetTraining, "circuit_open")))

	// Breakers are per operation.
	assert.Equal(t, gobreaker.StateClosed, client.BreakerState(opCancelTraining))
}

func TestSplitVersion(t *testing.T) {
	tests := []struct {
		ref     string
		owner   string
		name    string
		version string
		wantErr bool
	}{
		{ref: "owner/model:v1", owner: "owner", name: "model", version: "v1"},
		{ref: "abc123", version: "abc123"},
		{ref: "", wantErr: true},
		{ref: "owner/model", wantErr: true},
		{ref: "model:v1", wantErr: true},
		{ref: "owner/model:", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			owner, name, version, err := splitVersion(tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.version, version)
		})
	}
}

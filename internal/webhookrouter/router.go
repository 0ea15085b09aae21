// Package webhookrouter exposes the HTTP surface the external durable
// queue calls back into: one POST endpoint per task stage plus a health
// check, grounded on the teacher's chi-based httpapi layer
// (other_examples' toolbridge-api router) generalized onto this stack's
// signed-webhook boundary instead of bearer-token REST endpoints.
package webhookrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mediarelay/botcore/internal/durablequeue"
	"github.com/mediarelay/botcore/internal/logging"
	"github.com/mediarelay/botcore/internal/taskerrors"
)

// TaskPipeline is the subset of the Task Manager the router invokes.
type TaskPipeline interface {
	HandleDownloadWebhook(ctx context.Context, taskID string) error
	HandleUploadWebhook(ctx context.Context, taskID string) error
	HandleMediaBatchWebhook(ctx context.Context, taskIDs []string) error
}

// HealthChecker reports whether the process's dependent subsystems are
// reachable. A false result still returns 200 with a degraded body —
// the health endpoint itself must stay up even if the instance has lost
// its leader lock.
type HealthChecker interface {
	Healthy(ctx context.Context) bool
}

type taskEnvelope struct {
	TaskID  string   `json:"taskId"`
	GroupID string   `json:"groupId"`
	TaskIDs []string `json:"taskIds"`
}

// New builds the chi router. Every /api/tasks/* route is gated on the
// inbound HMAC signature; GET /health never requires one.
func New(log *logging.Logger, queue *durablequeue.Adapter, tasks TaskPipeline, health HealthChecker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{"POST", "GET"}}))

	r.Get("/health", healthHandler(health))

	r.Route("/api/tasks", func(r chi.Router) {
		r.Use(verifySignature(log, queue))
		r.Post("/download", downloadHandler(log, tasks))
		r.Post("/upload", uploadHandler(log, tasks))
		r.Post("/batch", batchHandler(log, tasks))
		r.Post("/system-events", systemEventsHandler(log))
		r.NotFound(unknownTopicHandler(log))
	})

	return r
}

func healthHandler(health HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok := health == nil || health.Healthy(r.Context())
		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		if !ok {
			body["status"] = "degraded"
		}
		writeJSON(w, status, body)
	}
}

// verifySignature checks the upstash-signature header against the raw
// request body before any handler runs. A failure returns 401 with no
// further processing — the handler never sees an unverified payload.
func verifySignature(log *logging.Logger, queue *durablequeue.Adapter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read body"})
				return
			}
			r.Body.Close()

			sig := r.Header.Get(durablequeue.SignatureHeader)
			if !queue.VerifyWebhookSignature(sig, body) {
				log.Warn().Str("path", r.URL.Path).Msg("webhookrouter: signature verification failed")
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func downloadHandler(log *logging.Logger, tasks TaskPipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env taskEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "malformed payload"})
			return
		}
		err := tasks.HandleDownloadWebhook(r.Context(), env.TaskID)
		respond(w, log, err)
	}
}

func uploadHandler(log *logging.Logger, tasks TaskPipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env taskEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "malformed payload"})
			return
		}
		err := tasks.HandleUploadWebhook(r.Context(), env.TaskID)
		respond(w, log, err)
	}
}

func batchHandler(log *logging.Logger, tasks TaskPipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var env taskEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "malformed payload"})
			return
		}
		err := tasks.HandleMediaBatchWebhook(r.Context(), env.TaskIDs)
		respond(w, log, err)
	}
}

// systemEventsHandler accepts operational pings (e.g. redelivery
// exhaustion notices) from the durable-queue side; it has no pipeline
// side effect beyond acknowledging receipt.
func systemEventsHandler(log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		log.Info().Interface("event", payload).Msg("webhookrouter: system event received")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})
	}
}

// unknownTopicHandler acknowledges any /api/tasks/* path this router
// doesn't recognize with a 200, so the durable queue never retries a
// topic it has no handler for; the topic is still logged so a new
// unplanned-for topic doesn't go unnoticed.
func unknownTopicHandler(log *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Warn().Str("path", r.URL.Path).Msg("webhookrouter: unknown topic acknowledged")
		writeJSON(w, http.StatusOK, map[string]string{"status": "ack"})
	}
}

func respond(w http.ResponseWriter, log *logging.Logger, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status := taskerrors.StatusCode(err)
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("webhookrouter: handler failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

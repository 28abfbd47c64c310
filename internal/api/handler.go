package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scribeq/scribeq/internal/config"
	"github.com/scribeq/scribeq/internal/job"
	"github.com/scribeq/scribeq/internal/media"
	"github.com/scribeq/scribeq/internal/prefs"
	"github.com/scribeq/scribeq/internal/queue"
	"github.com/scribeq/scribeq/internal/transcribe"
)

// maxUploadBytes caps one audio submission.
const maxUploadBytes = 100 << 20

const noticeUnsupported = "Unsupported file. Please send audio as MP3, OGG, WAV or WMA."

// supportedDocExtensions lists the accepted extensions for file attachments.
var supportedDocExtensions = map[string]bool{
	"wav": true,
	"mp3": true,
	"ogg": true,
	"wma": true,
}

// ErrUnsupportedMedia rejects a submission whose kind or extension is not
// recognised. No job is created and no temp file is written.
var ErrUnsupportedMedia = errors.New("unsupported media")

// DurationProber reports an audio file's play length in seconds.
type DurationProber interface {
	ProbeDuration(ctx context.Context, audioPath string) (float64, error)
}

// Handler holds the dependencies for all HTTP handlers.
type Handler struct {
	store  job.Store
	queue  *queue.Queue
	cfg    *config.Config
	temp   *media.TempStore
	prober DurationProber
	prefs  *prefs.Store
}

// NewHandler constructs a Handler with the given dependencies.
func NewHandler(store job.Store, q *queue.Queue, cfg *config.Config, temp *media.TempStore, prober DurationProber, prefStore *prefs.Store) *Handler {
	return &Handler{store: store, queue: q, cfg: cfg, temp: temp, prober: prober, prefs: prefStore}
}

// RegisterRoutes registers all API routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/transcriptions", h.CreateTranscription)
	mux.HandleFunc("GET /api/v1/transcriptions", h.ListTranscriptions)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}", h.GetTranscription)
	mux.HandleFunc("POST /api/v1/transcriptions/{id}/cancel", h.CancelTranscription)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}/events", h.StreamSSE)
	mux.HandleFunc("POST /api/v1/preferences/{submitter}/restore", h.ToggleRestore)
	mux.HandleFunc("GET /api/v1/health", h.Health)
}

// CreateTranscription handles POST /api/v1/transcriptions: validates the
// submission, writes the temp file, probes duration, sizes the wait budget,
// and admits the job. Responds 202 with the created job.
func (h *Handler) CreateTranscription(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	kind := r.FormValue("kind")
	if kind == "" {
		kind = "audio"
	}

	ext, err := resolveExtension(kind, header.Filename)
	if err != nil {
		writeError(w, http.StatusUnsupportedMediaType, noticeUnsupported)
		return
	}

	submitter := r.FormValue("submitter")
	if submitter == "" {
		host, _, splitErr := net.SplitHostPort(r.RemoteAddr)
		if splitErr != nil {
			host = r.RemoteAddr
		}
		submitter = host
	}

	tempPath, err := h.temp.Write(file, ext)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}

	duration, err := h.prober.ProbeDuration(r.Context(), tempPath)
	if err != nil {
		// Job never created; nothing may be left behind.
		h.temp.Remove(tempPath) //nolint:errcheck
		var decodeErr *media.DecodeError
		if errors.As(err, &decodeErr) {
			writeError(w, http.StatusUnprocessableEntity, "cannot decode audio: not a valid audio file")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to probe audio duration")
		return
	}

	now := time.Now().UTC()
	j := &job.Job{
		ID:              uuid.New().String(),
		SubmitterID:     submitter,
		DisplayName:     header.Filename,
		TempPath:        tempPath,
		DurationSeconds: duration,
		TimeoutSeconds:  transcribe.EstimateTimeout(duration),
		Restore:         h.prefs.Restore(submitter),
		CallbackURL:     r.FormValue("callback_url"),
		Status:          job.StatusQueued,
		CreatedAt:       now,
		Cancel:          job.NewCancelToken(),
	}

	if err := h.store.Create(r.Context(), j); err != nil {
		h.temp.Remove(tempPath) //nolint:errcheck
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.queue.Submit(j)

	writeJSON(w, http.StatusAccepted, j)
}

// resolveExtension maps the declared media kind and file name to the stored
// extension. Voice notes are always ogg; generic audio keeps its own
// extension; file attachments must carry a supported one.
func resolveExtension(kind, filename string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))

	switch kind {
	case "voice":
		return "ogg", nil
	case "audio":
		if ext == "" {
			return "", ErrUnsupportedMedia
		}
		return ext, nil
	case "document":
		if !supportedDocExtensions[ext] {
			return "", ErrUnsupportedMedia
		}
		return ext, nil
	default:
		return "", ErrUnsupportedMedia
	}
}

// ListTranscriptions handles GET /api/v1/transcriptions with pagination.
func (h *Handler) ListTranscriptions(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)
	offset := parseIntParam(r.URL.Query().Get("offset"), 0)

	jobs, total, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	// Return an empty array instead of null when there are no jobs.
	if jobs == nil {
		jobs = []*job.Job{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// parseIntParam parses a query string integer, returning the fallback on empty or invalid input.
func parseIntParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

// GetTranscription handles GET /api/v1/transcriptions/{id}.
func (h *Handler) GetTranscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, j)
}

// CancelTranscription handles POST /api/v1/transcriptions/{id}/cancel.
// It sets the job's own cancel token; the worker observes it at the next
// checkpoint. Only the job named in the path is affected.
func (h *Handler) CancelTranscription(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	j, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	if j.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "job already in terminal state")
		return
	}

	if !h.queue.Cancel(id) {
		// Non-terminal in the store but unknown to the queue: a row left over
		// from before a restart. Settle it directly.
		if err := h.store.UpdateStatus(r.Context(), id, job.StatusCancelled, "", "cancelled by user"); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to cancel job")
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// ToggleRestore handles POST /api/v1/preferences/{submitter}/restore and
// flips the enhanced-restoration flag read at submission time.
func (h *Handler) ToggleRestore(w http.ResponseWriter, r *http.Request) {
	submitter := r.PathValue("submitter")
	if submitter == "" {
		writeError(w, http.StatusBadRequest, "missing submitter")
		return
	}

	restore := h.prefs.ToggleRestore(submitter)
	writeJSON(w, http.StatusOK, map[string]any{
		"submitter": submitter,
		"restore":   restore,
	})
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": h.queue.Depth(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

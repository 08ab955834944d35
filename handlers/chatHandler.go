package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"declarations/logging"
	"declarations/models"
	"declarations/services/chat"
	"declarations/stream"

	"github.com/gorilla/mux"
)

// ChatStreamer produces the streamed assistant response for a transcript.
type ChatStreamer interface {
	Stream(ctx context.Context, messages []models.Message, sink chat.EventSink) error
}

// MaxRequestBytes bounds a chat request body, attachments included.
const MaxRequestBytes = 16 << 20

type ChatHandler struct {
	service ChatStreamer
	timeout time.Duration
	logger  *slog.Logger
}

func NewChatHandler(service ChatStreamer, timeout time.Duration, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		service: service,
		timeout: timeout,
		logger:  logging.NewComponentLogger(logger, "http"),
	}
}

func (h *ChatHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/chat", h.Chat).Methods("POST")
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Received chat request", "remote", r.RemoteAddr)

	var req models.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBytes)).Decode(&req); err != nil {
		h.logger.Error("Failed to decode chat request JSON", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeErrorResponse(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if err := validateMessages(req.Messages); err != nil {
		h.logger.Error("Invalid chat request", "error", err)
		h.writeErrorResponse(w, http.StatusBadRequest, "Invalid chat request: "+err.Error())
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	stream.WriteHeaders(w)
	w.WriteHeader(http.StatusOK)

	// Once the stream has started failures travel as error lines, so the
	// status code cannot change any more.
	if err := h.service.Stream(ctx, req.Messages, stream.NewEncoder(w)); err != nil {
		h.logger.Error("Chat stream failed", "error", err)
		return
	}

	h.logger.Info("Chat request completed")
}

func validateMessages(messages []models.Message) error {
	if len(messages) == 0 {
		return errors.New("at least one message is required")
	}
	for i, msg := range messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("message %d has invalid role %q", i, msg.Role)
		}
	}
	return nil
}

func (h *ChatHandler) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

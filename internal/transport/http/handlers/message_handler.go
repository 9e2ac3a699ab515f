package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/tessner/clack/internal/service"
	"github.com/tessner/clack/internal/transport/http/middleware"
	"github.com/tessner/clack/pkg/validator"
)

type MessageHandler struct {
	messageService *service.MessageService
}

func NewMessageHandler(messageService *service.MessageService) *MessageHandler {
	return &MessageHandler{messageService: messageService}
}

// List is the backlog/history endpoint: initial channel load pages with
// ?before, reconnect catch-up asks for everything ?after the last id the
// client held.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	before := queryInt64(r, "before")
	after := queryInt64(r, "after")
	limit := queryLimit(r, 50)

	resp, err := h.messageService.List(r.Context(), userID, channelID, before, after, limit)
	if err != nil {
		h.messageError(w, "list messages", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *MessageHandler) Search(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	messages, err := h.messageService.Search(r.Context(), userID, channelID, r.URL.Query().Get("q"), queryLimit(r, 50))
	if err != nil {
		h.messageError(w, "search messages", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *MessageHandler) ListThread(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := pathID(r, "id")
	if messageID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	replies, err := h.messageService.ListThread(r.Context(), userID, messageID, queryLimit(r, 100))
	if err != nil {
		h.messageError(w, "list thread", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"replies": replies})
}

func (h *MessageHandler) ListReactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := pathID(r, "id")
	if messageID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	reactions, err := h.messageService.ListReactions(r.Context(), userID, messageID)
	if err != nil {
		h.messageError(w, "list reactions", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reactions": reactions})
}

// RegisterAttachment records file metadata only; the binary went to
// external storage already.
func (h *MessageHandler) RegisterAttachment(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := pathID(r, "id")
	if messageID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid message ID")
		return
	}

	var input struct {
		FileURL  string `json:"file_url"`
		FileType string `json:"file_type"`
		FileSize int64  `json:"file_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateAttachment(input.FileURL, input.FileType, input.FileSize); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	attachment, err := h.messageService.RegisterAttachment(r.Context(), userID, messageID, input.FileURL, input.FileType, input.FileSize)
	if err != nil {
		h.messageError(w, "register attachment", err)
		return
	}

	writeJSON(w, http.StatusCreated, attachment)
}

func (h *MessageHandler) messageError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Message not found")
	case errors.Is(err, service.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
	case errors.Is(err, service.ErrNotChannelMember):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this channel")
	case errors.Is(err, service.ErrNotMessageOwner):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You can only modify your own messages")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

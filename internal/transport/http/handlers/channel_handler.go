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

type ChannelHandler struct {
	channelService *service.ChannelService
	messageService *service.MessageService
}

func NewChannelHandler(channelService *service.ChannelService, messageService *service.MessageService) *ChannelHandler {
	return &ChannelHandler{channelService: channelService, messageService: messageService}
}

func (h *ChannelHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input service.CreateChannelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if errs := validator.ValidateChannel(input.Name, input.Type); errs.HasErrors() {
		writeValidationErrors(w, errs)
		return
	}

	ch, err := h.channelService.Create(r.Context(), userID, input)
	if err != nil {
		log.Printf("ERROR create channel: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusCreated, ch)
}

func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	ch, err := h.channelService.GetByID(r.Context(), userID, channelID)
	if err != nil {
		h.channelError(w, "get channel", err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	channels, err := h.channelService.ListForUser(r.Context(), userID)
	if err != nil {
		log.Printf("ERROR list channels: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, channels)
}

func (h *ChannelHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	var input service.UpdateChannelInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if input.Name != nil {
		if errs := validator.ValidateChannel(*input.Name, ""); errs.HasErrors() {
			writeValidationErrors(w, errs)
			return
		}
	}

	ch, err := h.channelService.Update(r.Context(), userID, channelID, input)
	if err != nil {
		h.channelError(w, "update channel", err)
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	if err := h.channelService.Archive(r.Context(), userID, channelID); err != nil {
		h.channelError(w, "archive channel", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	var input struct {
		UserID int64 `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := h.channelService.AddMember(r.Context(), userID, channelID, input.UserID); err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyMember):
			writeError(w, http.StatusConflict, "ALREADY_MEMBER", "User is already a member")
		case errors.Is(err, service.ErrChannelArchived):
			writeError(w, http.StatusConflict, "ARCHIVED", "Channel is archived")
		default:
			h.channelError(w, "add member", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	memberID := pathID(r, "uid")
	if channelID == 0 || memberID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid ID")
		return
	}

	if err := h.channelService.RemoveMember(r.Context(), userID, channelID, memberID); err != nil {
		h.channelError(w, "remove member", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ChannelHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	members, err := h.channelService.ListMembers(r.Context(), userID, channelID)
	if err != nil {
		h.channelError(w, "list members", err)
		return
	}

	writeJSON(w, http.StatusOK, members)
}

// GetOrCreateDirect is idempotent: repeated calls for the same pair, in
// either order, return the same channel.
func (h *ChannelHandler) GetOrCreateDirect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var input struct {
		UserID int64 `json:"user_id"`
		OrgID  int64 `json:"org_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.UserID <= 0 {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	ch, err := h.channelService.GetOrCreateDirect(r.Context(), userID, input.UserID, input.OrgID)
	if err != nil {
		if errors.Is(err, service.ErrDirectWithSelf) {
			writeError(w, http.StatusBadRequest, "INVALID_TARGET", "Cannot open a direct channel with yourself")
			return
		}
		log.Printf("ERROR direct channel: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	writeJSON(w, http.StatusOK, ch)
}

func (h *ChannelHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	channelID := pathID(r, "id")
	if channelID == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return
	}

	var input struct {
		LastMessageID int64 `json:"last_message_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
			return
		}
	}

	member, err := h.messageService.MarkRead(r.Context(), userID, channelID, input.LastMessageID)
	if err != nil {
		h.channelError(w, "mark read", err)
		return
	}

	writeJSON(w, http.StatusOK, member)
}

func (h *ChannelHandler) channelError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrChannelNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
	case errors.Is(err, service.ErrNotChannelMember):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "You do not have access to this channel")
	case errors.Is(err, service.ErrNotChannelAdmin):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Insufficient channel role")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

// ABOUTME: HTTP API handlers for the reminder endpoints.
// ABOUTME: Provides GET/POST /api/reminders and DELETE /api/reminders/{id}.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warrenlabs/warren-gateway/internal/cron"
	"github.com/warrenlabs/warren-gateway/internal/relay"
	"github.com/warrenlabs/warren-gateway/internal/store"
)

// ScheduleReminderRequest is the JSON request body for POST /api/reminders.
type ScheduleReminderRequest struct {
	Channel  string `json:"channel,omitempty"`
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id,omitempty"`
	Message  string `json:"message"`
	At       string `json:"at"`
	TZ       string `json:"tz,omitempty"`
}

// ReminderResponse is the JSON representation of a stored reminder.
type ReminderResponse struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id,omitempty"`
	Message   string `json:"message"`
	FireAt    string `json:"fire_at"`
	Delivered bool   `json:"delivered"`
	CreatedAt string `json:"created_at"`
}

// ListRemindersResponse is the JSON response for GET /api/reminders.
type ListRemindersResponse struct {
	Reminders []ReminderResponse `json:"reminders"`
}

func reminderToResponse(r *store.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:        r.ID,
		Channel:   r.Channel,
		ChatID:    r.ChatID,
		SenderID:  r.SenderID,
		Message:   r.Message,
		FireAt:    r.FireAt.Format(time.RFC3339),
		Delivered: r.Delivered,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// handleReminders handles GET and POST /api/reminders.
func (g *Gateway) handleReminders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListReminders(w, r)
	case http.MethodPost:
		g.handleScheduleReminder(w, r)
	default:
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleListReminders handles GET /api/reminders requests. The channel and
// chat_id query parameters narrow the listing to one conversation.
func (g *Gateway) handleListReminders(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	chatID := r.URL.Query().Get("chat_id")

	reminders, err := g.scheduler.List(r.Context(), channel, chatID)
	if err != nil {
		g.logger.Error("failed to list reminders", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list reminders")
		return
	}

	resp := ListRemindersResponse{Reminders: make([]ReminderResponse, 0, len(reminders))}
	for _, rem := range reminders {
		resp.Reminders = append(resp.Reminders, reminderToResponse(rem))
	}
	g.writeJSON(w, http.StatusOK, resp)
}

// handleScheduleReminder handles POST /api/reminders requests.
func (g *Gateway) handleScheduleReminder(w http.ResponseWriter, r *http.Request) {
	req, err := parseScheduleRequest(r.Body)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	reminder, err := g.scheduler.Schedule(r.Context(), cron.ScheduleRequest{
		Channel:  req.Channel,
		ChatID:   req.ChatID,
		SenderID: req.SenderID,
		Message:  req.Message,
		At:       req.At,
		TZ:       req.TZ,
	})
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	g.logger.Info("reminder scheduled via API",
		"reminder_id", reminder.ID,
		"channel", reminder.Channel,
		"chat_id", reminder.ChatID,
		"fire_at", reminder.FireAt,
	)
	g.writeJSON(w, http.StatusCreated, reminderToResponse(reminder))
}

// handleReminderByID handles DELETE /api/reminders/{id} requests.
func (g *Gateway) handleReminderByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		g.sendJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/reminders/")
	if id == "" || strings.Contains(id, "/") {
		g.sendJSONError(w, http.StatusBadRequest, "reminder id required")
		return
	}

	if err := g.scheduler.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			g.sendJSONError(w, http.StatusNotFound, "reminder not found")
			return
		}
		g.logger.Error("failed to cancel reminder", "reminder_id", id, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to cancel reminder")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseScheduleRequest parses and validates a ScheduleReminderRequest from
// the given reader. The channel defaults to the HTTP relay when omitted.
func parseScheduleRequest(r io.Reader) (*ScheduleReminderRequest, error) {
	var req ScheduleReminderRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	if req.ChatID == "" {
		return nil, fmt.Errorf("chat_id is required")
	}
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	if req.At == "" {
		return nil, fmt.Errorf("at is required")
	}
	if req.Channel == "" {
		req.Channel = relay.ChannelName
	}
	return &req, nil
}

// writeJSON writes a JSON response with the given status code.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("failed to encode JSON response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

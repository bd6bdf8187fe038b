package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/chorechamp/internal/middleware"
	"github.com/dukerupert/chorechamp/internal/websocket"
)

// Mailer delivers transactional mail. *email.Client satisfies it.
type Mailer interface {
	SendInvite(ctx context.Context, toEmail, inviterName, token string) error
	SendWelcome(ctx context.Context, toEmail, name string) error
	SendChoreAssigned(ctx context.Context, toEmail, name, chore string, points int, due *time.Time) error
	SendChoreCompleted(ctx context.Context, toEmail, parentName, completedBy, chore string) error
	InviteURL(token string) string
}

// Broadcaster pushes live updates to a household and hangs up on members who
// leave it. *websocket.Hub satisfies it.
type Broadcaster interface {
	Broadcast(householdID int64, msg websocket.Message)
	Disconnect(householdID, userID int64) int
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// serverError logs err with the request id and answers with a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err, "request_id", middleware.RequestIDFrom(r.Context()))
	writeError(w, http.StatusInternalServerError, "Something went wrong, please try again")
}

func parseIDParam(r *http.Request) (int64, error) {
	return parsePathID(r, "id")
}

func parsePathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// mailLogged runs send and logs a failure. Mail is best effort and never
// fails the request.
func mailLogged(logger *slog.Logger, kind string, send func() error) {
	if err := send(); err != nil {
		logger.Warn("send email", "kind", kind, "error", err)
	}
}

package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorechamp/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and runs the connection
// as a client of the caller's household. Callers without a household get 409.
func HandleWebSocket(hub *Hub, origins []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !ac.InHousehold() {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "Join or create a household first"})
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{OriginPatterns: originPatterns(origins)})
		if err != nil {
			logger.Warn("websocket accept", "user_id", ac.UserID, "error", err)
			return
		}

		logger.Debug("websocket connected", "user_id", ac.UserID, "household_id", ac.HouseholdID)
		client := NewClient(hub, conn, ac.HouseholdID, ac.UserID)
		client.Run(r.Context())
		logger.Debug("websocket disconnected", "user_id", ac.UserID, "household_id", ac.HouseholdID)
	}
}

// originPatterns converts configured origins such as "http://localhost:3000"
// into the host patterns coder/websocket matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		patterns = append(patterns, o)
	}
	return patterns
}

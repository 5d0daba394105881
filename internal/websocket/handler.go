package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/rewardledger/internal/auth"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to WebSocket
// and runs them as Hub clients scoped to the caller in the request context.
func HandleWebSocket(hub *Hub, originPatterns []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		ac, _ := auth.FromContext(r.Context())
		hub.logger.Debug("feed connected", "account_id", ac.AccountID, "admin", ac.Admin)
		client := NewClient(hub, conn, ac.AccountID, ac.Admin)
		client.Run(r.Context())
		hub.logger.Debug("feed disconnected", "account_id", ac.AccountID)
	}
}

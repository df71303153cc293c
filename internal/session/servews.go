package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/permission"
)

// null subprotocol required by Chrome
// TODO restrict CheckOrigin
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	Subprotocols:    []string{"null"},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler returns an http.HandlerFunc serving relay websocket
// connections. The credential is checked before the upgrade so no
// session state of any kind exists for a failed authentication.
func Handler(closed <-chan struct{}, config Config) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		bearer := bearerToken(r)

		if bearer == "" {
			log.Info("unauthenticated connection attempt - no token")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		principal, err := permission.Verify(bearer, config.Secret, config.Audience)

		if err != nil {
			if errors.Is(err, permission.ErrMissingClaims) {
				log.Info("unauthenticated connection attempt - token missing required claims")
			} else {
				log.Info("unauthenticated connection attempt - token invalid")
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithField("error", err.Error()).Error("failed to upgrade to websocket")
			return
		}

		sessionID := uuid.New().String()

		client := &Client{
			config:    config,
			conn:      conn,
			sock:      hub.NewClient(sessionID),
			principal: principal,
			sessionID: sessionID,
			joined:    make(map[string]bool),
		}

		log.WithFields(log.Fields{"session": sessionID, "user": principal.ID}).Info("session active")

		go client.writePump(closed)
		go client.readPump()

		client.snapshot()
	}
}

// bearerToken extracts the credential from the Authorization header
// or, for browser clients that cannot set headers on a websocket
// dial, from the token query parameter
func bearerToken(r *http.Request) string {

	auth := r.Header.Get("Authorization")

	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return r.URL.Query().Get("token")
}

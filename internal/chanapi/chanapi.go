// Package chanapi exposes the accessible-channels lookup over HTTP
// for clients that want the list without opening a websocket
package chanapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/Goal651/discord-bot-server/internal/permission"
	"github.com/Goal651/discord-bot-server/internal/upstream"
)

// Config specifies parameters for the channels API
type Config struct {
	Audience  string
	Secret    string
	Directory upstream.Directory
}

// response is the envelope for every HTTP reply
type response struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// AddRoutes registers the channels API on the router
func AddRoutes(r *mux.Router, config Config) {
	r.HandleFunc("/api/channels", getChannelsHandler(config)).Methods(http.MethodGet)
}

func getChannelsHandler(config Config) http.HandlerFunc {

	return func(w http.ResponseWriter, r *http.Request) {

		principal, err := authenticate(r, config)

		if err != nil {
			reply(w, http.StatusUnauthorized, response{Status: "failed", Message: "unauthorized"})
			return
		}

		channels, err := config.Directory.AccessibleChannels(r.Context(), principal.ID)

		if err != nil {
			log.WithFields(log.Fields{"user": principal.ID, "error": err.Error()}).Warn("accessible channels lookup failed")
			reply(w, http.StatusBadGateway, response{Status: "failed", Message: "upstream unavailable"})
			return
		}

		reply(w, http.StatusOK, response{Status: "succeed", Data: channels})
	}
}

func authenticate(r *http.Request, config Config) (permission.Principal, error) {

	auth := r.Header.Get("Authorization")
	bearer := strings.TrimPrefix(auth, "Bearer ")

	return permission.Verify(bearer, config.Secret, config.Audience)
}

func reply(w http.ResponseWriter, status int, body response) {

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithField("error", err.Error()).Error("encoding http response")
	}
}

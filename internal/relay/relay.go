// Package relay is the composition root: it constructs the registry,
// hub, dispatcher and upstream adapters and ties their lifecycles to
// server start and stop
package relay

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/Goal651/discord-bot-server/internal/chanapi"
	"github.com/Goal651/discord-bot-server/internal/dispatch"
	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/registry"
	"github.com/Goal651/discord-bot-server/internal/session"
	"github.com/Goal651/discord-bot-server/internal/upstream"
)

// Config represents configuration options for a relay instance
type Config struct {

	// Port is the listening port for websocket and HTTP traffic
	Port int

	// Audience must match the aud in presented tokens
	Audience string

	// Secret validates presented tokens
	Secret string

	// UpstreamFeedURL is the gateway event stream (ws/wss)
	UpstreamFeedURL string

	// UpstreamAPIURL is the collaborator's REST API base
	UpstreamAPIURL string

	// UpstreamToken authenticates us to the collaborator
	UpstreamToken string

	// ConnectTimeout bounds the wait for the first feed connection;
	// failing to reach the feed at startup is fatal
	ConnectTimeout time.Duration
}

// Relay runs a relay instance until closed is closed
func Relay(closed <-chan struct{}, parentwg *sync.WaitGroup, config Config) {

	defer parentwg.Done()

	reg := registry.New()

	h := hub.New()
	go h.Run(closed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-closed
		cancel()
	}()

	feed := upstream.NewFeed(config.UpstreamFeedURL)
	go feed.Run(ctx)

	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 30 * time.Second
	}

	select {
	case <-feed.Connected:
		log.Info("upstream feed connected")
	case <-time.After(connectTimeout):
		log.Fatalf("no upstream feed connection within %s", connectTimeout)
	case <-closed:
		return
	}

	directory := upstream.NewHTTPDirectory(config.UpstreamAPIURL, config.UpstreamToken)

	d := &dispatch.Dispatcher{
		Registry: reg,
		Hub:      h,
		Events:   feed.Events,
	}
	go d.Run(closed)

	r := mux.NewRouter()

	r.HandleFunc("/relay", session.Handler(closed, session.Config{
		Audience:  config.Audience,
		Secret:    config.Secret,
		Hub:       h,
		Registry:  reg,
		Directory: directory,
	}))

	chanapi.AddRoutes(r, chanapi.Config{
		Audience:  config.Audience,
		Secret:    config.Secret,
		Directory: directory,
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(config.Port),
		Handler: r,
	}

	go func() {
		<-closed
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Errorf("server shutdown error %s", err.Error())
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("relay server error: %s", err.Error())
	}

	log.Trace("relay done")
}

// Package dispatch fans normalized upstream events out to the
// delivery groups of channels with at least one subscriber
package dispatch

import (
	"encoding/json"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/normalize"
	"github.com/Goal651/discord-bot-server/internal/registry"
	"github.com/Goal651/discord-bot-server/internal/upstream"
	"github.com/Goal651/discord-bot-server/internal/wire"
)

// Dispatcher consumes gateway events, consults the registry and
// broadcasts to interested sessions. Delivery is at-most-once and
// best-effort; the chat platform is the source of truth, not this
// relay.
type Dispatcher struct {
	Registry *registry.Store
	Hub      *hub.Hub
	Events   <-chan upstream.GatewayEvent
}

// Run processes events until closed; one bad event never takes down
// delivery for other channels. Run this in a separate goroutine.
func (d *Dispatcher) Run(closed <-chan struct{}) {
	for {
		select {
		case <-closed:
			return
		case ev := <-d.Events:
			d.dispatch(ev)
		}
	}
}

func (d *Dispatcher) dispatch(ev upstream.GatewayEvent) {

	n, err := normalize.Normalize(ev)

	if err != nil {
		switch {
		case errors.Is(err, normalize.ErrBotAuthor):
			log.Trace("dropping bot-authored message")
		case errors.Is(err, normalize.ErrUnknownEvent):
			log.WithField("type", ev.Type).Trace("ignoring gateway event")
		default:
			log.WithFields(log.Fields{"type": ev.Type, "error": err.Error()}).Warn("dropping malformed gateway event")
		}
		return
	}

	// the common case is a channel nobody has joined; drop with no
	// transport work at all
	if !d.Registry.HasSubscribers(n.Message.ChannelID) {
		return
	}

	env, err := envelope(n)
	if err != nil {
		log.WithField("error", err.Error()).Error("encoding relay event")
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		log.WithField("error", err.Error()).Error("encoding relay envelope")
		return
	}

	d.Hub.Broadcast <- hub.Message{
		Group: hub.ChannelGroup(n.Message.ChannelID),
		Data:  data,
		Sent:  time.Now(),
	}
}

func envelope(n normalize.Event) (wire.Envelope, error) {

	switch n.Kind {
	case normalize.Updated:
		return wire.NewEnvelope(wire.EventMessageUpdate, n.Message)
	case normalize.Deleted:
		return wire.NewEnvelope(wire.EventMessageDelete, wire.Deletion{
			MessageID: n.Message.ID,
			ChannelID: n.Message.ChannelID,
		})
	default:
		return wire.NewEnvelope(wire.EventMessage, n.Message)
	}
}

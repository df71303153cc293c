package session

import (
	"context"
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/upstream"
	"github.com/Goal651/discord-bot-server/internal/wire"
)

// snapshot emits the principal info and accessible channel list to a
// newly active session
func (c *Client) snapshot() {

	c.emit(wire.EventUserInfo, wire.User{
		ID:          c.principal.ID,
		Username:    c.principal.Username,
		DisplayName: c.principal.DisplayName,
		Bot:         c.principal.Bot,
	})

	c.emit(wire.EventChannelsList, c.accessibleChannels())
}

// handle processes one inbound envelope; errors are contained here so
// one failing request never terminates the connection's other
// listeners
func (c *Client) handle(data []byte) {

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(log.Fields{"user": c.principal.ID, "stack": r}).Error("panic in session handler")
			c.emitError(wire.CodeInternal, "internal error", "error")
		}
	}()

	var env wire.Envelope

	if err := json.Unmarshal(data, &env); err != nil {
		c.emitError(wire.CodeBadRequest, "undecodable request", "warn")
		return
	}

	switch env.Event {
	case wire.EventGetChannels:
		c.getChannels(env)
	case wire.EventJoinChannel:
		c.joinChannel(env)
	case wire.EventLeaveChannel:
		c.leaveChannel(env)
	case wire.EventSendMessage:
		c.sendMessage(env)
	default:
		c.ack(env, result{Success: false, Code: wire.CodeBadRequest, Error: "unknown event " + env.Event})
	}
}

// getChannels always answers, with an empty list if upstream fails
func (c *Client) getChannels(env wire.Envelope) {

	channels := c.accessibleChannels()

	if env.ID != nil {
		c.ack(env, struct {
			result
			Channels []wire.ChannelAccess `json:"channels"`
		}{result{Success: true}, channels})
		return
	}

	c.emit(wire.EventChannelsList, channels)
}

// joinChannel is transactional: group attach, joined-set update,
// registry subscribe and confirmation all happen, or none do
func (c *Client) joinChannel(env wire.Envelope) {

	var req joinRequest

	if err := json.Unmarshal(env.Data, &req); err != nil || req.ChannelID == "" {
		c.ack(env, result{Success: false, Code: wire.CodeBadRequest, Error: "missing channelId"})
		return
	}

	if c.joined[req.ChannelID] {
		c.ack(env, result{Success: true, AlreadyJoined: true})
		return
	}

	channel, err := c.config.Directory.FetchChannel(context.Background(), req.ChannelID)

	// the lookup suspended us; re-check membership before mutating
	// anything in case it changed while we waited
	if c.joined[req.ChannelID] {
		c.ack(env, result{Success: true, AlreadyJoined: true})
		return
	}

	if err != nil {
		code := wire.CodeUpstreamUnavailable
		msg := "channel lookup failed"
		if errors.Is(err, upstream.ErrNotFound) {
			code = wire.CodeNotFound
			msg = "unknown channel"
		}
		log.WithFields(log.Fields{"user": c.principal.ID, "channel": req.ChannelID, "error": err.Error()}).Warn("join failed")
		c.ack(env, result{Success: false, Code: code, Error: msg})
		return
	}

	c.config.Hub.Join <- hub.Membership{Client: c.sock, Group: hub.ChannelGroup(req.ChannelID)}
	c.joined[req.ChannelID] = true
	c.config.Registry.Subscribe(req.ChannelID, c.principal.ID)

	log.WithFields(log.Fields{"user": c.principal.ID, "channel": req.ChannelID}).Debug("joined channel")

	c.ack(env, struct {
		result
		Channel wire.Channel `json:"channel"`
	}{result{Success: true}, toWireChannel(channel)})
}

// leaveChannel reports success even if the channel was not joined
func (c *Client) leaveChannel(env wire.Envelope) {

	var req joinRequest

	if err := json.Unmarshal(env.Data, &req); err != nil || req.ChannelID == "" {
		c.ack(env, result{Success: false, Code: wire.CodeBadRequest, Error: "missing channelId"})
		return
	}

	if c.joined[req.ChannelID] {
		c.config.Hub.Leave <- hub.Membership{Client: c.sock, Group: hub.ChannelGroup(req.ChannelID)}
		delete(c.joined, req.ChannelID)
		c.config.Registry.Unsubscribe(req.ChannelID, c.principal.ID)
	}

	c.ack(env, result{Success: true})
}

// sendMessage relays user text into the upstream channel
func (c *Client) sendMessage(env wire.Envelope) {

	var req sendRequest

	if err := json.Unmarshal(env.Data, &req); err != nil || req.ChannelID == "" || req.Content == "" {
		c.ack(env, result{Success: false, Code: wire.CodeBadRequest, Error: "missing channelId or content"})
		return
	}

	sent, err := c.config.Directory.SendMessage(context.Background(), req.ChannelID, req.Content)

	if err != nil {
		code := wire.CodeUpstreamUnavailable
		msg := "send failed"
		if errors.Is(err, upstream.ErrNotFound) {
			code = wire.CodeNotFound
			msg = "unknown channel"
		}
		log.WithFields(log.Fields{"user": c.principal.ID, "channel": req.ChannelID, "error": err.Error()}).Warn("send failed")
		c.ack(env, result{Success: false, Code: code, Error: msg})
		return
	}

	c.ack(env, struct {
		result
		Message upstream.SentMessage `json:"message"`
	}{result{Success: true}, sent})
}

// disconnect unwinds every subscription this session holds and
// notifies each channel's remaining members. It runs on every read
// pump exit, so transport failures clean up the same way explicit
// leaves do.
func (c *Client) disconnect() {

	for channelID := range c.joined {

		c.config.Registry.Unsubscribe(channelID, c.principal.ID)
		c.config.Hub.Leave <- hub.Membership{Client: c.sock, Group: hub.ChannelGroup(channelID)}

		// nobody left listening means nobody to notify
		if !c.config.Registry.HasSubscribers(channelID) {
			continue
		}

		env, err := wire.NewEnvelope(wire.EventUserLeft, wire.UserLeft{
			ChannelID: channelID,
			User: wire.User{
				ID:          c.principal.ID,
				Username:    c.principal.Username,
				DisplayName: c.principal.DisplayName,
				Bot:         c.principal.Bot,
			},
		})

		if err != nil {
			log.WithField("error", err.Error()).Error("encoding user_left")
			continue
		}

		data, err := json.Marshal(env)
		if err != nil {
			log.WithField("error", err.Error()).Error("encoding user_left envelope")
			continue
		}

		c.config.Hub.Broadcast <- hub.Message{Group: hub.ChannelGroup(channelID), Data: data}
	}

	c.joined = make(map[string]bool)

	log.WithFields(log.Fields{"session": c.sessionID, "user": c.principal.ID}).Info("session disconnected")
}

func (c *Client) accessibleChannels() []wire.ChannelAccess {

	list, err := c.config.Directory.AccessibleChannels(context.Background(), c.principal.ID)

	if err != nil {
		log.WithFields(log.Fields{"user": c.principal.ID, "error": err.Error()}).Warn("accessible channels lookup failed")
		return []wire.ChannelAccess{}
	}

	channels := []wire.ChannelAccess{}

	for _, ca := range list {
		channels = append(channels, wire.ChannelAccess{
			Channel:   toWireChannel(ca.Channel),
			CanRead:   ca.CanRead,
			CanWrite:  ca.CanWrite,
			CanManage: ca.CanManage,
		})
	}

	return channels
}

func toWireChannel(ch upstream.Channel) wire.Channel {
	return wire.Channel{
		ID:        ch.ID,
		Name:      ch.Name,
		Type:      ch.Type,
		GuildID:   ch.GuildID,
		GuildName: ch.GuildName,
	}
}

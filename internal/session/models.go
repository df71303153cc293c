package session

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/permission"
	"github.com/Goal651/discord-bot-server/internal/registry"
	"github.com/Goal651/discord-bot-server/internal/upstream"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024
)

// Config represents what a connection handler needs to do its job
type Config struct {

	// Audience must match the aud in presented tokens
	Audience string

	// Secret validates presented tokens
	Secret string

	Hub *hub.Hub

	Registry *registry.Store

	Directory upstream.Directory
}

// Client is the per-connection handler: it owns this connection's
// joined-set and unwinds all of its subscriptions on disconnect
type Client struct {
	config Config

	conn *websocket.Conn

	// sock carries outbound messages from the hub to the write pump
	sock *hub.Client

	principal permission.Principal

	sessionID string

	// channel IDs this session has joined; only mutated by this
	// connection's read pump
	joined map[string]bool
}

// result is the base ack payload for client requests
type result struct {
	Success       bool   `json:"success"`
	AlreadyJoined bool   `json:"alreadyJoined,omitempty"`
	Error         string `json:"error,omitempty"`
	Code          string `json:"code,omitempty"`
}

type joinRequest struct {
	ChannelID string `json:"channelId"`
}

type sendRequest struct {
	ChannelID string `json:"channelId"`
	Content   string `json:"content"`
}

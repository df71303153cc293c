// Package hub provides group-scoped fan-out of pre-encoded messages
// to connected clients. A client may belong to any number of groups;
// all membership mutation happens on the single Run goroutine.
package hub

import (
	"sync"
	"time"

	"github.com/eclesh/welford"
)

// Group tags under this prefix carry relay traffic, isolating it from
// any other traffic sharing the hub
const groupPrefix = "relay:channel:"

// ChannelGroup returns the delivery group tag for a channel ID; the
// mapping is deterministic so dispatcher and sessions agree
func ChannelGroup(channelID string) string {
	return groupPrefix + channelID
}

// Hub maintains group membership and broadcasts messages to group
// members. Adapted from the gorilla/websocket chat hub.
type Hub struct {

	// Groups maps a group tag to its member clients
	Groups map[string]map[*Client]bool

	// Inbound messages for fan-out
	Broadcast chan Message

	// Join requests add a client to one group
	Join chan Membership

	// Leave requests remove a client from one group
	Leave chan Membership

	// Drop requests remove a client from every group
	Drop chan *Client

	Stats Stats
}

// Message is a pre-encoded payload addressed to one group
type Message struct {
	Group string
	Data  []byte
	Sent  time.Time
}

// Client is a middleperson between the hub and a connection's write pump
type Client struct {
	Name        string
	Send        chan Message
	ConnectedAt time.Time
}

// Membership pairs a client with a group tag for join/leave requests
type Membership struct {
	Client *Client
	Group  string
}

// Stats holds running statistics on broadcast traffic
type Stats struct {
	mu       sync.Mutex
	Audience *welford.Stats
	Bytes    *welford.Stats
	Dt       *welford.Stats
	Last     time.Time
}

// Report is a snapshot of hub statistics for external reporting
type Report struct {
	AudienceMean float64 `json:"audienceMean"`
	BytesMean    float64 `json:"bytesMean"`
	DtMean       float64 `json:"dtMean"`
	Count        uint64  `json:"count"`
}

// New returns a pointer to an initialised Hub
func New() *Hub {
	return &Hub{
		Groups:    make(map[string]map[*Client]bool),
		Broadcast: make(chan Message, 32),
		Join:      make(chan Membership),
		Leave:     make(chan Membership),
		Drop:      make(chan *Client),
		Stats: Stats{
			Audience: welford.New(),
			Bytes:    welford.New(),
			Dt:       welford.New(),
		},
	}
}

// NewClient returns a hub client with a buffered send channel
func NewClient(name string) *Client {
	return &Client{
		Name:        name,
		Send:        make(chan Message, 256),
		ConnectedAt: time.Now(),
	}
}

// Run starts the hub; all membership and fan-out happens here so no
// locks are needed on the Groups map
func (h *Hub) Run(closed <-chan struct{}) {
	for {
		select {
		case <-closed:
			return
		case m := <-h.Join:
			if _, ok := h.Groups[m.Group]; !ok {
				h.Groups[m.Group] = make(map[*Client]bool)
			}
			h.Groups[m.Group][m.Client] = true
		case m := <-h.Leave:
			h.leave(m.Client, m.Group)
		case client := <-h.Drop:
			for group := range h.Groups {
				h.leave(client, group)
			}
		case msg := <-h.Broadcast:

			members := h.Groups[msg.Group]

			h.record(len(members), len(msg.Data))

			for client := range members {
				select {
				case client.Send <- msg:
				default:
					// best effort; a full send buffer drops the message
				}
			}
		}
	}
}

func (h *Hub) leave(client *Client, group string) {

	members, ok := h.Groups[group]
	if !ok {
		return
	}

	delete(members, client)

	if len(members) == 0 {
		delete(h.Groups, group)
	}
}

func (h *Hub) record(audience, size int) {

	h.Stats.mu.Lock()
	defer h.Stats.mu.Unlock()

	dt := time.Since(h.Stats.Last)
	if dt < 24*time.Hour {
		h.Stats.Dt.Add(dt.Seconds())
	}
	h.Stats.Last = time.Now()
	h.Stats.Audience.Add(float64(audience))
	h.Stats.Bytes.Add(float64(size))
}

// GetStats returns a snapshot of broadcast statistics
func (h *Hub) GetStats() Report {

	h.Stats.mu.Lock()
	defer h.Stats.mu.Unlock()

	r := Report{
		Count: h.Stats.Bytes.Count(),
	}

	if h.Stats.Audience.Count() > 0 {
		r.AudienceMean = h.Stats.Audience.Mean()
	}
	if h.Stats.Bytes.Count() > 0 {
		r.BytesMean = h.Stats.Bytes.Mean()
	}
	if h.Stats.Dt.Count() > 0 {
		r.DtMean = h.Stats.Dt.Mean()
	}

	return r
}

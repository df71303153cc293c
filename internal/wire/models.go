// Package wire defines the JSON records exchanged with relay clients
package wire

import "encoding/json"

// Event names sent from server to client
const (
	EventMessage       = "message"
	EventMessageUpdate = "message_update"
	EventMessageDelete = "message_delete"
	EventUserInfo      = "user_info"
	EventChannelsList  = "channels_list"
	EventUserLeft      = "user_left"
	EventError         = "error"
	EventAck           = "ack"
)

// Event names sent from client to server
const (
	EventGetChannels  = "get_channels"
	EventJoinChannel  = "join_channel"
	EventLeaveChannel = "leave_channel"
	EventSendMessage  = "send_message"
)

// Error codes used in Error payloads
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeNotFound            = "not_found"
	CodeBadRequest          = "bad_request"
	CodeInternal            = "internal"
)

// Envelope wraps every message on the websocket; ID is set by the
// client when it wants an ack for the request
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    *int            `json:"id,omitempty"`
}

// NewEnvelope marshals data into an Envelope ready for sending
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: b}, nil
}

// User identifies a message author or connected principal
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
	Bot         bool   `json:"bot"`
}

// Attachment describes a file attached to a message
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// EmbedField is a single name/value row in an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedAuthor is the author block of an embed
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	IconURL string `json:"iconUrl,omitempty"`
}

// EmbedMedia is an image or thumbnail reference in an embed
type EmbedMedia struct {
	URL string `json:"url"`
}

// Embed is a rich content block attached to a message
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Color       int          `json:"color"`
	Thumbnail   *EmbedMedia  `json:"thumbnail,omitempty"`
	Image       *EmbedMedia  `json:"image,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Fields      []EmbedField `json:"fields"`
}

// Reaction is an emoji tally on a message
type Reaction struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// Message is the normalized record for a chat message; a record is
// never mutated after emission - an edit produces a fresh record with
// Edited set
type Message struct {
	ID              string       `json:"id"`
	Content         string       `json:"content"`
	Author          User         `json:"author"`
	Timestamp       string       `json:"timestamp"`
	ChannelID       string       `json:"channelId"`
	GuildID         string       `json:"guildId"`
	Attachments     []Attachment `json:"attachments"`
	Embeds          []Embed      `json:"embeds"`
	Reactions       []Reaction   `json:"reactions"`
	Edited          bool         `json:"edited"`
	EditedTimestamp string       `json:"editedTimestamp,omitempty"`
}

// Deletion is the minimal record emitted for a deleted message
type Deletion struct {
	MessageID string `json:"messageId"`
	ChannelID string `json:"channelId"`
}

// Channel describes a guild text channel to clients
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      int    `json:"type"`
	GuildID   string `json:"guildId"`
	GuildName string `json:"guildName"`
}

// ChannelAccess is a channel plus the caller's permissions on it
type ChannelAccess struct {
	Channel
	CanRead   bool `json:"canRead"`
	CanWrite  bool `json:"canWrite"`
	CanManage bool `json:"canManage"`
}

// UserLeft notifies remaining channel members of a departure
type UserLeft struct {
	ChannelID string `json:"channelId"`
	User      User   `json:"user"`
}

// Error is the structured failure record surfaced to a session
type Error struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

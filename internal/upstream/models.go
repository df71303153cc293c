// Package upstream provides the narrow interfaces and payload shapes
// of the chat-platform collaborator. The gateway client proper lives
// outside this process; we consume its events as JSON over a
// websocket feed and its directory over a REST API.
package upstream

import "encoding/json"

// Gateway event types carried on the feed
const (
	EventMessageCreate = "MESSAGE_CREATE"
	EventMessageUpdate = "MESSAGE_UPDATE"
	EventMessageDelete = "MESSAGE_DELETE"
)

// GatewayEvent is the envelope on the upstream event feed
type GatewayEvent struct {
	Type string          `json:"t"`
	Data json.RawMessage `json:"d"`
}

// Author is the upstream shape for a message author
type Author struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Avatar     string `json:"avatar"`
	Bot        bool   `json:"bot"`
}

// Attachment is the upstream shape for a file attachment
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// EmbedField is the upstream shape for an embed field
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedAuthor is the upstream shape for an embed author block
type EmbedAuthor struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	IconURL string `json:"icon_url"`
}

// EmbedMedia is the upstream shape for an embed image reference
type EmbedMedia struct {
	URL string `json:"url"`
}

// Embed is the upstream shape for a rich embed
type Embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	URL         string       `json:"url"`
	Color       int          `json:"color"`
	Thumbnail   *EmbedMedia  `json:"thumbnail"`
	Image       *EmbedMedia  `json:"image"`
	Author      *EmbedAuthor `json:"author"`
	Fields      []EmbedField `json:"fields"`
}

// Emoji is the upstream shape for a reaction emoji
type Emoji struct {
	Name string `json:"name"`
}

// Reaction is the upstream shape for a reaction tally
type Reaction struct {
	Emoji Emoji `json:"emoji"`
	Count int   `json:"count"`
}

// Message is the upstream shape for a created or updated message
type Message struct {
	ID              string       `json:"id"`
	ChannelID       string       `json:"channel_id"`
	GuildID         string       `json:"guild_id"`
	Content         string       `json:"content"`
	Author          Author       `json:"author"`
	Timestamp       string       `json:"timestamp"`
	EditedTimestamp string       `json:"edited_timestamp"`
	Attachments     []Attachment `json:"attachments"`
	Embeds          []Embed      `json:"embeds"`
	Reactions       []Reaction   `json:"reactions"`
}

// Deletion is the upstream shape for a deleted message; content is
// not reconstructed upstream so only identifiers are present
type Deletion struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

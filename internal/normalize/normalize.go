// Package normalize converts upstream gateway events into the
// versioned wire records relayed to clients. Downstream code only
// ever sees the closed set of Created/Updated/Deleted variants
// produced here, never the raw upstream shapes.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Goal651/discord-bot-server/internal/upstream"
	"github.com/Goal651/discord-bot-server/internal/wire"
)

// Kind tags the event variants
type Kind int

// Created, Updated and Deleted are the enumerated event variants
const (
	Created Kind = iota
	Updated
	Deleted
)

// Event is the normalized form of one upstream gateway event
type Event struct {
	Kind    Kind
	Message wire.Message
}

// ErrBotAuthor means the message came from a bot account; bot traffic
// is filtered before normalization and never relayed
var ErrBotAuthor = errors.New("bot-authored message")

// ErrUnknownEvent means the gateway event type is not one we relay
var ErrUnknownEvent = errors.New("unknown gateway event type")

// ErrMalformed means the upstream payload failed to parse or lacked
// required identifiers
var ErrMalformed = errors.New("malformed upstream payload")

// Normalize converts one raw gateway event into an Event. Callers
// drop and log on error; normalization failures never propagate
// beyond the event that caused them.
func Normalize(ev upstream.GatewayEvent) (Event, error) {

	switch ev.Type {
	case upstream.EventMessageCreate:
		return message(ev.Data, false)
	case upstream.EventMessageUpdate:
		return message(ev.Data, true)
	case upstream.EventMessageDelete:
		return deletion(ev.Data)
	default:
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
	}
}

func message(data []byte, edited bool) (Event, error) {

	var raw upstream.Message

	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}

	if raw.ID == "" || raw.ChannelID == "" {
		return Event{}, fmt.Errorf("%w: missing message or channel id", ErrMalformed)
	}

	if raw.Author.Bot {
		return Event{}, ErrBotAuthor
	}

	msg := wire.Message{
		ID:          raw.ID,
		Content:     raw.Content,
		Author:      author(raw.Author),
		Timestamp:   raw.Timestamp,
		ChannelID:   raw.ChannelID,
		GuildID:     raw.GuildID,
		Attachments: attachments(raw.Attachments),
		Embeds:      embeds(raw.Embeds),
		Reactions:   reactions(raw.Reactions),
	}

	kind := Created

	if edited {
		kind = Updated
		msg.Edited = true
		// edit time defaults to empty string when upstream omits it
		msg.EditedTimestamp = raw.EditedTimestamp
	}

	return Event{Kind: kind, Message: msg}, nil
}

// deletion produces a minimal record; full content is intentionally
// not reconstructed for deleted messages
func deletion(data []byte) (Event, error) {

	var raw upstream.Deletion

	if err := json.Unmarshal(data, &raw); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrMalformed, err.Error())
	}

	if raw.ID == "" || raw.ChannelID == "" {
		return Event{}, fmt.Errorf("%w: missing message or channel id", ErrMalformed)
	}

	msg := wire.Message{
		ID:          raw.ID,
		ChannelID:   raw.ChannelID,
		GuildID:     raw.GuildID,
		Attachments: []wire.Attachment{},
		Embeds:      []wire.Embed{},
		Reactions:   []wire.Reaction{},
	}

	return Event{Kind: Deleted, Message: msg}, nil
}

func author(a upstream.Author) wire.User {

	displayName := a.GlobalName
	if displayName == "" {
		displayName = a.Username
	}

	return wire.User{
		ID:          a.ID,
		Username:    a.Username,
		DisplayName: displayName,
		Avatar:      a.Avatar,
		Bot:         a.Bot,
	}
}

// attachments preserves upstream ordering; insertion order is
// relevance order for display
func attachments(raw []upstream.Attachment) []wire.Attachment {

	out := []wire.Attachment{}

	for _, a := range raw {
		out = append(out, wire.Attachment{
			ID:          a.ID,
			Filename:    a.Filename,
			URL:         a.URL,
			Size:        a.Size,
			ContentType: a.ContentType,
			Width:       a.Width,
			Height:      a.Height,
		})
	}

	return out
}

func embeds(raw []upstream.Embed) []wire.Embed {

	out := []wire.Embed{}

	for _, e := range raw {

		embed := wire.Embed{
			Title:       e.Title,
			Description: e.Description,
			URL:         e.URL,
			Color:       e.Color,
			Fields:      []wire.EmbedField{},
		}

		if e.Thumbnail != nil {
			embed.Thumbnail = &wire.EmbedMedia{URL: e.Thumbnail.URL}
		}

		if e.Image != nil {
			embed.Image = &wire.EmbedMedia{URL: e.Image.URL}
		}

		if e.Author != nil {
			embed.Author = &wire.EmbedAuthor{
				Name:    e.Author.Name,
				URL:     e.Author.URL,
				IconURL: e.Author.IconURL,
			}
		}

		for _, f := range e.Fields {
			embed.Fields = append(embed.Fields, wire.EmbedField{
				Name:   f.Name,
				Value:  f.Value,
				Inline: f.Inline,
			})
		}

		out = append(out, embed)
	}

	return out
}

func reactions(raw []upstream.Reaction) []wire.Reaction {

	out := []wire.Reaction{}

	for _, r := range raw {
		out = append(out, wire.Reaction{
			Emoji: r.Emoji.Name,
			Count: r.Count,
		})
	}

	return out
}

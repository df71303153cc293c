package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound means the channel ID is unknown upstream
var ErrNotFound = errors.New("channel not found")

// Channel describes a guild text channel as the collaborator reports it
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      int    `json:"type"`
	GuildID   string `json:"guild_id"`
	GuildName string `json:"guild_name"`
}

// ChannelAccess is a channel plus a principal's permissions on it
type ChannelAccess struct {
	Channel
	CanRead   bool `json:"can_read"`
	CanWrite  bool `json:"can_write"`
	CanManage bool `json:"can_manage"`
}

// SentMessage is the collaborator's receipt for a sent message
type SentMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Directory is the metadata and send surface of the chat-platform
// collaborator. Lookups are always live; the collaborator is the
// source of truth and we never cache its answers.
type Directory interface {
	FetchChannel(ctx context.Context, channelID string) (Channel, error)
	AccessibleChannels(ctx context.Context, principalID string) ([]ChannelAccess, error)
	SendMessage(ctx context.Context, channelID, content string) (SentMessage, error)
}

// HTTPDirectory implements Directory against the collaborator's REST API
type HTTPDirectory struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

// NewHTTPDirectory returns a Directory talking to the API at baseURL,
// authenticating with the bot token
func NewHTTPDirectory(baseURL, token string) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchChannel looks up a single channel by ID
func (d *HTTPDirectory) FetchChannel(ctx context.Context, channelID string) (Channel, error) {

	var channel Channel

	err := d.get(ctx, "/channels/"+channelID, &channel)

	return channel, err
}

// AccessibleChannels lists the channels the principal can access,
// with permission flags
func (d *HTTPDirectory) AccessibleChannels(ctx context.Context, principalID string) ([]ChannelAccess, error) {

	var channels []ChannelAccess

	err := d.get(ctx, "/users/"+principalID+"/channels", &channels)

	return channels, err
}

// SendMessage posts content to a channel on behalf of the relay
func (d *HTTPDirectory) SendMessage(ctx context.Context, channelID, content string) (SentMessage, error) {

	var sent SentMessage

	body := struct {
		Content string `json:"content"`
	}{Content: content}

	b, err := json.Marshal(body)
	if err != nil {
		return sent, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.BaseURL+"/channels/"+channelID+"/messages", strings.NewReader(string(b)))
	if err != nil {
		return sent, err
	}
	req.Header.Set("Authorization", "Bot "+d.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return sent, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return sent, ErrNotFound
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return sent, fmt.Errorf("upstream send returned %d", resp.StatusCode)
	}

	err = json.NewDecoder(resp.Body).Decode(&sent)

	return sent, err
}

func (d *HTTPDirectory) get(ctx context.Context, path string, v interface{}) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+d.Token)

	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

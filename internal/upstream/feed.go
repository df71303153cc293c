package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

// RetryConfig represents the parameters for when to retry to connect
// to the event feed; set via RELAY_FEED_* environment variables
type RetryConfig struct {
	Factor float64       `default:"2"`
	Jitter bool          `default:"true"`
	Min    time.Duration `default:"1s"`
	Max    time.Duration `default:"30s"`
}

// Feed is a reconnecting websocket client for the collaborator's
// gateway event stream. Decoded events are delivered on Events;
// envelopes that do not parse are dropped here so one bad frame
// cannot stall the stream.
type Feed struct {
	Connected chan struct{} // closed on first successful connection
	Events    chan GatewayEvent
	Retry     RetryConfig
	URL       string
	ID        string
}

// NewFeed returns a pointer to a new Feed for the stream at url, with
// retry parameters from the environment (prefix RELAY_FEED)
func NewFeed(rawURL string) *Feed {

	f := &Feed{
		Connected: make(chan struct{}),
		Events:    make(chan GatewayEvent, 64),
		URL:       rawURL,
		ID:        uuid.New().String()[0:6],
	}

	if err := envconfig.Process("relay_feed", &f.Retry); err != nil {
		log.WithField("error", err.Error()).Warn("feed retry config failed, using defaults")
		f.Retry = RetryConfig{Factor: 2, Jitter: true, Min: time.Second, Max: 30 * time.Second}
	}

	return f
}

// Run connects to the feed, reconnecting with backoff whenever the
// connection drops, until the context is cancelled. Run this in a
// separate goroutine.
func (f *Feed) Run(ctx context.Context) {

	id := "upstream.Feed(" + f.ID + ")"

	boff := &backoff.Backoff{
		Factor: f.Retry.Factor,
		Jitter: f.Retry.Jitter,
		Min:    f.Retry.Min,
		Max:    f.Retry.Max,
	}

	for {

		select {
		case <-ctx.Done():
			return
		default:

			err := f.dial(ctx)

			if err == nil {
				boff.Reset()
				log.Tracef("%s: connection finished cleanly, resetting backoff", id)
			} else {
				d := boff.Duration()
				log.WithField("error", err.Error()).Debugf("%s: connection failed, retrying in %s", id, d)
				select {
				case <-ctx.Done():
					return
				case <-time.After(d):
				}
			}
		}
	}
}

// dial connects once and reads events until the connection or context ends
func (f *Feed) dial(ctx context.Context) error {

	id := "upstream.Feed(" + f.ID + ")"

	u, err := url.Parse(f.URL)
	if err != nil {
		return err
	}

	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("feed url must start with ws or wss")
	}

	c, _, err := websocket.DefaultDialer.DialContext(ctx, f.URL, nil)
	if err != nil {
		return err
	}

	log.Infof("%s: connected to %s", id, u.Host)

	select {
	case <-f.Connected:
		// already signalled on an earlier connection
	default:
		close(f.Connected)
	}

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {

		_, data, err := c.ReadMessage()

		if err != nil {
			// expected on a clean shutdown, so log as info
			log.WithField("error", err.Error()).Infof("%s: read failed, closing connection", id)
			c.Close()
			return err
		}

		var ev GatewayEvent

		if err := json.Unmarshal(data, &ev); err != nil {
			log.WithField("error", err.Error()).Warnf("%s: dropping undecodable frame", id)
			continue
		}

		if ev.Type == "" {
			log.Warnf("%s: dropping frame with no event type", id)
			continue
		}

		select {
		case f.Events <- ev:
		case <-ctx.Done():
			c.Close()
			return nil
		}
	}
}

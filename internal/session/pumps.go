package session

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/wire"
)

// readPump pumps requests from the websocket connection to the
// handlers.
//
// The application runs readPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a
// connection by executing all reads from this goroutine; the
// joined-set is therefore only ever mutated here.
func (c *Client) readPump() {

	defer func() {
		c.disconnect()
		c.conn.Close()
		log.Trace("readpump closed")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	err := c.conn.SetReadDeadline(time.Now().Add(pongWait))

	if err != nil {
		log.Errorf("readPump deadline error: %v", err)
		return
	}

	c.conn.SetPongHandler(func(string) error {
		err := c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return err
	})

	for {

		_, data, err := c.conn.ReadMessage()

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Errorf("error: %v", err)
			}
			break
		}

		c.handle(data)
	}
}

// writePump pumps messages from the hub to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a
// connection by executing all writes from this goroutine.
func (c *Client) writePump(closed <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		log.Trace("write pump dead")
	}()
	for {
		select {

		case msg, ok := <-c.sock.Send:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err != nil {
				log.Errorf("writePump deadline error: %s", err.Error())
				return
			}

			if !ok {
				// The hub closed the channel.
				err := c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				if err != nil {
					log.Errorf("writePump closeMessage error: %s", err.Error())
				}
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				log.Errorf("writePump writing error: %v", err)
				return
			}

		case <-ticker.C:
			err := c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err != nil {
				log.Errorf("writePump ping deadline error: %v", err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

// emit sends a server-initiated event to this session only
func (c *Client) emit(event string, payload interface{}) {

	env, err := wire.NewEnvelope(event, payload)
	if err != nil {
		log.WithFields(log.Fields{"event": event, "error": err.Error()}).Error("encoding emit")
		return
	}

	c.push(env)
}

// emitError surfaces a structured error to this session only
func (c *Client) emitError(code, message, severity string) {
	c.emit(wire.EventError, wire.Error{Code: code, Message: message, Severity: severity})
}

// ack answers a request that supplied an ack id; requests without an
// id get no reply
func (c *Client) ack(env wire.Envelope, payload interface{}) {

	if env.ID == nil {
		return
	}

	reply, err := wire.NewEnvelope(wire.EventAck, payload)
	if err != nil {
		log.WithField("error", err.Error()).Error("encoding ack")
		return
	}
	reply.ID = env.ID

	c.push(reply)
}

func (c *Client) push(env wire.Envelope) {

	data, err := json.Marshal(env)
	if err != nil {
		log.WithField("error", err.Error()).Error("encoding envelope")
		return
	}

	select {
	case c.sock.Send <- hub.Message{Data: data, Sent: time.Now()}:
	default:
		log.WithField("session", c.sessionID).Warn("dropping message to unresponsive session")
	}
}

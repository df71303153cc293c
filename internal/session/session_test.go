package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/websocket"
	"github.com/phayes/freeport"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/Goal651/discord-bot-server/internal/dispatch"
	"github.com/Goal651/discord-bot-server/internal/hub"
	"github.com/Goal651/discord-bot-server/internal/permission"
	"github.com/Goal651/discord-bot-server/internal/registry"
	"github.com/Goal651/discord-bot-server/internal/upstream"
	"github.com/Goal651/discord-bot-server/internal/wire"
)

const testSecret = "somesecret"

// fakeDirectory is an in-memory stand-in for the upstream collaborator
type fakeDirectory struct {
	channels map[string]upstream.Channel
	fail     bool
	sent     []string
}

func (f *fakeDirectory) FetchChannel(ctx context.Context, channelID string) (upstream.Channel, error) {
	if f.fail {
		return upstream.Channel{}, assert.AnError
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return upstream.Channel{}, upstream.ErrNotFound
	}
	return ch, nil
}

func (f *fakeDirectory) AccessibleChannels(ctx context.Context, principalID string) ([]upstream.ChannelAccess, error) {
	if f.fail {
		return nil, assert.AnError
	}
	list := []upstream.ChannelAccess{}
	for _, ch := range f.channels {
		list = append(list, upstream.ChannelAccess{Channel: ch, CanRead: true, CanWrite: true})
	}
	return list, nil
}

func (f *fakeDirectory) SendMessage(ctx context.Context, channelID, content string) (upstream.SentMessage, error) {
	if f.fail {
		return upstream.SentMessage{}, assert.AnError
	}
	if _, ok := f.channels[channelID]; !ok {
		return upstream.SentMessage{}, upstream.ErrNotFound
	}
	f.sent = append(f.sent, content)
	return upstream.SentMessage{ID: "s1", Content: content, Timestamp: "2024-05-01T12:00:00.000Z"}, nil
}

type testRig struct {
	audience  string
	registry  *registry.Store
	hub       *hub.Hub
	events    chan upstream.GatewayEvent
	directory *fakeDirectory
	closed    chan struct{}
}

func newTestRig(t *testing.T) *testRig {

	// silence logging unless debugging
	var ignore bytes.Buffer
	log.SetOutput(bufio.NewWriter(&ignore))

	port, err := freeport.GetFreePort()
	assert.NoError(t, err)

	rig := &testRig{
		audience: "ws://127.0.0.1:" + strconv.Itoa(port),
		registry: registry.New(),
		hub:      hub.New(),
		events:   make(chan upstream.GatewayEvent, 8),
		directory: &fakeDirectory{channels: map[string]upstream.Channel{
			"C1": {ID: "C1", Name: "general", GuildID: "G1", GuildName: "guild"},
			"C2": {ID: "C2", Name: "random", GuildID: "G1", GuildName: "guild"},
		}},
		closed: make(chan struct{}),
	}

	go rig.hub.Run(rig.closed)

	d := &dispatch.Dispatcher{Registry: rig.registry, Hub: rig.hub, Events: rig.events}
	go d.Run(rig.closed)

	mux := http.NewServeMux()
	mux.HandleFunc("/relay", Handler(rig.closed, Config{
		Audience:  rig.audience,
		Secret:    testSecret,
		Hub:       rig.hub,
		Registry:  rig.registry,
		Directory: rig.directory,
	}))

	srv := &http.Server{Addr: "127.0.0.1:" + strconv.Itoa(port), Handler: mux}
	go srv.ListenAndServe()
	t.Cleanup(func() {
		close(rig.closed)
		srv.Close()
	})

	// safety margin for the server to come up
	time.Sleep(100 * time.Millisecond)

	return rig
}

func makeToken(t *testing.T, audience, userID, username, displayName string) string {
	begin := time.Now().Unix() - 1
	claims := permission.NewToken(audience, userID, username, displayName, begin, begin, begin+60)
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	assert.NoError(t, err)
	return s
}

func dial(t *testing.T, rig *testRig, token string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(rig.audience+"/relay?token="+token, nil)
	assert.NoError(t, err)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	err := conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	assert.NoError(t, err)
	_, data, err := conn.ReadMessage()
	assert.NoError(t, err)
	var env wire.Envelope
	assert.NoError(t, json.Unmarshal(data, &env))
	return env
}

// readUntil skips events until it sees the wanted one (snapshot events
// may interleave with acks)
func readUntil(t *testing.T, conn *websocket.Conn, event string) wire.Envelope {
	for i := 0; i < 10; i++ {
		env := readEnvelope(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("never received %s", event)
	return wire.Envelope{}
}

func request(t *testing.T, conn *websocket.Conn, event string, data interface{}, id int) {
	b, err := json.Marshal(data)
	assert.NoError(t, err)
	env := wire.Envelope{Event: event, Data: b, ID: &id}
	assert.NoError(t, conn.WriteJSON(env))
}

func ackFor(t *testing.T, conn *websocket.Conn, id int) result {
	for i := 0; i < 10; i++ {
		env := readEnvelope(t, conn)
		if env.Event == wire.EventAck && env.ID != nil && *env.ID == id {
			var res result
			assert.NoError(t, json.Unmarshal(env.Data, &res))
			return res
		}
	}
	t.Fatalf("never received ack %d", id)
	return result{}
}

func TestRejectsBadCredentials(t *testing.T) {

	rig := newTestRig(t)

	// no token
	_, resp, err := websocket.DefaultDialer.Dial(rig.audience+"/relay", nil)
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// wrong audience
	token := makeToken(t, "ws://other.example.io", "U1", "u1", "User One")
	_, resp, err = websocket.DefaultDialer.Dial(rig.audience+"/relay?token="+token, nil)
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// missing display name claim
	token = makeToken(t, rig.audience, "U1", "u1", "")
	_, resp, err = websocket.DefaultDialer.Dial(rig.audience+"/relay?token="+token, nil)
	assert.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// nothing was registered for any failed connection
	assert.Equal(t, 0, rig.registry.GetStats().Channels)
}

func TestSnapshotOnConnect(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()

	env := readUntil(t, conn, wire.EventUserInfo)
	var user wire.User
	assert.NoError(t, json.Unmarshal(env.Data, &user))
	assert.Equal(t, "U1", user.ID)
	assert.Equal(t, "User One", user.DisplayName)

	env = readUntil(t, conn, wire.EventChannelsList)
	var channels []wire.ChannelAccess
	assert.NoError(t, json.Unmarshal(env.Data, &channels))
	assert.Len(t, channels, 2)
}

func TestJoinAndReceiveMessage(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	request(t, conn, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	res := ackFor(t, conn, 1)
	assert.True(t, res.Success)
	assert.False(t, res.AlreadyJoined)

	assert.Equal(t, []string{"U1"}, rig.registry.Subscribers("C1"))

	// upstream event for C1 authored by a non-bot user
	msg := upstream.Message{
		ID:        "m1",
		ChannelID: "C1",
		Content:   "hi",
		Author:    upstream.Author{ID: "A1", Username: "anna"},
	}
	b, err := json.Marshal(msg)
	assert.NoError(t, err)
	rig.events <- upstream.GatewayEvent{Type: upstream.EventMessageCreate, Data: b}

	env := readUntil(t, conn, wire.EventMessage)
	var got wire.Message
	assert.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "hi", got.Content)
	assert.False(t, got.Edited)
}

func TestJoinIsIdempotent(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	request(t, conn, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	res := ackFor(t, conn, 1)
	assert.True(t, res.Success)

	request(t, conn, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 2)
	res = ackFor(t, conn, 2)
	assert.True(t, res.Success)
	assert.True(t, res.AlreadyJoined)

	// no duplicate subscriber entry
	assert.Equal(t, []string{"U1"}, rig.registry.Subscribers("C1"))
	assert.Equal(t, 1, rig.registry.GetStats().PerChannel["C1"])
}

func TestJoinUnknownChannelLeavesStateUnchanged(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	request(t, conn, wire.EventJoinChannel, joinRequest{ChannelID: "nope"}, 1)
	res := ackFor(t, conn, 1)
	assert.False(t, res.Success)
	assert.Equal(t, wire.CodeNotFound, res.Code)

	assert.Equal(t, 0, rig.registry.GetStats().Channels)
}

func TestLeaveIsIdempotent(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	request(t, conn, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	assert.True(t, ackFor(t, conn, 1).Success)

	request(t, conn, wire.EventLeaveChannel, joinRequest{ChannelID: "C1"}, 2)
	assert.True(t, ackFor(t, conn, 2).Success)
	assert.Equal(t, []string{}, rig.registry.Subscribers("C1"))

	// leaving a channel never joined still succeeds
	request(t, conn, wire.EventLeaveChannel, joinRequest{ChannelID: "C2"}, 3)
	assert.True(t, ackFor(t, conn, 3).Success)
}

func TestDisconnectCleansUpAndNotifies(t *testing.T) {

	rig := newTestRig(t)

	u1 := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	u2 := dial(t, rig, makeToken(t, rig.audience, "U2", "u2", "User Two"))
	defer u2.Close()

	readUntil(t, u1, wire.EventChannelsList)
	readUntil(t, u2, wire.EventChannelsList)

	request(t, u1, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	assert.True(t, ackFor(t, u1, 1).Success)
	request(t, u1, wire.EventJoinChannel, joinRequest{ChannelID: "C2"}, 2)
	assert.True(t, ackFor(t, u1, 2).Success)

	request(t, u2, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	assert.True(t, ackFor(t, u2, 1).Success)

	u1.Close()

	// U2 is told U1 left C1
	env := readUntil(t, u2, wire.EventUserLeft)
	var left wire.UserLeft
	assert.NoError(t, json.Unmarshal(env.Data, &left))
	assert.Equal(t, "C1", left.ChannelID)
	assert.Equal(t, "U1", left.User.ID)

	// registry no longer contains U1 anywhere
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, []string{"U2"}, rig.registry.Subscribers("C1"))
	assert.Equal(t, []string{}, rig.registry.Subscribers("C2"))
}

func TestSoleMemberDisconnectNotifiesNobody(t *testing.T) {

	rig := newTestRig(t)

	u1 := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	readUntil(t, u1, wire.EventChannelsList)

	request(t, u1, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	assert.True(t, ackFor(t, u1, 1).Success)

	before := rig.hub.GetStats().Count

	u1.Close()
	time.Sleep(200 * time.Millisecond)

	// sole member leaving an empty channel generates no broadcast
	assert.Equal(t, before, rig.hub.GetStats().Count)
	assert.Equal(t, 0, rig.registry.GetStats().Channels)
}

func TestNoSubscribersNoDelivery(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	// U1 never joins anything
	msg := upstream.Message{
		ID:        "m1",
		ChannelID: "C1",
		Content:   "hi",
		Author:    upstream.Author{ID: "A1", Username: "anna"},
	}
	b, err := json.Marshal(msg)
	assert.NoError(t, err)
	rig.events <- upstream.GatewayEvent{Type: upstream.EventMessageCreate, Data: b}

	err = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	assert.NoError(t, err)
	_, _, err = conn.ReadMessage()
	assert.Error(t, err) // deadline hit, nothing delivered
}

func TestSendMessage(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	request(t, conn, wire.EventSendMessage, sendRequest{ChannelID: "C1", Content: "hello out there"}, 1)
	res := ackFor(t, conn, 1)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"hello out there"}, rig.directory.sent)

	request(t, conn, wire.EventSendMessage, sendRequest{ChannelID: "nope", Content: "x"}, 2)
	res = ackFor(t, conn, 2)
	assert.False(t, res.Success)
	assert.Equal(t, wire.CodeNotFound, res.Code)
}

func TestGetChannelsAlwaysAnswers(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	// upstream down: still answers, with an empty list
	rig.directory.fail = true

	request(t, conn, wire.EventGetChannels, struct{}{}, 1)

	var payload struct {
		result
		Channels []wire.ChannelAccess `json:"channels"`
	}
	for i := 0; i < 10; i++ {
		env := readEnvelope(t, conn)
		if env.Event == wire.EventAck && env.ID != nil && *env.ID == 1 {
			assert.NoError(t, json.Unmarshal(env.Data, &payload))
			break
		}
	}
	assert.True(t, payload.Success)
	assert.NotNil(t, payload.Channels)
	assert.Empty(t, payload.Channels)
}

func TestBadRequestGetsStructuredError(t *testing.T) {

	rig := newTestRig(t)

	conn := dial(t, rig, makeToken(t, rig.audience, "U1", "u1", "User One"))
	defer conn.Close()
	readUntil(t, conn, wire.EventChannelsList)

	assert.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))

	env := readUntil(t, conn, wire.EventError)
	var werr wire.Error
	assert.NoError(t, json.Unmarshal(env.Data, &werr))
	assert.Equal(t, wire.CodeBadRequest, werr.Code)

	// connection still works afterwards
	request(t, conn, wire.EventJoinChannel, joinRequest{ChannelID: "C1"}, 1)
	assert.True(t, ackFor(t, conn, 1).Success)
}

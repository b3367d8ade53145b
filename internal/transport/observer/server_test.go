package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"leviathan.ai/internal/observerproto"
	"leviathan.ai/internal/sim/herd"
)

type fakeSource struct {
	frame *observerproto.TickMsg
	join  chan herd.ObserverJoinRequest
	sub   chan herd.ObserverSubscribeRequest
	leave chan string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		join:  make(chan herd.ObserverJoinRequest, 1),
		sub:   make(chan herd.ObserverSubscribeRequest, 1),
		leave: make(chan string, 1),
	}
}

func (f *fakeSource) CurrentTick() uint64                                     { return 3 }
func (f *fakeSource) LatestFrame() *observerproto.TickMsg                     { return f.frame }
func (f *fakeSource) ObserverJoin() chan<- herd.ObserverJoinRequest           { return f.join }
func (f *fakeSource) ObserverSubscribe() chan<- herd.ObserverSubscribeRequest { return f.sub }
func (f *fakeSource) ObserverLeave() chan<- string                            { return f.leave }

func TestBootstrapUsesLatestFrame(t *testing.T) {
	src := newFakeSource()
	src.frame = &observerproto.TickMsg{
		Tick:      9,
		Creatures: []observerproto.CreatureState{{ID: "L1", State: "IDLE"}},
	}
	s := NewServer(src, "ocean_1", observerproto.WorldParams{SeaLevel: 62}, []string{"AIR", "WATER"}, zerolog.Nop())

	srv := httptest.NewServer(s.BootstrapHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	var got observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Tick != 9 || len(got.Creatures) != 1 || got.Creatures[0].ID != "L1" {
		t.Fatalf("bootstrap = %+v", got)
	}
	if got.WorldID != "ocean_1" || got.WorldParams.SeaLevel != 62 || len(got.BlockPalette) != 2 {
		t.Fatalf("bootstrap world = %+v", got)
	}
}

func TestWSJoinStreamsTicks(t *testing.T) {
	src := newFakeSource()
	s := NewServer(src, "ocean_1", observerproto.WorldParams{}, nil, zerolog.Nop())
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: observerproto.Version, FocusID: "L2"}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}

	var join herd.ObserverJoinRequest
	select {
	case join = <-src.join:
	case <-time.After(2 * time.Second):
		t.Fatalf("no join request")
	}
	if join.FocusID != "L2" || join.SessionID == "" {
		t.Fatalf("join = %+v", join)
	}

	join.TickOut <- []byte(`{"type":"TICK","tick":4}`)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg observerproto.TickMsg
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "TICK" || msg.Tick != 4 {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestWSRejectsWrongProtocol(t *testing.T) {
	src := newFakeSource()
	s := NewServer(src, "ocean_1", observerproto.WorldParams{}, nil, zerolog.Nop())
	srv := httptest.NewServer(s.WSHandler())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.WriteJSON(observerproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: "0.0"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err = %v, want policy violation close", err)
	}
	select {
	case <-src.join:
		t.Fatalf("joined with wrong protocol version")
	default:
	}
}

package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wellness/booking/internal/domain/booking"
)

type testSignal struct {
	Step int `json:"step"`
}

func (testSignal) SignalName() string { return booking.SignalWizardStepChanged }

func TestHub_SubscribeAndUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := NewClient()

	hub.Subscribe(client, "calendar/1")
	if hub.TopicCount("calendar/1") != 0 {
		t.Fatal("unregistered clients must not subscribe")
	}

	hub.Register(client)
	hub.Subscribe(client, "calendar/1", "wizard/2")
	if hub.ClientCount() != 1 || hub.TopicCount("calendar/1") != 1 || hub.TopicCount("wizard/2") != 1 {
		t.Fatalf("unexpected counts: clients=%d calendar=%d wizard=%d",
			hub.ClientCount(), hub.TopicCount("calendar/1"), hub.TopicCount("wizard/2"))
	}

	hub.Unsubscribe(client, "wizard/2")
	if hub.TopicCount("wizard/2") != 0 {
		t.Errorf("expected wizard/2 to be empty")
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("calendar/1") != 0 {
		t.Errorf("expected hub to be empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Errorf("expected send queue to be closed")
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub, other := NewClient(), NewClient()
	hub.Register(sub)
	hub.Register(other)
	hub.Subscribe(sub, Topic("wizard", "w1"))
	hub.Subscribe(other, Topic("wizard", "w2"))

	hub.Publisher(Topic("wizard", "w1")).Publish(testSignal{Step: 2})

	select {
	case raw := <-sub.Send:
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Type != booking.SignalWizardStepChanged || ev.Topic != "wizard/w1" {
			t.Errorf("unexpected event %+v", ev)
		}
		if string(ev.Data) != `{"step":2}` {
			t.Errorf("unexpected data %s", ev.Data)
		}
	default:
		t.Fatal("subscriber received nothing")
	}

	select {
	case raw := <-other.Send:
		t.Errorf("other topic received %s", raw)
	default:
	}
}

func TestHub_SlowClientDropsFrames(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	drops := 0
	hub.OnDrop(func(string) { drops++ })

	client := NewClient()
	hub.Register(client)
	hub.Subscribe(client, "calendar/c")

	pub := hub.Publisher("calendar/c")
	for i := 0; i < sendBuffer+3; i++ {
		pub.Publish(testSignal{Step: i})
	}
	if drops != 3 {
		t.Errorf("expected 3 dropped frames, got %d", drops)
	}
	if len(client.Send) != sendBuffer {
		t.Errorf("expected full queue, got %d", len(client.Send))
	}
}

func TestHub_CloseTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a, b := NewClient(), NewClient()
	hub.Register(a)
	hub.Register(b)
	hub.Subscribe(a, "calendar/x")
	hub.Subscribe(b, "calendar/x")

	hub.CloseTopic("calendar/x")
	if hub.TopicCount("calendar/x") != 0 {
		t.Errorf("expected topic to be closed")
	}
	if hub.ClientCount() != 2 {
		t.Errorf("clients must stay connected, got %d", hub.ClientCount())
	}
}

func TestHandler_GuardFiltersTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	guard := func(sess booking.Session, topic string) bool { return strings.HasPrefix(topic, "calendar/") }
	h := NewHandler(hub, guard, nil, zerolog.Nop())

	client := NewClient()
	hub.Register(client)
	h.HandleMessage(booking.GuestSession(), client, ClientMessage{Action: "subscribe", Topics: []string{"calendar/1", "wizard/1", " "}})

	if hub.TopicCount("calendar/1") != 1 || hub.TopicCount("wizard/1") != 0 {
		t.Errorf("guard not applied: calendar=%d wizard=%d", hub.TopicCount("calendar/1"), hub.TopicCount("wizard/1"))
	}

	h.HandleMessage(booking.GuestSession(), client, ClientMessage{Action: "unsubscribe", Topics: []string{"calendar/1"}})
	if hub.TopicCount("calendar/1") != 0 {
		t.Errorf("expected unsubscribe to apply")
	}
}

func TestHandler_EndToEnd(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil, nil, zerolog.Nop()).RegisterRoutes(e.Group(""))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?topics=calendar/abc"
	conn, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount("calendar/abc") == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("calendar/abc") != 1 {
		t.Fatal("client never subscribed")
	}

	hub.Publisher("calendar/abc").Publish(testSignal{Step: 1})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Topic != "calendar/abc" || ev.Type != booking.SignalWizardStepChanged {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	NewHandler(hub, nil, []string{"https://portal.example"}, zerolog.Nop()).RegisterRoutes(e.Group(""))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	hdr := http.Header{"Origin": []string{"https://evil.example"}}
	if _, _, err := gorillawebsocket.DefaultDialer.Dial(url, hdr); err == nil {
		t.Fatal("expected handshake to fail for foreign origin")
	}
}

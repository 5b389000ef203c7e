package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wagate/internal/domain"
)

// fakeGraph records requests and answers like the Graph API.
type fakeGraph struct {
	mu       sync.Mutex
	requests []graphRequest
	token    string

	// failMessages answers that many message sends with failStatus.
	failMessages int
	failStatus   int
}

type graphRequest struct {
	Method string
	Path   string
	Body   map[string]any
	Raw    string
}

func (g *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	req := graphRequest{Method: r.Method, Path: r.URL.Path, Raw: string(raw)}
	json.Unmarshal(raw, &req.Body)
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+g.token {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"Invalid OAuth access token.","type":"OAuthException","code":190}}`)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/PHONE/messages" && g.takeFailure() {
		w.WriteHeader(g.failStatus)
		io.WriteString(w, `{"error":{"message":"Service temporarily unavailable","type":"OAuthException","code":2}}`)
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/PHONE":
		io.WriteString(w, `{"id":"PHONE","display_phone_number":"+62 811-0000-0000","verified_name":"Acme"}`)
	case r.Method == http.MethodPost && r.URL.Path == "/PHONE/messages":
		io.WriteString(w, `{"messaging_product":"whatsapp","messages":[{"id":"wamid.OUT"}]}`)
	case r.Method == http.MethodPost && r.URL.Path == "/PHONE/media":
		io.WriteString(w, `{"id":"MEDIA1"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/MEDIA9":
		io.WriteString(w, `{"url":"http://`+r.Host+`/files/MEDIA9","mime_type":"image/jpeg"}`)
	case r.Method == http.MethodGet && r.URL.Path == "/files/MEDIA9":
		w.Write([]byte{0xff, 0xd8, 0xff})
	case r.Method == http.MethodPost && r.URL.Path == "/PHONE/whatsapp_business_profile":
		io.WriteString(w, `{"success":true}`)
	case r.Method == http.MethodPost && r.URL.Path == "/PHONE/calls":
		io.WriteString(w, `{"success":true}`)
	default:
		http.NotFound(w, r)
	}
}

func (g *fakeGraph) takeFailure() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failMessages == 0 {
		return false
	}
	g.failMessages--
	return true
}

func (g *fakeGraph) failNext(n, status int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failMessages = n
	g.failStatus = status
}

func (g *fakeGraph) last() graphRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.requests[len(g.requests)-1]
}

func (g *fakeGraph) find(path string) []graphRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []graphRequest
	for _, r := range g.requests {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) handle(ev domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []domain.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.EventType
	for _, ev := range l.events {
		if ev.Type != domain.EventLoadingScreen {
			out = append(out, ev.Type)
		}
	}
	return out
}

func newTestClient(t *testing.T, token string) (*Client, *fakeGraph, *eventLog) {
	t.Helper()
	graph := &fakeGraph{token: "good"}
	srv := httptest.NewServer(graph)
	t.Cleanup(srv.Close)

	c := New(Config{
		AccessToken:   token,
		PhoneNumberID: "PHONE",
		VerifyToken:   "verify-me",
		APIBase:       srv.URL,
		RetryBackoff:  time.Millisecond,
		Store:         testStore(t),
		Logger:        testLogger(),
	})
	events := &eventLog{}
	c.OnEvent(events.handle)
	return c, graph, events
}

func readyClient(t *testing.T) (*Client, *fakeGraph, *eventLog) {
	t.Helper()
	c, graph, events := newTestClient(t, "good")
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c, graph, events
}

func TestInitialize_Ready(t *testing.T) {
	c, _, events := readyClient(t)

	got := events.types()
	want := []domain.EventType{domain.EventAuthenticated, domain.EventReady}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
	info := c.Info()
	if info == nil || info.SelfAddress != "6281100000000@c.us" || info.DisplayName != "Acme" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestInitialize_AuthFailure(t *testing.T) {
	c, _, events := newTestClient(t, "bad")
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := events.types(); len(got) != 1 || got[0] != domain.EventAuthFailure {
		t.Errorf("events = %v", got)
	}
	if c.Info() != nil {
		t.Error("info must stay empty after auth failure")
	}
}

func TestInitialize_TransportFailure(t *testing.T) {
	c := New(Config{
		AccessToken:   "good",
		PhoneNumberID: "PHONE",
		APIBase:       "http://127.0.0.1:1",
		Logger:        testLogger(),
	})
	events := &eventLog{}
	c.OnEvent(events.handle)

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	got := events.types()
	if len(got) != 1 || got[0] != domain.EventDisconnected {
		t.Errorf("events = %v", got)
	}
	if events.events[len(events.events)-1].Reason == "" {
		t.Error("disconnect should carry a reason")
	}
}

func TestInitialize_MissingCredentials(t *testing.T) {
	c := New(Config{Logger: testLogger()})
	if err := c.Initialize(context.Background()); err == nil {
		t.Error("expected configuration error")
	}
}

func TestSendMessage_NotReady(t *testing.T) {
	c, _, _ := newTestClient(t, "good")
	if _, err := c.SendMessage(context.Background(), "628111111111@c.us", domain.Text("hi"), nil); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestSendMessage_Text(t *testing.T) {
	c, graph, _ := readyClient(t)
	ctx := context.Background()

	sent, err := c.SendMessage(ctx, "628111111111@c.us", domain.Text("hello"), &domain.SendOptions{QuotedMessageID: "wamid.IN"})
	if err != nil {
		t.Fatal(err)
	}
	if sent.ID != "wamid.OUT" || sent.Body != "hello" || !sent.FromMe {
		t.Errorf("unexpected sent %+v", sent)
	}

	req := graph.last()
	if req.Body["to"] != "628111111111" || req.Body["type"] != "text" {
		t.Errorf("unexpected payload %s", req.Raw)
	}
	if ctxObj, _ := req.Body["context"].(map[string]any); ctxObj["message_id"] != "wamid.IN" {
		t.Errorf("reply context missing: %s", req.Raw)
	}

	// Own messages are indexed for authorship checks.
	rec, err := c.store.GetMessage(ctx, "wamid.OUT")
	if err != nil || rec == nil || !rec.FromMe || rec.QuotedID != "wamid.IN" {
		t.Errorf("own message not indexed: %+v %v", rec, err)
	}
	if chats, _ := c.GetChats(ctx); len(chats) != 1 {
		t.Errorf("expected chat indexed, got %d", len(chats))
	}
}

func TestSendMessage_RetriesTransientErrors(t *testing.T) {
	c, graph, _ := readyClient(t)
	graph.failNext(2, http.StatusServiceUnavailable)

	sent, err := c.SendMessage(context.Background(), "628111111111@c.us", domain.Text("hello"), nil)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if sent.ID != "wamid.OUT" {
		t.Errorf("unexpected sent %+v", sent)
	}
	if n := len(graph.find("/PHONE/messages")); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestSendMessage_RetriesExhausted(t *testing.T) {
	c, graph, _ := readyClient(t)
	graph.failNext(100, http.StatusTooManyRequests)

	_, err := c.SendMessage(context.Background(), "628111111111@c.us", domain.Text("hello"), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected wrapped 429 APIError, got %v", err)
	}
	if n := len(graph.find("/PHONE/messages")); n != defaultMaxRetries+1 {
		t.Errorf("expected %d attempts, got %d", defaultMaxRetries+1, n)
	}
}

func TestSendMessage_ClientErrorNotRetried(t *testing.T) {
	c, graph, _ := readyClient(t)
	graph.failNext(1, http.StatusBadRequest)

	if _, err := c.SendMessage(context.Background(), "628111111111@c.us", domain.Text("hello"), nil); err == nil {
		t.Fatal("expected error for 400")
	}
	if n := len(graph.find("/PHONE/messages")); n != 1 {
		t.Errorf("400 must not be retried, got %d attempts", n)
	}
}

func TestSendMessage_GroupUnsupported(t *testing.T) {
	c, _, _ := readyClient(t)
	if _, err := c.SendMessage(context.Background(), "1234-5678@g.us", domain.Text("hi"), nil); !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestSendMessage_Media(t *testing.T) {
	c, graph, _ := readyClient(t)
	ref := &domain.MediaRef{MimeType: "application/pdf", Data: "JVBERi0=", Filename: "invoice.pdf"}

	if _, err := c.SendMessage(context.Background(), "628111111111@c.us", ref, &domain.SendOptions{Caption: "your invoice"}); err != nil {
		t.Fatal(err)
	}

	uploads := graph.find("/PHONE/media")
	if len(uploads) != 1 || !strings.Contains(uploads[0].Raw, `filename="invoice.pdf"`) {
		t.Fatalf("expected one multipart upload, got %+v", uploads)
	}
	req := graph.last()
	doc, _ := req.Body["document"].(map[string]any)
	if req.Body["type"] != "document" || doc["id"] != "MEDIA1" || doc["caption"] != "your invoice" || doc["filename"] != "invoice.pdf" {
		t.Errorf("unexpected payload %s", req.Raw)
	}
}

func TestSendMessage_Interactive(t *testing.T) {
	c, graph, _ := readyClient(t)
	ctx := context.Background()

	c.SendMessage(ctx, "628111111111@c.us", domain.Buttons{
		Body:    "pick",
		Buttons: []domain.Button{{Body: "a"}, {Body: "b"}},
	}, nil)
	req := graph.last()
	inter, _ := req.Body["interactive"].(map[string]any)
	action, _ := inter["action"].(map[string]any)
	buttons, _ := action["buttons"].([]any)
	if inter["type"] != "button" || len(buttons) != 2 {
		t.Errorf("unexpected buttons payload %s", req.Raw)
	}

	c.SendMessage(ctx, "628111111111@c.us", domain.Location{Latitude: 1, Longitude: 2, Description: "Office\nMain St 1"}, nil)
	loc, _ := graph.last().Body["location"].(map[string]any)
	if loc["name"] != "Office" || loc["address"] != "Main St 1" {
		t.Errorf("unexpected location payload %v", loc)
	}
}

func TestIsRegisteredUser(t *testing.T) {
	c := New(Config{Logger: testLogger()})
	tests := []struct {
		addr string
		want bool
	}{
		{"6281234567890@c.us", true},
		{"62812@c.us", false},
		{"1234567890123456@c.us", false},
		{"1234-5678@g.us", false},
		{"6281234567890", false},
	}
	for _, tt := range tests {
		got, err := c.IsRegisteredUser(context.Background(), tt.addr)
		if err != nil || got != tt.want {
			t.Errorf("IsRegisteredUser(%q) = %v, %v; want %v", tt.addr, got, err, tt.want)
		}
	}
}

func TestSetStatus(t *testing.T) {
	c, graph, _ := readyClient(t)
	if err := c.SetStatus(context.Background(), "busy"); err != nil {
		t.Fatal(err)
	}
	if req := graph.last(); req.Path != "/PHONE/whatsapp_business_profile" || req.Body["about"] != "busy" {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestUnsupportedOperations(t *testing.T) {
	c, _, _ := readyClient(t)
	ctx := context.Background()
	if _, err := c.AcceptInvite(ctx, "abc"); !errors.Is(err, domain.ErrUnsupported) {
		t.Errorf("AcceptInvite: %v", err)
	}

	c.store.UpsertChat(ctx, ChatRecord{ID: "628111111111@c.us"})
	chat, err := c.GetChatByID(ctx, "628111111111@c.us")
	if err != nil {
		t.Fatal(err)
	}
	for name, err := range map[string]error{
		"subject": chat.SetSubject(ctx, "x"),
		"pin":     chat.Pin(ctx),
		"labels":  chat.ChangeLabels(ctx, nil),
	} {
		if !errors.Is(err, domain.ErrUnsupported) {
			t.Errorf("%s: expected ErrUnsupported, got %v", name, err)
		}
	}
}

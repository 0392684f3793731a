package operator

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/pkg/errors"
)

// === fakes ===

type transportCall struct {
	sessionID string
	text      string
	sender    string
}

type fakeTransport struct {
	systems []transportCall
	agents  []transportCall
	sendErr error
}

func (t *fakeTransport) SendSystem(sessionID, text string) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.systems = append(t.systems, transportCall{sessionID: sessionID, text: text})
	return nil
}

func (t *fakeTransport) SendAgentMessage(sessionID, text, sender string) error {
	if t.sendErr != nil {
		return t.sendErr
	}
	t.agents = append(t.agents, transportCall{sessionID: sessionID, text: text, sender: sender})
	return nil
}

type fakeModeStore struct {
	modes map[string]entity.SessionMode
}

func newFakeModeStore() *fakeModeStore {
	return &fakeModeStore{modes: make(map[string]entity.SessionMode)}
}

func (s *fakeModeStore) Mode(_ context.Context, sessionID string) (entity.SessionMode, error) {
	if m, ok := s.modes[sessionID]; ok {
		return m, nil
	}
	return entity.ModeAI, nil
}

func (s *fakeModeStore) SetMode(_ context.Context, sessionID string, mode entity.SessionMode) error {
	s.modes[sessionID] = mode
	return nil
}

type stubConversation struct {
	sent    []string
	sendErr error
}

func (c *stubConversation) Send(_ context.Context, text string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func newTestBridge() (*Bridge, *fakeTransport, *fakeModeStore) {
	transport := &fakeTransport{}
	state := newFakeModeStore()
	return NewBridge(transport, state, zap.NewNop()), transport, state
}

// === connect ===

func TestBridge_ConnectBindsConversation(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"plain", "connect sess_42"},
		{"uppercase", "CONNECT sess_42"},
		{"embedded", "bitte connect sess_42 übernehmen"},
		{"padded", "  connect sess_42  "},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bridge, transport, _ := newTestBridge()
			conv := &stubConversation{}

			reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, tc.text)

			want := fmt.Sprintf(connectedReply, "sess_42")
			if reply != want {
				t.Fatalf("reply = %q, want %q", reply, want)
			}
			if !bridge.Bound("sess_42") {
				t.Fatal("session not bound after connect")
			}
			if len(transport.systems) != 1 || transport.systems[0].text != operatorJoined {
				t.Fatalf("user join notice = %+v", transport.systems)
			}
			if transport.systems[0].sessionID != "sess_42" {
				t.Fatalf("join notice went to %q", transport.systems[0].sessionID)
			}
		})
	}
}

func TestBridge_UnboundMessageGetsHelp(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"free text", "Guten Tag"},
		{"connect without id", "connect"},
		{"connect with bad id", "connect kunde-7"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bridge, _, _ := newTestBridge()

			reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", &stubConversation{}, tc.text)

			if reply != notConnectedHelp {
				t.Fatalf("reply = %q, want help text", reply)
			}
		})
	}
}

func TestBridge_BlankMessageIsIgnored(t *testing.T) {
	bridge, _, _ := newTestBridge()

	if reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", &stubConversation{}, "   "); reply != "" {
		t.Fatalf("reply = %q, want silence", reply)
	}
}

// === forwarding operator -> customer ===

func TestBridge_BoundMessageReachesCustomer(t *testing.T) {
	bridge, transport, _ := newTestBridge()
	conv := &stubConversation{}
	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_42")

	reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "Wie kann ich helfen?")

	if reply != "" {
		t.Fatalf("forward reply = %q, want silence", reply)
	}
	if len(transport.agents) != 1 {
		t.Fatalf("agent messages = %d, want 1", len(transport.agents))
	}
	got := transport.agents[0]
	if got.sessionID != "sess_42" || got.text != "Wie kann ich helfen?" || got.sender != agentSenderName {
		t.Fatalf("agent message = %+v", got)
	}
}

func TestBridge_OfflineCustomerReportedToOperator(t *testing.T) {
	bridge, transport, _ := newTestBridge()
	conv := &stubConversation{}
	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_42")

	transport.sendErr = errors.NewNotFoundError("no active connection for session")

	reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "Sind Sie noch da?")

	if reply != customerOffline {
		t.Fatalf("reply = %q, want offline notice", reply)
	}
}

// === close ===

func TestBridge_CloseReleasesSession(t *testing.T) {
	for _, text := range []string{"close", "CLOSE", " Close "} {
		t.Run(text, func(t *testing.T) {
			bridge, transport, state := newTestBridge()
			conv := &stubConversation{}
			bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_42")
			state.modes["sess_42"] = entity.ModeHuman

			reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, text)

			want := fmt.Sprintf(closedReply, "sess_42")
			if reply != want {
				t.Fatalf("reply = %q, want %q", reply, want)
			}
			if bridge.Bound("sess_42") {
				t.Fatal("session still bound after close")
			}
			if state.modes["sess_42"] != entity.ModeAI {
				t.Fatalf("mode after close = %v, want AI", state.modes["sess_42"])
			}
			last := transport.systems[len(transport.systems)-1]
			if last.text != operatorLeft {
				t.Fatalf("leave notice = %q", last.text)
			}
		})
	}
}

func TestBridge_CloseWithoutBindingGetsHelp(t *testing.T) {
	bridge, _, _ := newTestBridge()

	if reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", &stubConversation{}, "close"); reply != notConnectedHelp {
		t.Fatalf("reply = %q, want help text", reply)
	}
}

// === rebinding ===

func TestBridge_SecondOperatorTakesOver(t *testing.T) {
	bridge, _, _ := newTestBridge()
	first := &stubConversation{}
	second := &stubConversation{}

	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", first, "connect sess_42")
	bridge.HandleOperatorMessage(context.Background(), "teams:conv-2", second, "connect sess_42")

	if err := bridge.Forward(context.Background(), "sess_42", "[USER] Hallo"); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if len(first.sent) != 0 {
		t.Fatalf("evicted operator still received %v", first.sent)
	}
	if len(second.sent) != 1 || second.sent[0] != "[USER] Hallo" {
		t.Fatalf("new operator received %v", second.sent)
	}

	// The first console is unbound now and gets the help text on free text.
	if reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", first, "Hallo?"); reply != notConnectedHelp {
		t.Fatalf("evicted operator reply = %q, want help text", reply)
	}
}

func TestBridge_OperatorSwitchingSessionReleasesOldOne(t *testing.T) {
	bridge, _, _ := newTestBridge()
	conv := &stubConversation{}

	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_1")
	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_2")

	if bridge.Bound("sess_1") {
		t.Fatal("old session still bound after switch")
	}
	if !bridge.Bound("sess_2") {
		t.Fatal("new session not bound")
	}
}

// === gateway-side Forward ===

func TestBridge_ForwardUnboundSession(t *testing.T) {
	bridge, _, _ := newTestBridge()

	err := bridge.Forward(context.Background(), "sess_42", "[USER] Hallo")
	if !errors.IsOperatorUnbound(err) {
		t.Fatalf("Forward() error = %v, want operator unbound", err)
	}
}

func TestBridge_ForwardDeliveryFailure(t *testing.T) {
	bridge, _, _ := newTestBridge()
	conv := &stubConversation{sendErr: fmt.Errorf("network down")}
	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_42")

	err := bridge.Forward(context.Background(), "sess_42", "[BOT] Antwort")
	if err == nil {
		t.Fatal("Forward() expected delivery error")
	}
	if errors.IsOperatorUnbound(err) {
		t.Fatalf("Forward() error = %v, want delivery failure", err)
	}
}

func TestBridge_UnbindDropsBothDirections(t *testing.T) {
	bridge, _, _ := newTestBridge()
	conv := &stubConversation{}
	bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "connect sess_42")

	bridge.Unbind("sess_42")

	if bridge.Bound("sess_42") {
		t.Fatal("session still bound after Unbind")
	}
	if reply := bridge.HandleOperatorMessage(context.Background(), "teams:conv-1", conv, "Hallo"); reply != notConnectedHelp {
		t.Fatalf("conversation still bound after Unbind, reply = %q", reply)
	}
}

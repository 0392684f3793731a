// Package chatcli is a terminal client for the gateway's WebSocket endpoint.
// It exists for manual testing: type a customer message, watch the restored
// answer stream in, see operator takeovers as they happen.
package chatcli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/domain/entity"
	"github.com/PhillHH/chat-agent/internal/interfaces/websocket"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorCyan   = "\033[36m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// Config for the chat client.
type Config struct {
	ServerURL string // base URL, e.g. ws://localhost:1985
	SessionID string // empty = generate one
}

// Client drives one interactive chat session.
type Client struct {
	serverURL string
	sessionID string
	logger    *zap.Logger

	conn     *gorillaws.Conn
	turnDone chan struct{}
	closed   chan struct{}
}

// New creates the client. A missing session id is minted on the spot.
func New(cfg Config, logger *zap.Logger) *Client {
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = newSessionID()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		serverURL: cfg.ServerURL,
		sessionID: sessionID,
		logger:    logger,
	}
}

func newSessionID() string {
	return "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Run connects and enters the prompt loop until EOF or /exit.
func (c *Client) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	defer c.disconnect()

	c.printBanner()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Printf("%ssie> %s", colorGreen, colorReset)

		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if handled, shouldExit := c.handleCommand(ctx, input); handled {
			if shouldExit {
				return nil
			}
			continue
		}

		if err := c.sendMessage(input); err != nil {
			fmt.Printf("%sSenden fehlgeschlagen: %v%s\n", colorYellow, err, colorReset)
			return err
		}

		// Wait for the turn to finish so the prompt does not interleave
		// with streamed chunks. Operator messages outside a turn print
		// above the prompt whenever they arrive.
		select {
		case <-c.turnDone:
		case <-c.closed:
			fmt.Printf("%sVerbindung geschlossen.%s\n", colorYellow, colorReset)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}

	fmt.Println("\nAuf Wiedersehen!")
	return nil
}

// connect dials /chat/ws/<session_id> and starts the frame reader.
func (c *Client) connect(ctx context.Context) error {
	target, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	switch target.Scheme {
	case "http":
		target.Scheme = "ws"
	case "https":
		target.Scheme = "wss"
	case "ws", "wss":
	default:
		return fmt.Errorf("unsupported scheme %q", target.Scheme)
	}
	target.Path = "/chat/ws/" + c.sessionID

	conn, _, err := gorillaws.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target.String(), err)
	}

	c.conn = conn
	c.turnDone = make(chan struct{}, 1)
	c.closed = make(chan struct{})
	go c.readLoop()
	return nil
}

func (c *Client) disconnect() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) sendMessage(text string) error {
	frame := websocket.Frame{Type: websocket.FrameMessage, Text: text}
	return c.conn.WriteJSON(frame)
}

// readLoop renders inbound frames until the socket dies.
func (c *Client) readLoop() {
	defer close(c.closed)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame websocket.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Debug("Unreadable frame", zap.Error(err))
			continue
		}
		c.render(&frame)
	}
}

func (c *Client) render(frame *websocket.Frame) {
	switch frame.Type {
	case websocket.FrameChunk:
		fmt.Print(frame.Text)
	case websocket.FrameDone:
		fmt.Printf("\n%s(%s)%s\n", colorGray, frame.Status, colorReset)
		c.signalTurnDone()
	case websocket.FrameSystem:
		fmt.Printf("\n%s[System]%s %s\n", colorYellow, colorReset, frame.Text)
	case websocket.FrameAgentMessage:
		sender := frame.Sender
		if sender == "" {
			sender = "Agent"
		}
		fmt.Printf("\n%s%s%s%s: %s\n", colorBold, colorCyan, sender, colorReset, frame.Text)
	case websocket.FrameError:
		fmt.Printf("\n%sFehler: %s%s\n", colorYellow, frame.Text, colorReset)
		c.signalTurnDone()
	default:
		c.logger.Debug("Unknown frame type", zap.String("type", frame.Type))
	}
}

func (c *Client) signalTurnDone() {
	select {
	case c.turnDone <- struct{}{}:
	default:
	}
}

// handleCommand processes built-in commands.
// Returns (handled, shouldExit).
func (c *Client) handleCommand(ctx context.Context, input string) (bool, bool) {
	switch strings.ToLower(input) {
	case "/exit", "/quit", "/q":
		fmt.Println("Auf Wiedersehen!")
		return true, true

	case "/new":
		c.disconnect()
		<-c.closed
		c.sessionID = newSessionID()
		if err := c.connect(ctx); err != nil {
			fmt.Printf("%sNeue Verbindung fehlgeschlagen: %v%s\n", colorYellow, err, colorReset)
			return true, true
		}
		fmt.Printf("%s✓ Neue Session: %s%s\n", colorCyan, c.sessionID, colorReset)
		return true, false

	case "/status":
		fmt.Printf("%s── Status ──%s\n", colorCyan, colorReset)
		fmt.Printf("  Session: %s\n", c.sessionID)
		fmt.Printf("  Server:  %s\n", c.serverURL)
		return true, false

	case "/help":
		c.printHelp()
		return true, false

	default:
		return false, false
	}
}

func (c *Client) printBanner() {
	fmt.Printf("\n%s%sSecure AI Gateway Chat%s\n", colorBold, colorCyan, colorReset)
	fmt.Printf("%sSession %s | /help für Befehle%s\n", colorGray, c.sessionID, colorReset)
	if !entity.IsOperatorSessionID(c.sessionID) {
		// connect commands only parse sess_ tokens, so a human could
		// never take this session over.
		fmt.Printf("%sHinweis: Session-ID entspricht nicht sess_<id>; Mitarbeiter können diesen Chat nicht übernehmen.%s\n", colorYellow, colorReset)
	}
	fmt.Println()
}

func (c *Client) printHelp() {
	fmt.Printf("\n%s── Befehle ──%s\n", colorCyan, colorReset)
	fmt.Println("  /new     Neue Session starten")
	fmt.Println("  /status  Sitzungsinfo anzeigen")
	fmt.Println("  /help    Diese Hilfe")
	fmt.Println("  /exit    Beenden")
	fmt.Println()
}

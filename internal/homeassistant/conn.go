package homeassistant

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message types of the websocket API.
const (
	msgAuthRequired = "auth_required"
	msgAuth         = "auth"
	msgAuthOK       = "auth_ok"
	msgAuthInvalid  = "auth_invalid"
	msgResult       = "result"
)

// Commands used by the mapper.
const (
	CmdDeviceRegistryList = "config/device_registry/list"
	CmdEntityRegistryList = "config/entity_registry/list"
	CmdCallService        = "call_service"
)

// websocketPath is appended to http(s) base URLs.
const websocketPath = "/api/websocket"

// DefaultTimeout bounds each command when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// maxMessageSize caps a single inbound message. Registry listings of large
// installations run to several megabytes.
const maxMessageSize = 64 << 20

// Config describes how to reach Home Assistant.
type Config struct {
	// URL is the instance base URL (https://ha.local:8123) or a full
	// ws(s)://.../api/websocket endpoint.
	URL string

	// Token is a long-lived access token.
	Token string

	// InsecureSkipVerify accepts self-signed certificates.
	InsecureSkipVerify bool

	// Timeout bounds the handshake and each command.
	Timeout time.Duration
}

// envelope is the common shape of inbound messages.
type envelope struct {
	ID        int             `json:"id"`
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	Error     *resultError    `json:"error"`
	Message   string          `json:"message"`
	HAVersion string          `json:"ha_version"`
}

type resultError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Conn is an authenticated websocket connection. Commands are serialised;
// a Conn may be shared between goroutines.
type Conn struct {
	ws      *websocket.Conn
	timeout time.Duration
	version string

	mu     sync.Mutex
	nextID int
}

// WebsocketURL converts a Home Assistant base URL into its websocket endpoint.
func WebsocketURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/")
	if !strings.HasSuffix(u.Path, websocketPath) {
		u.Path += websocketPath
	}
	return u.String(), nil
}

// Dial connects and authenticates.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	endpoint, err := WebsocketURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Self-signed Home Assistant certificates are common
			MinVersion:         tls.VersionTLS12,
		},
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connecting to %s: %s: %w", endpoint, resp.Status, err)
		}
		return nil, fmt.Errorf("connecting to %s: %w", endpoint, err)
	}
	ws.SetReadLimit(maxMessageSize)

	c := &Conn{ws: ws, timeout: timeout, nextID: 1}
	if err := c.authenticate(ctx, cfg.Token); err != nil {
		ws.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, err
	}
	return c, nil
}

// Version returns the Home Assistant version announced during the handshake.
func (c *Conn) Version() string {
	return c.version
}

// Close sends a close frame and closes the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, //nolint:errcheck // Peer may already be gone
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

func (c *Conn) authenticate(ctx context.Context, token string) error {
	c.setDeadline(ctx)

	var hello envelope
	if err := c.ws.ReadJSON(&hello); err != nil {
		return fmt.Errorf("reading auth request: %w", err)
	}
	if hello.Type != msgAuthRequired {
		return fmt.Errorf("%w: %q before authentication", ErrProtocol, hello.Type)
	}
	c.version = hello.HAVersion

	if err := c.ws.WriteJSON(map[string]string{
		"type":         msgAuth,
		"access_token": token,
	}); err != nil {
		return fmt.Errorf("sending auth: %w", err)
	}

	var reply envelope
	if err := c.ws.ReadJSON(&reply); err != nil {
		return fmt.Errorf("reading auth reply: %w", err)
	}
	switch reply.Type {
	case msgAuthOK:
		if reply.HAVersion != "" {
			c.version = reply.HAVersion
		}
		return nil
	case msgAuthInvalid:
		return fmt.Errorf("%w: %s", ErrAuthFailed, reply.Message)
	default:
		return fmt.Errorf("%w: %q during authentication", ErrProtocol, reply.Type)
	}
}

// Command sends a command and decodes its result into out (which may be nil).
// Messages with other ids, such as events, are skipped.
func (c *Conn) Command(ctx context.Context, cmdType string, fields map[string]any, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	msg := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = cmdType

	c.setDeadline(ctx)
	stop := context.AfterFunc(ctx, func() {
		_ = c.ws.SetReadDeadline(time.Now()) //nolint:errcheck // Unblocks the read below
	})
	defer stop()

	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("sending %s: %w", cmdType, err)
	}

	for {
		var env envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("waiting for %s: %w", cmdType, ctxErr)
			}
			return fmt.Errorf("waiting for %s: %w", cmdType, err)
		}
		if env.ID != id || env.Type != msgResult {
			continue
		}

		if !env.Success {
			ce := &CommandError{Command: cmdType}
			if env.Error != nil {
				ce.Code = env.Error.Code
				ce.Message = env.Error.Message
			}
			return ce
		}

		if out == nil || len(env.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", cmdType, err)
		}
		return nil
	}
}

// setDeadline applies the earlier of the context deadline and the command
// timeout to both directions.
func (c *Conn) setDeadline(ctx context.Context) {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetReadDeadline(deadline)  //nolint:errcheck // Only fails on a closed connection
	_ = c.ws.SetWriteDeadline(deadline) //nolint:errcheck // Only fails on a closed connection
}

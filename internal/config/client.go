package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Default client configuration values
const (
	DefaultServerURL = "ws://localhost:3000/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Client holds the terminal client configuration
type Client struct {
	// ServerURL is the websocket endpoint of the matchmaking server
	ServerURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN relay candidates
	ForceRelay bool

	// P2P moves chat onto a WebRTC data channel once negotiated
	P2P bool

	// AutoRequeue rejoins matchmaking after the partner leaves
	AutoRequeue bool
}

// ClientOptions carries CLI flag overrides. Empty strings and nil pointers
// mean "not set".
type ClientOptions struct {
	ServerURL   string
	STUNServer  string
	TURNServer  string
	TURNUser    string
	TURNPass    string
	ForceRelay  bool
	P2P         *bool
	AutoRequeue *bool
}

// LoadClient reads configuration with the following priority:
// 1. CLI flags (passed via ClientOptions) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func LoadClient(opts ClientOptions) (*Client, error) {
	serverURL := firstNonEmpty(opts.ServerURL, os.Getenv("STRANGERS_SERVER"), DefaultServerURL)
	wsURL, err := NormalizeServerURL(serverURL)
	if err != nil {
		return nil, err
	}

	cfg := &Client{
		ServerURL:   wsURL,
		STUNServer:  firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:  firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:    firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		ForceRelay:  opts.ForceRelay || envBool("FORCE_RELAY", false),
		P2P:         pickBool(opts.P2P, "STRANGERS_P2P", true),
		AutoRequeue: pickBool(opts.AutoRequeue, "STRANGERS_AUTO_REQUEUE", true),
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return cfg, nil
}

// NormalizeServerURL accepts a bare host, an http(s) URL or a ws(s) URL and
// returns the websocket endpoint.
func NormalizeServerURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server URL %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// HTTPURL returns the server's plain HTTP base for path, e.g. "/stats".
func (c *Client) HTTPURL(path string) string {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "wss" {
		u.Scheme = "https"
	} else {
		u.Scheme = "http"
	}
	u.Path = path
	u.RawQuery = ""
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Client) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Client) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Client) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func envBool(key string, fallback bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func pickBool(flag *bool, key string, fallback bool) bool {
	if flag != nil {
		return *flag
	}
	return envBool(key, fallback)
}

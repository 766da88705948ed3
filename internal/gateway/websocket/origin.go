package websocket

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	gorillaws "github.com/gorilla/websocket"
)

var sessionUpgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkWebSocketOrigin,
}

// terminalUpgrader uses larger buffers for bursty PTY output.
var terminalUpgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     checkWebSocketOrigin,
}

// checkWebSocketOrigin rejects cross-site WebSocket requests. Requests
// without an Origin (non-browser clients) and localhost origins are allowed;
// otherwise the origin host must match the request host, ignoring ports.
func checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}
	originHost := originURL.Hostname()
	if originHost == "localhost" || originHost == "127.0.0.1" {
		return true
	}

	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	return strings.EqualFold(originHost, host)
}

package internal

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// The RFC 6455 GUID; Sec-WebSocket-Accept = base64(sha1(key ++ guid)).
const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

func newSecKey() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw[:]), nil
}

func acceptFor(key string) string {
	h := sha1.New()
	h.Write([]byte(key + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// buildUpgradeRequest renders the HTTP/1.1 Upgrade request for u. Extra
// headers ride along verbatim; the mandatory upgrade headers win on
// conflict.
func buildUpgradeRequest(u *url.URL, extra http.Header, key string) []byte {
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", u.Host)

	for name, vals := range extra {
		switch http.CanonicalHeaderKey(name) {
		case "Host", "Upgrade", "Connection", "Sec-Websocket-Key", "Sec-Websocket-Version":
			continue
		}
		for _, v := range vals {
			fmt.Fprintf(&b, "%s: %s\r\n", name, v)
		}
	}

	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// readUpgradeResponse reads the server's answer up to the terminating blank
// line and validates it against key. Bytes the reader buffered past the
// response belong to the frame stream; the caller drains them afterwards.
func readUpgradeResponse(br *bufio.Reader, key string) (*http.Response, error) {
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		return nil, &ConnError{Original: err}
	}
	// 101 responses carry no body; nothing to close.

	if resp.StatusCode != http.StatusSwitchingProtocols {
		return resp, &RequestError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Header:     resp.Header,
		}
	}

	challenge := acceptFor(key)
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") ||
		!headerContainsToken(resp.Header, "Connection", "Upgrade") ||
		resp.Header.Get("Sec-WebSocket-Accept") != challenge {
		return resp, &HandshakeError{Response: resp, Challenge: challenge}
	}
	return resp, nil
}

func headerContainsToken(h http.Header, name, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h[http.CanonicalHeaderKey(name)] {
		for _, part := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(part)) == token {
				return true
			}
		}
	}
	return false
}

package websocket

import (
	"bufio"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Handshake errors.
var (
	ErrMissingUpgrade     = errors.New("missing or invalid Upgrade header")
	ErrMissingSecKey      = errors.New("missing Sec-WebSocket-Key header")
	ErrHandshakeRejected  = errors.New("upgrade rejected by server")
	ErrSecAcceptMismatch  = errors.New("Sec-WebSocket-Accept mismatch")
	ErrMalformedHandshake = errors.New("malformed upgrade request")
)

// WebSocket GUID as defined in RFC 6455.
const webSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// HandshakeError represents a handshake error.
type HandshakeError struct {
	Err    error
	Status int
}

func (e *HandshakeError) Error() string {
	return e.Err.Error()
}

func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// AcceptToken derives the Sec-WebSocket-Accept value for a client key:
// base64(SHA-1(key + GUID)).
func AcceptToken(secKey string) string {
	hash := sha1.Sum([]byte(secKey + webSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// ReadHandshakeRequest reads the upgrade request from br. Bytes that follow
// the request stay buffered in br for the frame reader.
func ReadHandshakeRequest(br *bufio.Reader) (*http.Request, error) {
	req, err := http.ReadRequest(br)
	if err != nil {
		return nil, &HandshakeError{Err: fmt.Errorf("%w: %v", ErrMalformedHandshake, err), Status: http.StatusBadRequest}
	}
	return req, nil
}

// ValidateUpgrade checks that r asks to switch to this protocol and returns
// the client key.
func ValidateUpgrade(r *http.Request) (string, error) {
	if !headerHasToken(r.Header, "Upgrade", "websocket") {
		return "", &HandshakeError{Err: ErrMissingUpgrade, Status: http.StatusBadRequest}
	}

	key := strings.TrimSpace(r.Header.Get("Sec-WebSocket-Key"))
	if key == "" {
		return "", &HandshakeError{Err: ErrMissingSecKey, Status: http.StatusBadRequest}
	}

	return key, nil
}

func headerHasToken(h http.Header, name, token string) bool {
	for _, v := range h.Values(name) {
		for _, t := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(t), token) {
				return true
			}
		}
	}
	return false
}

// BuildHandshakeResponse builds the 101 response block for an accept token.
// Every line is CRLF-terminated and the block ends with an empty line.
func BuildHandshakeResponse(acceptToken string) string {
	var sb strings.Builder

	sb.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	sb.WriteString("Upgrade: websocket\r\n")
	sb.WriteString("Connection: Upgrade\r\n")
	sb.WriteString("Sec-WebSocket-Accept: " + acceptToken + "\r\n")
	sb.WriteString("\r\n")

	return sb.String()
}

// WriteHandshakeResponse accepts the upgrade for the given client key.
func WriteHandshakeResponse(w io.Writer, secKey string) error {
	_, err := io.WriteString(w, BuildHandshakeResponse(AcceptToken(secKey)))
	return err
}

// WriteHandshakeRejection writes a bodiless error response. The caller
// closes the connection afterwards.
func WriteHandshakeRejection(w io.Writer, status int) error {
	_, err := fmt.Fprintf(w, "HTTP/1.1 %d %s\r\nConnection: close\r\nContent-Length: 0\r\n\r\n",
		status, http.StatusText(status))
	return err
}

// GenerateSecKey generates a valid Sec-WebSocket-Key.
func GenerateSecKey() (string, error) {
	data := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, data); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(data), nil
}

// VerifyAcceptKey verifies that the accept key is correct for the given request key.
func VerifyAcceptKey(requestKey, expectedAccept string) bool {
	return AcceptToken(requestKey) == expectedAccept
}

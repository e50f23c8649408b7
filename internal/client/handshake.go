// internal/client/handshake.go
package client

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"cryptochat/internal/crypto"
	"cryptochat/internal/proto"
)

// State is the handshake progress. The machine only moves forward;
// any refusal or fault lands in StateFailed.
type State int

const (
	StateDisconnected State = iota
	StateConnected
	StateAuthenticated
	StateRoomNegotiated
	StateActive
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnected:
		return "Connected"
	case StateAuthenticated:
		return "Authenticated"
	case StateRoomNegotiated:
		return "RoomNegotiated"
	case StateActive:
		return "Active"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ConnectError means the transport was unreachable.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// InvitationError means the invitation token was malformed or its time
// window elapsed.
type InvitationError struct {
	Err error
}

func (e *InvitationError) Error() string {
	return fmt.Sprintf("invitation: %v", e.Err)
}

func (e *InvitationError) Unwrap() error {
	return e.Err
}

// ErrServerClosed is returned when the server ends the connection during
// the handshake or the session loop.
var ErrServerClosed = errors.New("server closed the connection")

// Retryable reports whether the caller should discard the chosen server
// and restart address selection: bad auth, a dead or rejected invitation,
// or a server-initiated disconnect. Malformed banners and transport
// integrity failures are hard errors.
func Retryable(err error) bool {
	var ae *proto.AuthError
	if errors.As(err, &ae) {
		return true
	}
	var ie *InvitationError
	if errors.As(err, &ie) {
		return true
	}
	var ce *ConnectError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrServerClosed)
}

// Result is the outcome of a completed handshake, everything the session
// loop needs: the open connection and both key contexts.
type Result struct {
	Conn         net.Conn
	Key          crypto.TransportKey
	RoomKey      crypto.RoomKey
	RoomID       string
	RoomPassword string
	Nickname     string
}

// Handshake is the client-side state machine: authenticate, list rooms,
// join or create one.
type Handshake struct {
	conn  net.Conn
	lines *bufio.Scanner
	key   crypto.TransportKey
	state State
	err   error
}

// Dial connects to the server, entering StateConnected.
func Dial(addr string) (*Handshake, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}
	lines := bufio.NewScanner(conn)
	lines.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &Handshake{conn: conn, lines: lines, state: StateConnected}, nil
}

func (h *Handshake) State() State {
	return h.state
}

// Err returns the failure that moved the machine into StateFailed, if any.
func (h *Handshake) Err() error {
	return h.err
}

func (h *Handshake) Close() error {
	return h.conn.Close()
}

func (h *Handshake) fail(err error) error {
	h.state = StateFailed
	h.err = err
	return err
}

// Authenticate proves knowledge of the server password and derives the
// transport key context for the rest of the session.
func (h *Handshake) Authenticate(password string) error {
	token, err := crypto.GenerateAuthToken(password, time.Now())
	if err != nil {
		return h.fail(err)
	}
	return h.authenticate(crypto.HashPassword(password), token)
}

// AuthenticateHash is the invitation path, where only the password hash is
// known.
func (h *Handshake) AuthenticateHash(hash crypto.TransportKey) error {
	token, err := crypto.GenerateAuthTokenFromHash(hash, time.Now())
	if err != nil {
		return h.fail(err)
	}
	return h.authenticate(hash, token)
}

func (h *Handshake) authenticate(key crypto.TransportKey, token string) error {
	if h.state != StateConnected {
		return h.fail(fmt.Errorf("authenticate in state %s", h.state))
	}
	h.key = key
	if err := h.writeSealed(proto.FormatAuth(token)); err != nil {
		return h.fail(err)
	}
	if err := h.expectOK(); err != nil {
		return h.fail(err)
	}
	h.state = StateAuthenticated
	return nil
}

// Rooms reads the server's room-list banner. It must be the first message
// after authentication; anything else is a protocol error.
func (h *Handshake) Rooms() ([]string, error) {
	if h.state != StateAuthenticated {
		return nil, h.fail(fmt.Errorf("rooms in state %s", h.state))
	}
	line, err := h.readLine()
	if err != nil {
		return nil, h.fail(err)
	}
	if plain, err := h.key.Open(line); err == nil {
		line = plain
	}
	ids, ok := proto.ParseRooms(line)
	if !ok {
		return nil, h.fail(&proto.ProtocolError{Line: line})
	}
	return ids, nil
}

// Negotiate joins or creates a room. On success the machine goes through
// RoomNegotiated to Active and the caller owns the connection via the
// returned Result; the relay loop starts immediately.
func (h *Handshake) Negotiate(action, roomID, roomPassword, nickname string) (*Result, error) {
	if h.state != StateAuthenticated {
		return nil, h.fail(fmt.Errorf("negotiate in state %s", h.state))
	}
	roomKey := crypto.DeriveRoomKey(roomID, roomPassword)
	cmd := proto.Command{
		Action:     action,
		RoomID:     roomID,
		Credential: roomKey.CredentialTag(),
		Nickname:   nickname,
	}
	if err := h.writeSealed(proto.FormatCommand(cmd)); err != nil {
		return nil, h.fail(err)
	}
	if err := h.expectOK(); err != nil {
		return nil, h.fail(err)
	}
	// RoomNegotiated is transient: the relay loop begins immediately.
	h.state = StateActive
	return &Result{
		Conn:         h.conn,
		Key:          h.key,
		RoomKey:      roomKey,
		RoomID:       roomID,
		RoomPassword: roomPassword,
		Nickname:     nickname,
	}, nil
}

// Login runs the full interactive-path handshake in one call: the caller
// has already chosen the room (the interactive prompting itself lives
// outside this package).
func Login(addr, password, action, roomID, roomPassword, nickname string) (*Result, error) {
	h, err := Dial(addr)
	if err != nil {
		return nil, err
	}
	if err := h.Authenticate(password); err != nil {
		h.Close()
		return nil, err
	}
	if _, err := h.Rooms(); err != nil {
		h.Close()
		return nil, err
	}
	res, err := h.Negotiate(action, roomID, roomPassword, nickname)
	if err != nil {
		h.Close()
		return nil, err
	}
	return res, nil
}

// JoinFromInvitation decodes a bearer token and replays the handshake from
// its embedded server address, password hash, room id and room password,
// skipping interactive room selection entirely.
func JoinFromInvitation(token, nickname string) (*Result, error) {
	inv, err := proto.DecodeInvitation(token, time.Now())
	if err != nil {
		return nil, &InvitationError{Err: err}
	}
	h, err := Dial(inv.Server)
	if err != nil {
		return nil, err
	}
	if err := h.AuthenticateHash(crypto.TransportKey(inv.ServerHash)); err != nil {
		h.Close()
		return nil, err
	}
	if _, err := h.Rooms(); err != nil {
		h.Close()
		return nil, err
	}
	res, err := h.Negotiate(proto.ActionJoin, inv.RoomID, inv.RoomPassword, nickname)
	if err != nil {
		h.Close()
		return nil, err
	}
	return res, nil
}

func (h *Handshake) writeSealed(plain string) error {
	line, err := h.key.Seal(plain)
	if err != nil {
		return err
	}
	_, err = h.conn.Write([]byte(line + "\n"))
	return err
}

// expectOK reads one response line. Sealed lines must open to OK; a line
// that does not open is a plaintext refusal and is parsed for its reason.
func (h *Handshake) expectOK() error {
	line, err := h.readLine()
	if err != nil {
		return err
	}
	plain, err := h.key.Open(line)
	if err != nil {
		return proto.ParseResponse(line)
	}
	return proto.ParseResponse(plain)
}

func (h *Handshake) readLine() (string, error) {
	if !h.lines.Scan() {
		if err := h.lines.Err(); err != nil {
			return "", err
		}
		return "", ErrServerClosed
	}
	return strings.TrimRight(h.lines.Text(), "\r"), nil
}

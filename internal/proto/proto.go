// Package proto defines the newline-delimited wire grammar shared by the
// server and the client: handshake commands, control lines and the
// invitation token format. Lines marked transport-sealed in the protocol
// table are sealed by the caller; this package only formats and parses the
// plaintext form.
package proto

import (
	"fmt"
	"strings"
)

const (
	// Keep-alive lines travel outside both encryption layers so the peer
	// can special-case them without decrypting.
	PingLine    = "$$ping$$"
	PingAckLine = "/ping_ack"

	// ShutdownSentinel on the outbound channel asks the client session
	// loop to flush and close. It is never written to the wire.
	ShutdownSentinel = "//~``~//"

	MemberListPrefix = "/member_list "
	ImageDataPrefix  = "/IMGDATA"
	InvitePrefix     = "/INVITE:"

	OKLine      = "OK"
	authPrefix  = "AUTH "
	roomsMarker = "ROOMS"
	errPrefix   = "ERR "
)

const (
	ActionCreate = "CREATE"
	ActionJoin   = "JOIN"
)

// Command is a room negotiation request: CREATE|JOIN <room> <cred> <nick>.
// Action is carried verbatim; whether it names a known action is decided by
// the registry so that UnknownAction and InvalidCmd stay distinct reasons.
type Command struct {
	Action     string
	RoomID     string
	Credential string
	Nickname   string
}

func FormatCommand(c Command) string {
	return fmt.Sprintf("%s %s %s %s", c.Action, c.RoomID, c.Credential, c.Nickname)
}

// ParseCommand splits a negotiation line. Missing fields yield InvalidCmd.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	var c Command
	if len(fields) > 0 {
		c.Action = fields[0]
	}
	if len(fields) > 1 {
		c.RoomID = fields[1]
	}
	if len(fields) > 2 {
		c.Credential = fields[2]
	}
	if len(fields) > 3 {
		c.Nickname = fields[3]
	}
	if c.RoomID == "" || c.Credential == "" || c.Nickname == "" {
		return Command{}, &RoomError{Reason: ReasonInvalidCmd}
	}
	return c, nil
}

func FormatAuth(token string) string {
	return authPrefix + token
}

// ParseAuth extracts the token from an AUTH line. ok is false when the line
// does not start with the AUTH marker, which the server answers NeedAUTH.
func ParseAuth(line string) (token string, ok bool) {
	return strings.CutPrefix(line, authPrefix)
}

func FormatRooms(ids []string) string {
	if len(ids) == 0 {
		return roomsMarker
	}
	return roomsMarker + " " + strings.Join(ids, " ")
}

// ParseRooms parses the server's room-list banner. Anything not beginning
// with the ROOMS marker is a protocol error on the client side.
func ParseRooms(line string) ([]string, bool) {
	if !strings.HasPrefix(line, roomsMarker) {
		return nil, false
	}
	return strings.Fields(line)[1:], true
}

func FormatMemberList(names []string) string {
	return MemberListPrefix + strings.Join(names, ",")
}

func ParseMemberList(line string) ([]string, bool) {
	rest, ok := strings.CutPrefix(line, MemberListPrefix)
	if !ok {
		return nil, false
	}
	var names []string
	for _, n := range strings.Split(rest, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names, true
}

// FormatChat prefixes a relayed payload with its sender. The payload may
// still be room-sealed at this point; the server never sees inside it.
func FormatChat(nickname, payload string) string {
	return fmt.Sprintf("[%s] %s", nickname, payload)
}

// SplitChat recovers the sender and body of a relayed line. Lines without a
// bracketed sender keep their full text as the body with an unknown sender,
// matching how announcement lines are displayed.
func SplitChat(line string) (nickname, body string) {
	start := strings.IndexByte(line, '[')
	if start >= 0 {
		if end := strings.IndexByte(line[start+1:], ']'); end >= 0 {
			nickname = line[start+1 : start+1+end]
			body = strings.TrimLeft(line[start+2+end:], " ")
			return nickname, body
		}
	}
	return "???", line
}

func FormatJoined(nickname string) string {
	return fmt.Sprintf("⚡ [%s] joined.", nickname)
}

func FormatLeft(nickname string) string {
	return fmt.Sprintf("⚡ [%s] left.", nickname)
}

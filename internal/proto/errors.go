// internal/proto/errors.go
package proto

import (
	"fmt"
	"strings"
)

// Reason is the wire form of a refusal, carried verbatim in ERR lines.
type Reason string

const (
	ReasonNeedAuth      Reason = "NeedAUTH"
	ReasonBadAuth       Reason = "BadAuth"
	ReasonRoomExists    Reason = "RoomExists"
	ReasonBadCredential Reason = "BadCredential"
	ReasonNoSuchRoom    Reason = "NoSuchRoom"
	ReasonUnknownAction Reason = "UnknownAction"
	ReasonInvalidCmd    Reason = "InvalidCmd"
)

// AuthError is a refusal during the AUTH exchange.
type AuthError struct {
	Reason Reason
}

func (e *AuthError) Error() string {
	return "auth refused: " + string(e.Reason)
}

// RoomError is a refusal during room negotiation.
type RoomError struct {
	Reason Reason
}

func (e *RoomError) Error() string {
	return "room refused: " + string(e.Reason)
}

// ProtocolError reports an unexpected banner or line format.
type ProtocolError struct {
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("unexpected line: %q", e.Line)
}

func FormatError(r Reason) string {
	return errPrefix + string(r)
}

// ParseResponse classifies a handshake response line: nil for OK, a typed
// error for a recognized ERR reason, ProtocolError otherwise.
func ParseResponse(line string) error {
	line = strings.TrimSpace(line)
	if line == OKLine {
		return nil
	}
	reason, ok := strings.CutPrefix(line, errPrefix)
	if !ok {
		return &ProtocolError{Line: line}
	}
	switch r := Reason(strings.TrimSpace(reason)); r {
	case ReasonNeedAuth, ReasonBadAuth:
		return &AuthError{Reason: r}
	case ReasonRoomExists, ReasonBadCredential, ReasonNoSuchRoom,
		ReasonUnknownAction, ReasonInvalidCmd:
		return &RoomError{Reason: r}
	default:
		return &ProtocolError{Line: line}
	}
}

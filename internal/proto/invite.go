// internal/proto/invite.go
package proto

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"cryptochat/internal/crypto"
)

// Invitation is a portable bearer token: everything needed to join a room
// without interactive prompts. The receiver gets the server password hash,
// never the password itself. JSON field names are part of the wire format.
type Invitation struct {
	Server       string   `json:"server"`
	ServerHash   [32]byte `json:"enc_pwd"`
	RoomID       string   `json:"room_id"`
	RoomPassword string   `json:"room_key"`
}

// EncodeInvitation serializes and time-box-encrypts an invitation:
// "/INVITE:" + urlsafe-base64(nonce || ChaCha20(json)).
func EncodeInvitation(inv Invitation, now time.Time) (string, error) {
	if inv.Server == "" || inv.RoomID == "" {
		return "", fmt.Errorf("invitation missing server or room")
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return "", err
	}
	sealed, err := crypto.SealInvite(payload, now)
	if err != nil {
		return "", err
	}
	return InvitePrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecodeInvitation reverses EncodeInvitation within the same time window.
// The body may also be legacy hex instead of base64. A token from an
// elapsed window decrypts to garbage and is rejected when the JSON payload
// fails to parse.
func DecodeInvitation(token string, now time.Time) (Invitation, error) {
	raw, ok := strings.CutPrefix(token, InvitePrefix)
	if !ok {
		return Invitation{}, fmt.Errorf("not an invitation token")
	}
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		if !isHex(raw) {
			return Invitation{}, fmt.Errorf("invalid invitation encoding")
		}
		if sealed, err = hex.DecodeString(raw); err != nil {
			return Invitation{}, fmt.Errorf("invalid invitation encoding")
		}
	}
	payload, ok := crypto.OpenInvite(sealed, now)
	if !ok {
		return Invitation{}, fmt.Errorf("invitation too short")
	}
	var inv Invitation
	if err := json.Unmarshal(payload, &inv); err != nil {
		return Invitation{}, fmt.Errorf("invalid or expired invitation")
	}
	if inv.Server == "" || inv.RoomID == "" {
		return Invitation{}, fmt.Errorf("invalid or expired invitation")
	}
	return inv, nil
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

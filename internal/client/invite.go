// internal/client/invite.go
package client

import (
	"time"

	"cryptochat/internal/crypto"
	"cryptochat/internal/proto"
)

// NewInvitation builds a bearer token for the given server and room. The
// receiver learns the server password hash, not the password.
func NewInvitation(server, serverPassword, roomID, roomPassword string) (string, error) {
	return proto.EncodeInvitation(proto.Invitation{
		Server:       server,
		ServerHash:   crypto.HashPassword(serverPassword),
		RoomID:       roomID,
		RoomPassword: roomPassword,
	}, time.Now())
}

// internal/server/session.go
package server

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cryptochat/internal/crypto"
	"cryptochat/internal/metrics"
	"cryptochat/internal/proto"
)

// session drives one TCP connection: handshake verification, room
// negotiation and the bidirectional relay loop.
type session struct {
	conn net.Conn
	reg  *Registry
	key  crypto.TransportKey
	m    *metrics.Metrics
	log  *logging.Logger
}

func (s *session) writeLine(line string) error {
	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}

func (s *session) writeSealed(plain string) error {
	line, err := s.key.Seal(plain)
	if err != nil {
		return err
	}
	return s.writeLine(line)
}

// run is the full session lifecycle. A nil return means the client was
// refused or went away cleanly; errors are transport or crypto faults worth
// logging.
func (s *session) run() error {
	lines := bufio.NewScanner(s.conn)
	lines.Buffer(make([]byte, 0, 64*1024), 1<<20)

	cmd, room, err := s.handshake(lines)
	if err != nil || room == nil {
		return err
	}

	// Guaranteed cleanup on every exit path: announce, drop membership,
	// re-broadcast the member list, destroy the room if now empty.
	defer func() {
		if line, err := s.key.Seal(proto.FormatLeft(cmd.Nickname)); err == nil {
			room.Channel.Publish(line)
		}
		if s.reg.Leave(cmd.RoomID, cmd.Nickname) {
			s.m.IncRoomRemoved()
		}
	}()

	// Announce before subscribing so the session never echoes its own join,
	// then snapshot after subscribing so it cannot miss the membership it
	// raced.
	if line, err := s.key.Seal(proto.FormatJoined(cmd.Nickname)); err == nil {
		room.Channel.Publish(line)
	}
	sub := room.Channel.Subscribe()
	defer sub.Close()
	defer func() {
		if n := sub.Lagged(); n > 0 {
			s.m.AddLagDropped(n)
			s.log.Warningf("session %s lagged, dropped %d messages", cmd.Nickname, n)
		}
	}()
	s.reg.PublishMemberList(cmd.RoomID)

	return s.relay(cmd.Nickname, room, sub.Recv(), lines)
}

// handshake performs AUTH and room negotiation. A nil room with a nil error
// means the client was refused with an ERR line.
func (s *session) handshake(lines *bufio.Scanner) (proto.Command, *Room, error) {
	line, ok := scanLine(lines)
	if !ok {
		return proto.Command{}, nil, scanErr(lines)
	}
	// The AUTH line must open cleanly; transport integrity failures are
	// hard errors, the connection is dropped.
	plain, err := s.key.Open(line)
	if err != nil {
		return proto.Command{}, nil, fmt.Errorf("auth line: %w", err)
	}
	token, ok := proto.ParseAuth(plain)
	if !ok {
		s.m.IncConnAuthFailed()
		return proto.Command{}, nil, s.refuse(proto.ReasonNeedAuth)
	}
	if !crypto.VerifyAuthToken(token, s.key, time.Now()) {
		s.m.IncConnAuthFailed()
		return proto.Command{}, nil, s.refuse(proto.ReasonBadAuth)
	}
	if err := s.writeSealed(proto.OKLine); err != nil {
		return proto.Command{}, nil, err
	}
	if err := s.writeSealed(proto.FormatRooms(s.reg.Rooms())); err != nil {
		return proto.Command{}, nil, err
	}

	line, ok = scanLine(lines)
	if !ok {
		return proto.Command{}, nil, scanErr(lines)
	}
	// Negotiation lines fall back to the raw text when they do not open;
	// legacy clients sent them unsealed.
	if plain, err := s.key.Open(line); err == nil {
		line = plain
	}
	cmd, err := proto.ParseCommand(line)
	if err != nil {
		return proto.Command{}, nil, s.refuseErr(err)
	}
	room, err := s.reg.Apply(cmd)
	if err != nil {
		s.m.IncRoomRefused()
		return proto.Command{}, nil, s.refuseErr(err)
	}
	if cmd.Action == proto.ActionCreate {
		s.m.IncRoomCreated()
		s.log.Noticef("room %q created by %q", cmd.RoomID, cmd.Nickname)
	} else {
		s.m.IncRoomJoined()
		s.log.Noticef("%q joined room %q", cmd.Nickname, cmd.RoomID)
	}
	if err := s.writeSealed(proto.OKLine); err != nil {
		return proto.Command{}, nil, err
	}
	return cmd, room, nil
}

func (s *session) refuse(r proto.Reason) error {
	// Refusals are plaintext: the peer may not share our key material.
	return s.writeLine(proto.FormatError(r))
}

func (s *session) refuseErr(err error) error {
	var re *proto.RoomError
	if errors.As(err, &re) {
		return s.refuse(re.Reason)
	}
	var ae *proto.AuthError
	if errors.As(err, &ae) {
		return s.refuse(ae.Reason)
	}
	return err
}

// relay pumps lines between the socket and the room channel until either
// side fails. Keep-alives are answered inline and never broadcast; any
// other payload is re-wrapped under a fresh transport seal with the sender
// prefix.
func (s *session) relay(nickname string, room *Room, inbox <-chan string, lines *bufio.Scanner) error {
	read := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(read)
		for {
			line, ok := scanLine(lines)
			if !ok {
				return
			}
			select {
			case read <- line:
			case <-done:
				return
			}
		}
	}()

	for {
		select {
		case line, ok := <-read:
			if !ok {
				return scanErr(lines)
			}
			if line == proto.PingLine {
				s.m.IncPings()
				if err := s.writeLine(proto.PingAckLine); err != nil {
					return err
				}
				continue
			}
			plain := line
			if p, err := s.key.Open(line); err == nil {
				plain = p
			}
			sealed, err := s.key.Seal(proto.FormatChat(nickname, plain))
			if err != nil {
				return err
			}
			room.Channel.Publish(sealed)
			s.m.IncRelayed()
		case msg, ok := <-inbox:
			if !ok {
				return nil
			}
			if err := s.writeLine(msg); err != nil {
				return err
			}
		}
	}
}

func scanLine(lines *bufio.Scanner) (string, bool) {
	if !lines.Scan() {
		return "", false
	}
	return strings.TrimRight(lines.Text(), "\r"), true
}

func scanErr(lines *bufio.Scanner) error {
	err := lines.Err()
	if err == nil || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// internal/client/loop.go
package client

import (
	"bufio"
	"net"
	"strings"
	"time"

	"cryptochat/internal/proto"
)

// HeartbeatInterval is the keep-alive cadence. Advisory only: it keeps NAT
// mappings warm, it does not detect a silently dead peer promptly.
const HeartbeatInterval = 30 * time.Second

// SessionLoop multiplexes three sources until one of them ends the session:
// inbound network lines (decrypted and forwarded to the inbound channel),
// outbound messages (sealed under both layers and written), and the
// heartbeat timer. The shutdown sentinel on outbound, or closing outbound,
// stops the loop gracefully. The loop reports its end through the return
// value; it never terminates the process.
func SessionLoop(res *Result, inbound chan<- string, outbound <-chan string) error {
	read := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(read)
		lines := bufio.NewScanner(res.Conn)
		lines.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for lines.Scan() {
			select {
			case read <- strings.TrimRight(lines.Text(), "\r"):
			case <-done:
				return
			}
		}
	}()

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case line, ok := <-read:
			if !ok {
				return ErrServerClosed
			}
			if line == proto.PingLine || line == proto.PingAckLine {
				continue
			}
			plain, err := res.Key.Open(line)
			if err != nil {
				// Malformed inbound frames are dropped, never fatal.
				continue
			}
			inbound <- plain

		case msg, ok := <-outbound:
			if !ok || msg == proto.ShutdownSentinel {
				closeWrite(res.Conn)
				return nil
			}
			plain, err := ResolvePayload(msg)
			if err != nil {
				return err
			}
			sealed, err := res.Key.Seal(res.RoomKey.Seal(plain))
			if err != nil {
				return err
			}
			if _, err := res.Conn.Write([]byte(sealed + "\n")); err != nil {
				return err
			}

		case <-heartbeat.C:
			// Deliberately outside both encryption layers so the peer can
			// special-case it without decrypting.
			if _, err := res.Conn.Write([]byte(proto.PingLine + "\n")); err != nil {
				return err
			}
		}
	}
}

func closeWrite(conn net.Conn) {
	type writeCloser interface {
		CloseWrite() error
	}
	if wc, ok := conn.(writeCloser); ok {
		wc.CloseWrite()
		return
	}
	conn.Close()
}

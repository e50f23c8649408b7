package client

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cryptochat/internal/crypto"
	"cryptochat/internal/proto"
)

func startLoop(t *testing.T) (srv net.Conn, inbound chan string, outbound chan string, errc chan error) {
	t.Helper()
	cli, srv := net.Pipe()
	res := &Result{
		Conn:     cli,
		Key:      crypto.HashPassword("pw"),
		RoomKey:  crypto.DeriveRoomKey("R", "roompw"),
		RoomID:   "R",
		Nickname: "Alice",
	}
	inbound = make(chan string, 8)
	outbound = make(chan string)
	errc = make(chan error, 1)
	go func() { errc <- SessionLoop(res, inbound, outbound) }()
	t.Cleanup(func() {
		cli.Close()
		srv.Close()
	})
	return srv, inbound, outbound, errc
}

func TestSessionLoop(t *testing.T) {
	srv, inbound, outbound, errc := startLoop(t)
	key := crypto.HashPassword("pw")
	rk := crypto.DeriveRoomKey("R", "roompw")
	lines := bufio.NewScanner(srv)

	// Outbound: both layers applied, room innermost.
	outbound <- "hello"
	require.True(t, lines.Scan())
	plain, err := key.Open(lines.Text())
	require.NoError(t, err)
	body, ok := rk.Open(plain)
	require.True(t, ok)
	require.Equal(t, "hello", body)

	// Inbound: the transport layer is stripped before delivery.
	sealed, err := key.Seal("[Bob] hi")
	require.NoError(t, err)
	_, err = srv.Write([]byte(sealed + "\n"))
	require.NoError(t, err)
	require.Equal(t, "[Bob] hi", <-inbound)

	// Keep-alives and broken frames are swallowed, not delivered.
	_, err = srv.Write([]byte(proto.PingAckLine + "\n"))
	require.NoError(t, err)
	_, err = srv.Write([]byte("garbage\n"))
	require.NoError(t, err)
	sealed, err = key.Seal("[Bob] again")
	require.NoError(t, err)
	_, err = srv.Write([]byte(sealed + "\n"))
	require.NoError(t, err)
	require.Equal(t, "[Bob] again", <-inbound)
	select {
	case msg := <-inbound:
		t.Fatalf("unexpected inbound delivery: %q", msg)
	default:
	}

	// The sentinel flushes and closes; the peer observes EOF.
	outbound <- proto.ShutdownSentinel
	require.NoError(t, <-errc)
	require.False(t, lines.Scan())
}

func TestSessionLoopServerClosed(t *testing.T) {
	srv, _, _, errc := startLoop(t)
	srv.Close()
	select {
	case err := <-errc:
		require.ErrorIs(t, err, ErrServerClosed)
		require.True(t, Retryable(err))
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not notice the closed connection")
	}
}

func TestSessionLoopOutboundClosed(t *testing.T) {
	_, _, outbound, errc := startLoop(t)
	close(outbound)
	require.NoError(t, <-errc)
}

func TestSessionLoopPayloadError(t *testing.T) {
	_, _, outbound, errc := startLoop(t)
	outbound <- "no-such-file.png"
	require.Error(t, <-errc)
}

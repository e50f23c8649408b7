package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cryptochat/internal/client"
	"cryptochat/internal/proto"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "cryptochat",
		Short:         "Encrypted room chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newConnectCommand(), newJoinCommand(), newInviteCommand())
	return cmd
}

func newConnectCommand() *cobra.Command {
	var (
		server       string
		password     string
		room         string
		roomPassword string
		nickname     string
		create       bool
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join or create a room on a server",
		RunE: func(cmd *cobra.Command, args []string) error {
			action := proto.ActionJoin
			if create {
				action = proto.ActionCreate
			}
			res, err := client.Login(server, password, action, room, roomPassword, nickname)
			if err != nil {
				return loginError(err)
			}
			return runSession(res)
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "127.0.0.1:6655", "server address (host:port)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "server password")
	cmd.Flags().StringVarP(&room, "room", "r", "", "room id")
	cmd.Flags().StringVarP(&roomPassword, "room-password", "k", "", "room password")
	cmd.Flags().StringVarP(&nickname, "nick", "n", "", "nickname")
	cmd.Flags().BoolVar(&create, "create", false, "create the room instead of joining it")
	for _, f := range []string{"password", "room", "room-password", "nick"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newJoinCommand() *cobra.Command {
	var (
		token    string
		nickname string
	)
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a room from an invitation token",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := client.JoinFromInvitation(token, nickname)
			if err != nil {
				return loginError(err)
			}
			return runSession(res)
		},
	}
	cmd.Flags().StringVarP(&token, "invite", "i", "", "invitation token")
	cmd.Flags().StringVarP(&nickname, "nick", "n", "", "nickname")
	for _, f := range []string{"invite", "nick"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newInviteCommand() *cobra.Command {
	var (
		server       string
		password     string
		room         string
		roomPassword string
	)
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Print an invitation token for a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := client.NewInvitation(server, password, room, roomPassword)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "127.0.0.1:6655", "server address (host:port)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "server password")
	cmd.Flags().StringVarP(&room, "room", "r", "", "room id")
	cmd.Flags().StringVarP(&roomPassword, "room-password", "k", "", "room password")
	for _, f := range []string{"password", "room", "room-password"} {
		cmd.MarkFlagRequired(f)
	}
	return cmd
}

func loginError(err error) error {
	if client.Retryable(err) {
		return fmt.Errorf("%v (check the address, password or invitation and try again)", err)
	}
	return err
}

// runSession pumps stdin to the room and the room to stdout until either
// side ends the session. Typing the path of a .png or .jpg sends the image
// inline; EOF on stdin leaves the room cleanly.
func runSession(res *client.Result) error {
	fmt.Printf("joined %q as %q, ^D to leave\n", res.RoomID, res.Nickname)

	inbound := make(chan string, 64)
	outbound := make(chan string)
	errc := make(chan error, 1)
	go func() { errc <- client.SessionLoop(res, inbound, outbound) }()

	go func() {
		defer close(outbound)
		stdin := bufio.NewScanner(os.Stdin)
		for stdin.Scan() {
			if line := strings.TrimSpace(stdin.Text()); line != "" {
				outbound <- line
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case line := <-inbound:
			render(res, line)
		case <-sigCh:
			res.Conn.Close()
			return nil
		case err := <-errc:
			if errors.Is(err, client.ErrServerClosed) {
				fmt.Println("server closed the connection")
				return nil
			}
			return err
		}
	}
}

func render(res *client.Result, line string) {
	if names, ok := proto.ParseMemberList(line); ok {
		fmt.Printf("* members: %s\n", strings.Join(names, ", "))
		return
	}
	if strings.HasPrefix(line, "⚡") {
		fmt.Println(line)
		return
	}
	nickname, body := proto.SplitChat(line)
	if plain, ok := res.RoomKey.Open(body); ok {
		body = plain
	}
	if data, ok, err := client.DecodeImagePayload(body); ok {
		if err != nil {
			fmt.Printf("[%s] sent an unreadable image\n", nickname)
			return
		}
		path, err := saveImage(data)
		if err != nil {
			fmt.Printf("[%s] sent an image (save failed: %v)\n", nickname, err)
			return
		}
		fmt.Printf("[%s] sent an image, saved to %s\n", nickname, path)
		return
	}
	fmt.Printf("[%s] %s\n", nickname, body)
}

func saveImage(data []byte) (string, error) {
	f, err := os.CreateTemp("", "cryptochat-*"+imageExt(data))
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// imageExt picks the saved file's extension from the payload magic rather
// than trusting the sender's file name, which never travels on the wire.
func imageExt(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return ".png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return ".jpg"
	default:
		return ".img"
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package proto

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		invalid bool
	}{
		{line: "CREATE MyRoom abc123 Alice", want: Command{Action: "CREATE", RoomID: "MyRoom", Credential: "abc123", Nickname: "Alice"}},
		{line: "JOIN Public tag Bob", want: Command{Action: "JOIN", RoomID: "Public", Credential: "tag", Nickname: "Bob"}},
		{line: "  JOIN   Public   tag   Bob  ", want: Command{Action: "JOIN", RoomID: "Public", Credential: "tag", Nickname: "Bob"}},
		// Unknown verbs parse fine; the registry decides UnknownAction.
		{line: "DESTROY Public tag Bob", want: Command{Action: "DESTROY", RoomID: "Public", Credential: "tag", Nickname: "Bob"}},
		{line: "", invalid: true},
		{line: "JOIN", invalid: true},
		{line: "JOIN Public", invalid: true},
		{line: "JOIN Public tag", invalid: true},
	}
	for _, tc := range tests {
		got, err := ParseCommand(tc.line)
		if tc.invalid {
			var re *RoomError
			if !errors.As(err, &re) || re.Reason != ReasonInvalidCmd {
				t.Fatalf("ParseCommand(%q) err = %v, want InvalidCmd", tc.line, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseCommand(%q) failed: %v", tc.line, err)
		}
		if got != tc.want {
			t.Fatalf("ParseCommand(%q) = %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestCommandRoundTrip(t *testing.T) {
	c := Command{Action: ActionJoin, RoomID: "MyRoom", Credential: "deadbeef", Nickname: "Alice"}
	got, err := ParseCommand(FormatCommand(c))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	if got != c {
		t.Fatalf("round trip = %+v, want %+v", got, c)
	}
}

func TestAuthLine(t *testing.T) {
	token, ok := ParseAuth(FormatAuth("b64token=="))
	if !ok || token != "b64token==" {
		t.Fatalf("ParseAuth = (%q, %v)", token, ok)
	}
	if _, ok := ParseAuth("JOIN Public tag Bob"); ok {
		t.Fatalf("non-AUTH line accepted")
	}
}

func TestRoomsLine(t *testing.T) {
	ids, ok := ParseRooms(FormatRooms([]string{"Public", "Dev"}))
	if !ok || len(ids) != 2 || ids[0] != "Public" || ids[1] != "Dev" {
		t.Fatalf("ParseRooms = (%v, %v)", ids, ok)
	}
	ids, ok = ParseRooms(FormatRooms(nil))
	if !ok || len(ids) != 0 {
		t.Fatalf("empty listing = (%v, %v)", ids, ok)
	}
	if _, ok := ParseRooms("HELLO"); ok {
		t.Fatalf("bad banner accepted")
	}
}

func TestMemberListLine(t *testing.T) {
	names, ok := ParseMemberList(FormatMemberList([]string{"Alice", "Bob"}))
	if !ok || len(names) != 2 || names[0] != "Alice" || names[1] != "Bob" {
		t.Fatalf("ParseMemberList = (%v, %v)", names, ok)
	}
	// Stray separators and spaces are dropped.
	names, ok = ParseMemberList("/member_list Alice, ,Bob,")
	if !ok || len(names) != 2 {
		t.Fatalf("messy list = (%v, %v)", names, ok)
	}
	if _, ok := ParseMemberList("[Alice] hi"); ok {
		t.Fatalf("chat line accepted as member list")
	}
}

func TestSplitChat(t *testing.T) {
	nick, body := SplitChat(FormatChat("Alice", "hello there"))
	if nick != "Alice" || body != "hello there" {
		t.Fatalf("SplitChat = (%q, %q)", nick, body)
	}
	nick, body = SplitChat("no brackets here")
	if nick != "???" || body != "no brackets here" {
		t.Fatalf("fallback = (%q, %q)", nick, body)
	}
}

func TestParseResponse(t *testing.T) {
	if err := ParseResponse("OK"); err != nil {
		t.Fatalf("OK parsed as %v", err)
	}
	if err := ParseResponse("  OK \r"); err != nil {
		t.Fatalf("trimmed OK parsed as %v", err)
	}

	var ae *AuthError
	if err := ParseResponse(FormatError(ReasonBadAuth)); !errors.As(err, &ae) || ae.Reason != ReasonBadAuth {
		t.Fatalf("BadAuth = %v", err)
	}
	var re *RoomError
	for _, r := range []Reason{ReasonRoomExists, ReasonBadCredential, ReasonNoSuchRoom, ReasonUnknownAction, ReasonInvalidCmd} {
		if err := ParseResponse(FormatError(r)); !errors.As(err, &re) || re.Reason != r {
			t.Fatalf("%s = %v", r, err)
		}
	}
	var pe *ProtocolError
	if err := ParseResponse("BANNER garbage"); !errors.As(err, &pe) {
		t.Fatalf("garbage = %v", err)
	}
	if err := ParseResponse("ERR SomethingNew"); !errors.As(err, &pe) {
		t.Fatalf("unknown reason = %v", err)
	}
}

package bot

import (
	"errors"
	"testing"

	"github.com/nicebartender/miraibot/message"
)

func TestLinkURL(t *testing.T) {
	tests := []struct {
		name string
		link LinkConfig
		want string
	}{
		{"https", LinkConfig{"https://example.com", "123456789", 42}, "wss://example.com/all?verifyKey=123456789&qq=42"},
		{"http with port", LinkConfig{"http://127.0.0.1:8080/", "k", 1}, "ws://127.0.0.1:8080/all?verifyKey=k&qq=1"},
		{"ws passthrough", LinkConfig{"ws://gw.local", "k", 7}, "ws://gw.local/all?verifyKey=k&qq=7"},
		{"wss passthrough", LinkConfig{"wss://gw.local", "k", 7}, "wss://gw.local/all?verifyKey=k&qq=7"},
		{"key escaped", LinkConfig{"http://h", "a b&c", 7}, "ws://h/all?verifyKey=a+b%26c&qq=7"},
	}
	for _, tt := range tests {
		got, err := tt.link.URL()
		if err != nil {
			t.Fatalf("%s: URL() error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: URL() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestLinkURLInvalid(t *testing.T) {
	cases := []LinkConfig{
		{"", "k", 1},
		{"ftp://h", "k", 1},
		{"https://", "k", 1},
		{"https://h", "", 1},
		{"https://h", "k", 0},
		{"::not a url", "k", 1},
	}
	for _, l := range cases {
		_, err := l.URL()
		if !errors.Is(err, ErrConfiguration) {
			t.Errorf("URL(%+v) error = %v, want ErrConfiguration", l, err)
		}
	}
}

func TestCommandEncode(t *testing.T) {
	cmd := newCommand(SendInfo{
		MsgType: FriendMessage,
		Target:  42,
		Message: message.New().AddText("hi"),
	})
	data, err := cmd.encode("tok")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"syncId":1,"command":"sendFriendMessage","subCommand":null,"content":{"sessionKey":"tok","target":42,"messageChain":[{"type":"Plain","text":"hi"}]}}`
	if string(data) != want {
		t.Errorf("encode =\n%s\nwant\n%s", data, want)
	}
}

func TestCommandFrozenAtEnqueue(t *testing.T) {
	chain := message.New().AddText("a")
	cmd := newCommand(SendInfo{MsgType: GroupMessage, Target: 1, Message: chain})
	chain.AddText("b")

	if len(cmd.segments) != 1 {
		t.Errorf("command saw later edits: %+v", cmd.segments)
	}
	if cmd.name() != "sendGroupMessage" {
		t.Errorf("name = %q", cmd.name())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    frameKind
		code    int
		session string
		event   EventType
		syncID  string
	}{
		{"handshake", `{"syncId":"","data":{"code":0,"session":"abc"}}`, kindControl, 0, "abc", "", ""},
		{"send reply", `{"syncId":1,"data":{"code":0,"msg":"success","messageId":9}}`, kindControl, 0, "", "", "1"},
		{"rejected", `{"syncId":1,"data":{"code":3,"msg":"Session失效"}}`, kindControl, 3, "", "", "1"},
		{"event", `{"syncId":"-1","data":{"type":"GroupMessage","messageChain":[]}}`, kindEvent, 0, "", EventGroupMessage, "-1"},
		{"code wins over type", `{"syncId":1,"data":{"code":0,"type":"FriendMessage"}}`, kindControl, 0, "", "", "1"},
	}
	for _, tt := range tests {
		got, err := classify([]byte(tt.raw))
		if err != nil {
			t.Fatalf("%s: classify error: %v", tt.name, err)
		}
		if got.kind != tt.kind || got.code != tt.code || got.session != tt.session || got.event != tt.event || got.syncID != tt.syncID {
			t.Errorf("%s: classify = %+v", tt.name, got)
		}
	}
}

func TestClassifyMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"syncId":1}`,
		`{"syncId":1,"data":null}`,
		`{"syncId":1,"data":{"foo":1}}`,
		`{"syncId":1,"data":[1,2]}`,
		`{"syncId":1,"data":{"code":"zero"}}`,
	}
	for _, raw := range cases {
		_, err := classify([]byte(raw))
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("classify(%s) error = %v, want *ProtocolError", raw, err)
			continue
		}
		if string(perr.Payload) != raw {
			t.Errorf("payload = %s, want %s", perr.Payload, raw)
		}
		if !errors.Is(err, ErrProtocol) {
			t.Errorf("classify(%s) does not match ErrProtocol", raw)
		}
	}
}

package bot

import (
	"bytes"
	"encoding/json"

	"github.com/nicebartender/miraibot/message"
)

type MessageType string

const (
	FriendMessage MessageType = "FriendMessage"
	GroupMessage  MessageType = "GroupMessage"
)

// SendInfo describes one outbound message.
type SendInfo struct {
	MsgType MessageType
	Target  int64
	Message *message.Chain
}

// command is a SendInfo frozen at enqueue time.
type command struct {
	msgType  MessageType
	target   int64
	segments []message.Segment
}

func newCommand(info SendInfo) command {
	return command{
		msgType:  info.MsgType,
		target:   info.Target,
		segments: info.Message.Segments(),
	}
}

func (c command) name() string {
	return "send" + string(c.msgType)
}

// Wire format of outbound requests.
type request struct {
	SyncID     int     `json:"syncId"`
	Command    string  `json:"command"`
	SubCommand *string `json:"subCommand"`
	Content    any     `json:"content"`
}

type sendContent struct {
	SessionKey   string            `json:"sessionKey"`
	Target       int64             `json:"target"`
	MessageChain []message.Segment `json:"messageChain"`
}

func (c command) encode(sessionKey string) ([]byte, error) {
	return json.Marshal(request{
		SyncID:  1,
		Command: c.name(),
		Content: sendContent{
			SessionKey:   sessionKey,
			Target:       c.target,
			MessageChain: c.segments,
		},
	})
}

// Wire format of inbound frames.
type frame struct {
	SyncID json.RawMessage `json:"syncId"`
	Data   json.RawMessage `json:"data"`
}

type framePeek struct {
	Code    *int    `json:"code"`
	Session string  `json:"session"`
	Msg     string  `json:"msg"`
	Type    *string `json:"type"`
}

type frameKind int

const (
	kindControl frameKind = iota + 1
	kindEvent
)

type classified struct {
	kind    frameKind
	syncID  string
	data    json.RawMessage
	code    int
	session string
	msg     string
	event   EventType
}

// classify sorts a raw frame into a control reply or a domain event.
// Anything else comes back as a *ProtocolError.
func classify(raw []byte) (classified, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return classified{}, &ProtocolError{Reason: "invalid json: " + err.Error(), Payload: raw}
	}
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return classified{}, &ProtocolError{Reason: "missing data", Payload: raw}
	}
	var peek framePeek
	if err := json.Unmarshal(f.Data, &peek); err != nil {
		return classified{}, &ProtocolError{Reason: "invalid data: " + err.Error(), Payload: raw}
	}

	out := classified{syncID: syncIDString(f.SyncID), data: f.Data}
	switch {
	case peek.Code != nil:
		out.kind = kindControl
		out.code = *peek.Code
		out.session = peek.Session
		out.msg = peek.Msg
	case peek.Type != nil:
		out.kind = kindEvent
		out.event = EventType(*peek.Type)
	default:
		return classified{}, &ProtocolError{Reason: "data has neither code nor type", Payload: raw}
	}
	return out, nil
}

// syncIDString accepts the numeric and string forms the gateway uses.
func syncIDString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

package bot

import (
	"encoding/json"
	"fmt"

	"github.com/nicebartender/miraibot/message"
)

// EventType is the data.type tag of an inbound event frame.
type EventType string

const (
	EventFriendMessage EventType = "FriendMessage"
	EventGroupMessage  EventType = "GroupMessage"
)

// Event is one inbound domain event. Data is the frame's data object, verbatim.
type Event struct {
	Type   EventType
	SyncID string
	Data   json.RawMessage
}

type Group struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Permission string `json:"permission"`
}

type Sender struct {
	ID         int64  `json:"id"`
	Nickname   string `json:"nickname"`
	Remark     string `json:"remark"`
	MemberName string `json:"memberName"`
	Permission string `json:"permission"`
	Group      *Group `json:"group,omitempty"`
}

// MessageEvent is the shape shared by FriendMessage and GroupMessage.
type MessageEvent struct {
	Type         string            `json:"type"`
	Sender       Sender            `json:"sender"`
	MessageChain []message.Segment `json:"messageChain"`
}

// Message decodes a friend or group message event.
func (e Event) Message() (MessageEvent, error) {
	if e.Type != EventFriendMessage && e.Type != EventGroupMessage {
		return MessageEvent{}, fmt.Errorf("event %s is not a message", e.Type)
	}
	var m MessageEvent
	if err := json.Unmarshal(e.Data, &m); err != nil {
		return MessageEvent{}, fmt.Errorf("decode %s: %w", e.Type, err)
	}
	return m, nil
}

func (m MessageEvent) PlainText() string {
	return message.PlainText(m.MessageChain)
}

// ReplyTo returns where a reply to m should go: the group for group
// messages, the sender otherwise.
func (m MessageEvent) ReplyTo() (MessageType, int64) {
	if m.Type == string(GroupMessage) && m.Sender.Group != nil {
		return GroupMessage, m.Sender.Group.ID
	}
	return FriendMessage, m.Sender.ID
}

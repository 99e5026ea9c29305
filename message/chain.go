// Package message builds the messageChain payloads sent to the gateway.
package message

import "strings"

const (
	TypePlain = "Plain"
	TypeImage = "Image"
)

// Segment is one entry of a messageChain. Only the fields relevant to the
// segment type are set.
type Segment struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	URL  string `json:"url,omitempty"`
	ID   int64  `json:"id,omitempty"`
	Time int64  `json:"time,omitempty"`
}

func Text(text string) Segment {
	return Segment{Type: TypePlain, Text: text}
}

func Image(url string) Segment {
	return Segment{Type: TypeImage, URL: url}
}

// Chain accumulates segments in the order they are added.
type Chain struct {
	segments []Segment
}

func New(segments ...Segment) *Chain {
	return &Chain{segments: append([]Segment(nil), segments...)}
}

func (c *Chain) AddText(text string) *Chain {
	c.segments = append(c.segments, Text(text))
	return c
}

func (c *Chain) AddImage(url string) *Chain {
	c.segments = append(c.segments, Image(url))
	return c
}

// Segments returns a copy of the accumulated segments. A nil chain yields an
// empty, non-nil slice so it still encodes as a JSON array.
func (c *Chain) Segments() []Segment {
	if c == nil {
		return []Segment{}
	}
	out := make([]Segment, len(c.segments))
	copy(out, c.segments)
	return out
}

func (c *Chain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.segments)
}

// PlainText joins the text of every Plain segment.
func PlainText(segments []Segment) string {
	var texts []string
	for _, s := range segments {
		if s.Type == TypePlain && s.Text != "" {
			texts = append(texts, s.Text)
		}
	}
	return strings.Join(texts, "")
}

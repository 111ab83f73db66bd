// Package render projects stored messages into what the widget displays.
package render

import (
	"fmt"
	"strings"

	"github.com/RichardoC/deeptok/internal/models"
)

const DefaultAssistant = "DeepTok"

const (
	userAvatar = "https://i.pravatar.cc/40?img=5"
	botAvatar  = "https://i.pravatar.cc/40?img=3"
)

type Align string

const (
	AlignLeft  Align = "left"
	AlignRight Align = "right"
)

type Item struct {
	ID        int64       `json:"id"`
	Role      models.Role `json:"role"`
	Sender    string      `json:"sender"`
	Text      string      `json:"text"`
	Avatar    string      `json:"avatar"`
	Align     Align       `json:"align"`
	Timestamp string      `json:"timestamp"`
}

// View is a complete display list. ScrollTo is the ID of the newest item, or
// zero when the list is empty.
type View struct {
	Items    []Item `json:"items"`
	ScrollTo int64  `json:"scrollTo"`
}

// Render rebuilds the whole list from messages, labelling user messages with
// identity and bot messages with assistant.
func Render(messages []models.Message, identity, assistant string) View {
	view := View{Items: make([]Item, 0, len(messages))}
	for _, msg := range messages {
		item := Item{
			ID:        msg.ID,
			Role:      msg.Role,
			Text:      msg.Text,
			Timestamp: msg.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
		if msg.Role == models.RoleUser {
			item.Sender = identity
			item.Avatar = userAvatar
			item.Align = AlignRight
		} else {
			item.Sender = assistant
			item.Avatar = botAvatar
			item.Align = AlignLeft
		}
		view.Items = append(view.Items, item)
	}
	if n := len(view.Items); n > 0 {
		view.ScrollTo = view.Items[n-1].ID
	}
	return view
}

// Text lays a view out for a terminal: bot lines on the left, user lines
// indented towards the right.
func Text(view View, width int) string {
	var b strings.Builder
	for _, item := range view.Items {
		indent := ""
		if item.Align == AlignRight {
			indent = strings.Repeat(" ", width/4)
		}
		fmt.Fprintf(&b, "%s[%s]\n", indent, item.Sender)
		for _, line := range strings.Split(item.Text, "\n") {
			fmt.Fprintf(&b, "%s  %s\n", indent, line)
		}
	}
	return b.String()
}

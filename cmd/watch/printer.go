package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"streamhub/internal/core/domain"
	"streamhub/pkg/client"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var (
	timeStyle   = color.New(color.FgGray)
	nameStyle   = color.New(color.FgCyan, color.OpBold)
	systemStyle = color.New(color.FgYellow)
	noticeStyle = color.New(color.BgBlack, color.FgGreen)
	errorStyle  = color.New(color.FgRed)
)

// printer renders room events as terminal lines. Handlers run on the
// client's read goroutine, so writes are serialized.
type printer struct {
	mu  sync.Mutex
	out io.Writer
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

func (p *printer) attach(c *client.Client) {
	c.On(domain.EventChatHistory, p.history)
	c.On(domain.EventNewChatMessage, p.chat)
	c.On(domain.EventUserJoined, p.presence("joined"))
	c.On(domain.EventUserLeft, p.presence("left"))
	c.On(domain.EventViewerCountUpdate, p.viewerCount)
	c.On(domain.EventViewerList, p.viewerList)
	c.On(domain.EventNotification, p.notification)
	c.On(domain.EventError, p.serverError)
	c.OnStateChange(p.state)
}

func (p *printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *printer) errorf(format string, args ...any) {
	p.println(errorStyle.Render("error: " + fmt.Sprintf(format, args...)))
}

func stamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return timeStyle.Render(t.Local().Format("15:04:05"))
}

func (p *printer) formatChat(m *domain.ChatMessage) string {
	if m.Kind == domain.MessageKindSystem {
		return fmt.Sprintf("%s %s", stamp(m.Timestamp), systemStyle.Render("* "+m.Message))
	}
	return fmt.Sprintf("%s %s %s", stamp(m.Timestamp), nameStyle.Render(m.User.DisplayName+":"), m.Message)
}

func (p *printer) history(payload json.RawMessage) {
	var messages []*domain.ChatMessage
	if err := json.Unmarshal(payload, &messages); err != nil {
		p.errorf("bad chat history: %v", err)
		return
	}
	for _, m := range messages {
		p.println(p.formatChat(m))
	}
}

func (p *printer) chat(payload json.RawMessage) {
	var m domain.ChatMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		p.errorf("bad chat message: %v", err)
		return
	}
	p.println(p.formatChat(&m))
}

func (p *printer) presence(verb string) client.Handler {
	return func(payload json.RawMessage) {
		var ev domain.PresencePayload
		if err := json.Unmarshal(payload, &ev); err != nil {
			return
		}
		p.println(fmt.Sprintf("%s %s", stamp(ev.Timestamp), systemStyle.Render(ev.User.DisplayName+" "+verb)))
	}
}

func (p *printer) viewerCount(payload json.RawMessage) {
	var ev domain.ViewerCountPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	p.println(systemStyle.Render(fmt.Sprintf("-- %d watching stream %s", ev.ViewerCount, ev.StreamID)))
}

func (p *printer) viewerList(payload json.RawMessage) {
	var ev domain.ViewerListPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		p.errorf("bad viewer list: %v", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	table := tablewriter.NewWriter(p.out)
	table.SetHeader([]string{"User", "Name", "Role", "Joined"})
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, v := range ev.Viewers {
		table.Append([]string{
			string(v.User.ID),
			v.User.DisplayName,
			string(v.User.Role),
			v.JoinedAt.Local().Format("15:04:05"),
		})
	}
	table.SetFooter([]string{"", "", "Total", fmt.Sprint(ev.ViewerCount)})
	table.Render()
}

func (p *printer) notification(payload json.RawMessage) {
	var ev domain.NotificationPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	p.println(fmt.Sprintf("%s %s", stamp(ev.Timestamp), noticeStyle.Render(" "+ev.Type+" ")+" "+ev.Message))
}

func (p *printer) serverError(payload json.RawMessage) {
	var ev domain.ErrorPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return
	}
	p.errorf("%s", ev.Message)
}

func (p *printer) state(s client.State, status client.ConnectionStatus) {
	switch s {
	case client.StateReconnecting:
		p.println(systemStyle.Render(fmt.Sprintf("-- reconnecting (attempt %d)", status.ReconnectAttempts)))
	case client.StateAuthenticated:
		p.println(systemStyle.Render("-- connected"))
	case client.StateFailed:
		p.errorf("gave up reconnecting")
	}
}

package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/buildyard/internal/notify"
)

type mockSlackClient struct {
	channels []string
	calls    int
	errs     []error
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channels = append(m.channels, channelID)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", "", err
	}
	return channelID, "1234.5678", nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Opts{ChannelID: "C1"}); err == nil {
		t.Error("expected error without token or client")
	}
	if _, err := New(Opts{BotToken: "xoxb"}); err == nil {
		t.Error("expected error without channel")
	}
	if _, err := New(Opts{BotToken: "xoxb", ChannelID: "C1"}); err != nil {
		t.Errorf("New: %v", err)
	}
}

func TestNotify_Posts(t *testing.T) {
	mock := &mockSlackClient{}
	n, err := New(Opts{ChannelID: "C1", Client: mock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Notify(context.Background(), notify.Alert{Title: "dispatch failed"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mock.calls != 1 || mock.channels[0] != "C1" {
		t.Errorf("calls = %d, channels = %v", mock.calls, mock.channels)
	}
}

func TestNotify_RetriesRateLimit(t *testing.T) {
	mock := &mockSlackClient{errs: []error{&slackapi.RateLimitedError{RetryAfter: time.Millisecond}}}
	n, _ := New(Opts{ChannelID: "C1", Client: mock})
	if err := n.Notify(context.Background(), notify.Alert{Title: "x"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if mock.calls != 2 {
		t.Errorf("calls = %d, want 2", mock.calls)
	}
}

func TestNotify_OtherErrorNotRetried(t *testing.T) {
	mock := &mockSlackClient{errs: []error{errors.New("channel_not_found")}}
	n, _ := New(Opts{ChannelID: "C1", Client: mock})
	if err := n.Notify(context.Background(), notify.Alert{Title: "x"}); err == nil {
		t.Fatal("expected error")
	}
	if mock.calls != 1 {
		t.Errorf("calls = %d, want 1", mock.calls)
	}
}

func TestAttachment(t *testing.T) {
	att := attachment(notify.Alert{
		Title:    "Build not dispatched",
		Body:     "enqueue failed",
		Severity: notify.SeverityError,
		Fields:   []notify.Field{{Name: "build", Value: "b1", Short: true}},
	})
	if att.Title != "Build not dispatched" || att.Text != "enqueue failed" {
		t.Errorf("attachment = %+v", att)
	}
	if att.Color != "#e01e5a" {
		t.Errorf("Color = %q, want error red", att.Color)
	}
	if len(att.Fields) != 1 || att.Fields[0].Title != "build" || !att.Fields[0].Short {
		t.Errorf("Fields = %+v", att.Fields)
	}
}

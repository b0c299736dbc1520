package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
)

func textCommand(text string) tiledesk.Command {
	return tiledesk.Command{Type: models.CommandMessage, Message: &tiledesk.Message{Text: text}}
}

func waitCommand(ms int64) tiledesk.Command {
	return tiledesk.Command{Type: models.CommandWait, Time: ms}
}

func testSequence(commands ...tiledesk.Command) *Sequence {
	return &Sequence{
		Settings:      &models.ChannelSettings{ProjectID: "p1", WabToken: "t"},
		Parent:        &tiledesk.Message{Sender: "bot_1", Recipient: "support-group-p1-x-wab-10001-391234"},
		Receiver:      "391234",
		PhoneNumberID: "10001",
		Commands:      commands,
	}
}

func TestSequencerOrdering(t *testing.T) {
	wa := &fakeWhatsapp{}
	s := NewSequencer(wa, nil, time.Second, time.Minute)

	start := time.Now()
	err := s.Run(context.Background(), testSequence(waitCommand(50), textCommand("A"), textCommand("B")))
	require.NoError(t, err)

	calls := wa.sent()
	require.Len(t, calls, 2)
	assert.Equal(t, "A", calls[0].msg.Text.Body)
	assert.Equal(t, "B", calls[1].msg.Text.Body)
	assert.GreaterOrEqual(t, calls[0].at.Sub(start), 50*time.Millisecond)
	assert.False(t, calls[1].at.Before(calls[0].at))
	assert.Equal(t, "10001", calls[0].phoneNumberID)
	assert.Equal(t, "391234", calls[0].msg.To)
}

func TestSequencerHaltsOnSendFailure(t *testing.T) {
	wa := &fakeWhatsapp{failOn: "A"}
	pub := &fakePublisher{}
	s := NewSequencer(wa, pub, time.Second, time.Minute)

	err := s.Run(context.Background(), testSequence(waitCommand(10), textCommand("A"), textCommand("B")))
	assert.ErrorIs(t, err, ErrSendFailed)

	calls := wa.sent()
	require.Len(t, calls, 1, "B must never be attempted")
	assert.Equal(t, "A", calls[0].msg.Text.Body)
	assert.Equal(t, []string{events.EventSequenceFinished}, pub.types())
}

func TestSequencerHaltsOnEmptyMessage(t *testing.T) {
	wa := &fakeWhatsapp{}
	s := NewSequencer(wa, nil, time.Second, time.Minute)

	err := s.Run(context.Background(), testSequence(textCommand("   "), textCommand("B")))
	assert.Error(t, err)
	assert.Empty(t, wa.sent())
}

func TestSequencerHaltsOnUnknownCommand(t *testing.T) {
	wa := &fakeWhatsapp{}
	s := NewSequencer(wa, nil, time.Second, time.Minute)

	err := s.Run(context.Background(), testSequence(tiledesk.Command{Type: "typing"}, textCommand("B")))
	assert.Error(t, err)
	assert.Empty(t, wa.sent())
}

func TestSequencerClampsWait(t *testing.T) {
	wa := &fakeWhatsapp{}
	s := NewSequencer(wa, nil, time.Second, 20*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Run(context.Background(), testSequence(waitCommand(60_000), textCommand("A"))))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Len(t, wa.sent(), 1)
}

func TestSequencerRegistry(t *testing.T) {
	wa := &fakeWhatsapp{}
	s := NewSequencer(wa, nil, time.Second, time.Minute)

	seq := testSequence(waitCommand(200), textCommand("A"))
	seq.ID = "seq-1"

	ctx, cancel := context.WithCancel(context.Background())
	id := s.Start(ctx, seq)
	// the sequence outlives the request that started it
	cancel()
	assert.Equal(t, "seq-1", id)

	require.Eventually(t, func() bool {
		st, ok := s.Get("seq-1")
		return ok && st.Status == SequenceStatusWaiting
	}, time.Second, 5*time.Millisecond)

	running := s.Running()
	require.Len(t, running, 1)
	assert.Equal(t, "p1", running[0].ProjectID)
	assert.Equal(t, 2, running[0].Total)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, s.Wait(waitCtx))

	assert.Len(t, wa.sent(), 1)
	_, ok := s.Get("seq-1")
	assert.False(t, ok)
	assert.Empty(t, s.Running())
}

func TestNewSequencerDefaultsSendTimeout(t *testing.T) {
	s := NewSequencer(&fakeWhatsapp{}, nil, 0, time.Minute)
	sendTimeout, maxWait := s.Limits()
	assert.Positive(t, sendTimeout)
	assert.Equal(t, time.Minute, maxWait)
}

func TestGenerateMessage(t *testing.T) {
	parent := &tiledesk.Message{Sender: "bot_1", SenderFullname: "Bot", Recipient: "r", ProjectID: "p1"}
	cmd := tiledesk.Command{Type: models.CommandMessage, Message: &tiledesk.Message{
		Text:       "  hello  ",
		Attributes: &tiledesk.Attributes{Commands: []tiledesk.Command{waitCommand(1)}},
	}}

	msg := GenerateMessage(parent, cmd)
	require.NotNil(t, msg)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "bot_1", msg.Sender)
	assert.Equal(t, "Bot", msg.SenderFullname)
	assert.Equal(t, "r", msg.Recipient)
	assert.Equal(t, "p1", msg.ProjectID)
	assert.Empty(t, msg.Attributes.Commands)
	assert.Len(t, cmd.Message.Attributes.Commands, 1, "command is not modified")
	assert.Equal(t, "  hello  ", cmd.Message.Text)

	assert.Nil(t, GenerateMessage(parent, tiledesk.Command{Type: models.CommandMessage}))
}

func TestSequencerWaitDuration(t *testing.T) {
	s := NewSequencer(&fakeWhatsapp{}, nil, time.Second, 20*time.Millisecond)
	assert.Equal(t, time.Duration(0), s.waitDuration(-5))
	assert.Equal(t, 10*time.Millisecond, s.waitDuration(10))
	assert.Equal(t, 20*time.Millisecond, s.waitDuration(10_000_000_000_000))

	unbounded := NewSequencer(&fakeWhatsapp{}, nil, time.Second, 0)
	assert.Positive(t, unbounded.waitDuration(10_000_000_000_000))
}

func TestSequencerClampsHugeWait(t *testing.T) {
	wa := &fakeWhatsapp{}
	s := NewSequencer(wa, nil, time.Second, 20*time.Millisecond)

	start := time.Now()
	require.NoError(t, s.Run(context.Background(), testSequence(waitCommand(10_000_000_000_000), textCommand("A"))))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Len(t, wa.sent(), 1)
}

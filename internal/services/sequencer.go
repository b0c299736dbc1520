package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/translator"
	"github.com/visioninhope/tiledesk-whatsapp-connector/pkg/httputil"
)

// SequenceStatus represents the status of a command sequence
type SequenceStatus string

const (
	SequenceStatusRunning   SequenceStatus = "running"
	SequenceStatusWaiting   SequenceStatus = "waiting"
	SequenceStatusCompleted SequenceStatus = "completed"
	SequenceStatusFailed    SequenceStatus = "failed"
)

var errEmptyTranslation = errors.New("command message has nothing to send")

// Sequence is one scripted reply to a WhatsApp user.
type Sequence struct {
	ID            string
	Settings      *models.ChannelSettings
	Parent        *tiledesk.Message
	Receiver      string
	PhoneNumberID string
	Commands      []tiledesk.Command
}

// SequenceState is the observable progress of a running sequence.
type SequenceState struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Receiver  string         `json:"receiver"`
	Index     int            `json:"index"`
	Total     int            `json:"total"`
	Status    SequenceStatus `json:"status"`
	StartedAt time.Time      `json:"started_at"`
}

// Sequencer executes command lists strictly in order: command N+1 starts only
// after the send or wait of command N has resolved. A failed send halts the
// sequence.
type Sequencer struct {
	sender      WhatsappSender
	publisher   EventPublisher
	sendTimeout time.Duration
	maxWait     time.Duration

	mu      sync.RWMutex
	running map[string]*SequenceState
	wg      sync.WaitGroup
}

func NewSequencer(sender WhatsappSender, publisher EventPublisher, sendTimeout, maxWait time.Duration) *Sequencer {
	if sendTimeout <= 0 {
		sendTimeout = httputil.DefaultTimeout
	}
	s := &Sequencer{
		sender:      sender,
		publisher:   publisherOrNoop(publisher),
		sendTimeout: sendTimeout,
		maxWait:     maxWait,
		running:     make(map[string]*SequenceState),
	}

	log.Info().
		Dur("sendTimeout", sendTimeout).
		Dur("maxWait", maxWait).
		Msg("Command sequencer initialized")
	return s
}

// Start runs the sequence in the background, detached from ctx cancellation
// so that it outlives the webhook request. It returns the sequence id.
func (s *Sequencer) Start(ctx context.Context, seq *Sequence) string {
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	detached := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.Run(detached, seq)
	}()
	return seq.ID
}

// Run executes the sequence and returns the error that halted it, if any.
func (s *Sequencer) Run(ctx context.Context, seq *Sequence) error {
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	state := &SequenceState{
		ID:        seq.ID,
		ProjectID: seq.Settings.ProjectID,
		Receiver:  seq.Receiver,
		Total:     len(seq.Commands),
		Status:    SequenceStatusRunning,
		StartedAt: time.Now(),
	}
	s.register(state)
	defer s.unregister(seq.ID)

	logger := log.With().
		Str("sequenceID", seq.ID).
		Str("projectID", state.ProjectID).
		Int("commands", state.Total).
		Logger()
	logger.Info().Msg("Starting command sequence")

	var err error
	for i, cmd := range seq.Commands {
		s.update(seq.ID, func(st *SequenceState) {
			st.Index = i
			st.Status = SequenceStatusRunning
		})

		switch cmd.Type {
		case models.CommandMessage:
			err = s.sendCommand(ctx, seq, cmd)
		case models.CommandWait:
			s.update(seq.ID, func(st *SequenceState) { st.Status = SequenceStatusWaiting })
			err = s.wait(ctx, s.waitDuration(cmd.Time))
		default:
			err = fmt.Errorf("unsupported command type %q", cmd.Type)
		}

		if err != nil {
			logger.Error().Err(err).Int("index", i).Str("type", cmd.Type).Msg("Command sequence halted")
			s.finish(ctx, seq, i, SequenceStatusFailed, err)
			return err
		}
	}

	logger.Debug().Msg("End of commands")
	s.finish(ctx, seq, len(seq.Commands), SequenceStatusCompleted, nil)
	return nil
}

func (s *Sequencer) sendCommand(ctx context.Context, seq *Sequence, cmd tiledesk.Command) error {
	msg := GenerateMessage(seq.Parent, cmd)
	out := translator.ToWhatsapp(msg, seq.Receiver)
	if out == nil {
		return errEmptyTranslation
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if _, err := s.sender.SendMessage(sendCtx, seq.Settings.WabToken, seq.PhoneNumberID, out); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	log.Debug().Str("sequenceID", seq.ID).Str("type", out.Type).Msg("Command message sent to WhatsApp")
	return nil
}

// waitDuration converts a wait command time in milliseconds, clamped to the
// configured ceiling before the conversion so it cannot overflow.
func (s *Sequencer) waitDuration(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	if s.maxWait > 0 && ms > s.maxWait.Milliseconds() {
		log.Warn().Int64("requestedMs", ms).Dur("max", s.maxWait).Msg("Wait command clamped")
		return s.maxWait
	}
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// wait blocks for d or until ctx is done.
func (s *Sequencer) wait(ctx context.Context, d time.Duration) error {
	if d < 0 {
		d = 0
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sequencer) finish(ctx context.Context, seq *Sequence, index int, status SequenceStatus, err error) {
	event := map[string]any{
		"sequence_id": seq.ID,
		"receiver":    seq.Receiver,
		"status":      status,
		"executed":    index,
		"total":       len(seq.Commands),
	}
	if err != nil {
		event["error"] = err.Error()
	}
	_ = s.publisher.Publish(ctx, events.EventSequenceFinished, seq.Settings.ProjectID, event)
}

func (s *Sequencer) register(state *SequenceState) {
	s.mu.Lock()
	s.running[state.ID] = state
	s.mu.Unlock()
}

func (s *Sequencer) unregister(id string) {
	s.mu.Lock()
	delete(s.running, id)
	s.mu.Unlock()
}

func (s *Sequencer) update(id string, fn func(*SequenceState)) {
	s.mu.Lock()
	if st, ok := s.running[id]; ok {
		fn(st)
	}
	s.mu.Unlock()
}

// Running returns a snapshot of the sequences in progress, oldest first.
func (s *Sequencer) Running() []SequenceState {
	s.mu.RLock()
	states := make([]SequenceState, 0, len(s.running))
	for _, st := range s.running {
		states = append(states, *st)
	}
	s.mu.RUnlock()

	sort.Slice(states, func(i, j int) bool { return states[i].StartedAt.Before(states[j].StartedAt) })
	return states
}

// Get returns the state of a running sequence.
func (s *Sequencer) Get(id string) (SequenceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.running[id]
	if !ok {
		return SequenceState{}, false
	}
	return *st, true
}

// Limits returns the configured send timeout and wait ceiling.
func (s *Sequencer) Limits() (sendTimeout, maxWait time.Duration) {
	return s.sendTimeout, s.maxWait
}

// Wait blocks until every started sequence has finished or ctx is done.
func (s *Sequencer) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

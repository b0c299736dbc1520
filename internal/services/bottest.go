package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/adapters/tiledesk"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/db"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/events"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/models"
	"github.com/visioninhope/tiledesk-whatsapp-connector/internal/translator"
)

// TestPrefix starts a WhatsApp text that opens a bot test conversation.
const TestPrefix = "#td"

// startText is the first message of a bot test conversation.
const startText = "/start"

// Registrar creates and resolves bot test sessions.
type Registrar struct {
	store     EphemeralStore // nil when Redis is not configured
	publisher EventPublisher
	now       func() time.Time
}

func NewRegistrar(store EphemeralStore, publisher EventPublisher) *Registrar {
	return &Registrar{store: store, publisher: publisherOrNoop(publisher), now: time.Now}
}

// Available reports whether bot testing is configured.
func (r *Registrar) Available() bool {
	return r != nil && r.store != nil
}

// Create stores a new session and returns its short id.
func (r *Registrar) Create(ctx context.Context, projectID, botID string) (string, error) {
	if !r.Available() {
		return "", ErrTestingUnavailable
	}

	session := models.TestSession{
		ShortID:   uuid.NewString()[:8],
		ProjectID: projectID,
		BotID:     botID,
		ExpiresAt: r.now().Add(models.TestSessionTTL).UTC(),
	}
	value, err := json.Marshal(session)
	if err != nil {
		return "", fmt.Errorf("failed to encode test session: %w", err)
	}

	if err := r.store.SetEx(ctx, models.TestSessionKeyPrefix+session.ShortID, value, models.TestSessionTTL); err != nil {
		log.Error().Err(err).Str("projectID", projectID).Msg("Unable to store test session")
		return "", fmt.Errorf("%w: %v", ErrTestingUnavailable, err)
	}

	log.Info().Str("projectID", projectID).Str("botID", botID).Str("shortID", session.ShortID).Msg("Test session created")
	_ = r.publisher.Publish(ctx, events.EventTestSessionCreated, projectID, session)
	return session.ShortID, nil
}

// Lookup returns the session stored under shortID.
func (r *Registrar) Lookup(ctx context.Context, shortID string) (*models.TestSession, error) {
	if !r.Available() {
		return nil, ErrTestingUnavailable
	}

	value, err := r.store.Get(ctx, models.TestSessionKeyPrefix+shortID)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTestingUnavailable, err)
	}

	var session models.TestSession
	if err := json.Unmarshal(value, &session); err != nil {
		return nil, fmt.Errorf("corrupted test session %s: %w", shortID, err)
	}
	session.ShortID = shortID
	return &session, nil
}

// TestLink is the wa.me link a tester opens to start a session.
func TestLink(phone, shortID string) string {
	return "https://wa.me/" + strings.TrimPrefix(phone, "+") + "?text=%23td" + shortID
}

// BotTester opens a Tiledesk conversation between a WhatsApp user and the bot
// named by a test session.
type BotTester struct {
	registrar *Registrar
	settings  SettingsReader
	tiledesk  TiledeskSender
	publisher EventPublisher
}

func NewBotTester(registrar *Registrar, settings SettingsReader, td TiledeskSender, publisher EventPublisher) *BotTester {
	return &BotTester{registrar: registrar, settings: settings, tiledesk: td, publisher: publisherOrNoop(publisher)}
}

// ParseTestCode extracts the short id from a "#td<short_id> ..." text.
func ParseTestCode(text string) (string, bool) {
	if !strings.HasPrefix(text, TestPrefix) {
		return "", false
	}
	code := strings.Fields(text)[0]
	return strings.TrimPrefix(code, TestPrefix), true
}

// Start resolves the session and sends the opening message to the bot.
// settings are those of the project that received the WhatsApp message; the
// conversation is opened on the session's project.
func (b *BotTester) Start(ctx context.Context, settings *models.ChannelSettings, info tiledesk.MessageInfo, shortID string) error {
	session, err := b.registrar.Lookup(ctx, shortID)
	if err != nil {
		return err
	}

	target := settings
	if session.ProjectID != "" && session.ProjectID != settings.ProjectID {
		target, err = b.settings.Get(ctx, session.ProjectID)
		if err != nil {
			return fmt.Errorf("settings of test project %s: %w", session.ProjectID, err)
		}
	}

	msg := &tiledesk.Message{
		Text:           startText,
		SenderFullname: strings.TrimSpace(info.Whatsapp.Firstname + " " + info.Whatsapp.Lastname),
		Participants:   []string{"bot_" + session.BotID},
		Channel:        &tiledesk.Channel{Name: translator.ChannelName},
	}

	sent, err := b.tiledesk.Send(ctx, target, msg, info, target.DepartmentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	var requestID string
	if sent != nil {
		requestID = sent.RequestID
	}

	log.Info().
		Str("projectID", target.ProjectID).
		Str("botID", session.BotID).
		Str("requestID", requestID).
		Msg("Test conversation started")
	_ = b.publisher.Publish(ctx, events.EventTestSessionStarted, target.ProjectID, map[string]string{
		"short_id":   shortID,
		"bot_id":     session.BotID,
		"request_id": requestID,
	})
	return nil
}

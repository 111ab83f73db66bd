// Package conversation runs a chat turn: persist the user message, re-render
// the full history, then after a fixed delay persist the reply and render again.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RichardoC/deeptok/internal/db"
	"github.com/RichardoC/deeptok/internal/identity"
	"github.com/RichardoC/deeptok/internal/models"
	"github.com/RichardoC/deeptok/internal/render"
)

const DefaultReplyDelay = 1500 * time.Millisecond

const (
	NoticeWriteFailed = "Pesan gagal disimpan, silakan coba lagi."
	NoticeReadFailed  = "Riwayat chat gagal dimuat."
)

var (
	ErrEmptyInput  = errors.New("empty input")
	ErrEmptyName   = identity.ErrEmptyName
	ErrUnavailable = errors.New("chat unavailable")
)

// Store is the durable message log.
type Store interface {
	Append(ctx context.Context, msg *models.Message) error
	ReadAll(ctx context.Context) ([]models.Message, error)
	WipeAll(ctx context.Context)
}

type Responder interface {
	Respond(ctx context.Context, utterance string) string
}

// Display receives everything the user gets to see.
type Display interface {
	Show(view render.View)
	Typing(on bool)
	Notice(text string)
}

// Config tunes a Service. A zero ReplyDelay means DefaultReplyDelay.
type Config struct {
	ReplyDelay time.Duration
	Assistant  string
}

// Turn describes an accepted user message whose reply is scheduled.
type Turn struct {
	ID            string    `json:"id"`
	UserMessageID int64     `json:"userMessageId"`
	ReplyAt       time.Time `json:"replyAt"`
}

type Service struct {
	store      Store
	identities identity.Store
	responder  Responder
	display    Display
	logger     *zap.Logger
	delay      time.Duration
	assistant  string
	now        func() time.Time

	renderMu sync.Mutex

	mu      sync.Mutex
	pending int
	wg      sync.WaitGroup
}

func NewService(store Store, identities identity.Store, responder Responder, display Display, cfg Config, logger *zap.Logger) *Service {
	if display == nil {
		display = nopDisplay{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReplyDelay <= 0 {
		cfg.ReplyDelay = DefaultReplyDelay
	}
	if cfg.Assistant == "" {
		cfg.Assistant = render.DefaultAssistant
	}
	return &Service{
		store:      store,
		identities: identities,
		responder:  responder,
		display:    display,
		logger:     logger,
		delay:      cfg.ReplyDelay,
		assistant:  cfg.Assistant,
		now:        time.Now,
	}
}

// Submit stores the user's message and schedules the reply. A turn that is
// still waiting for its reply is never cancelled by a later Submit.
func (s *Service) Submit(ctx context.Context, who, input string) (Turn, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return Turn{}, ErrEmptyInput
	}

	turn := Turn{ID: uuid.NewString()}
	msg := &models.Message{Role: models.RoleUser, Text: text, Timestamp: s.now()}
	if err := s.retryOnce("append user message", func() error { return s.store.Append(ctx, msg) }); err != nil {
		if errors.Is(err, db.ErrStorageUnavailable) {
			return Turn{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		s.display.Notice(NoticeWriteFailed)
		return Turn{}, err
	}
	turn.UserMessageID = msg.ID
	turn.ReplyAt = msg.Timestamp.Add(s.delay)

	s.logger.Info("user message stored",
		zap.String("turn", turn.ID),
		zap.Int64("messageID", msg.ID))

	if err := s.Render(ctx, who); err != nil {
		s.logger.Warn("render after submit failed", zap.String("turn", turn.ID), zap.Error(err))
	}

	s.mu.Lock()
	s.pending++
	s.display.Typing(true)
	s.mu.Unlock()

	replyCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.reply(replyCtx, turn, who, text)
	})
	return turn, nil
}

func (s *Service) reply(ctx context.Context, turn Turn, who, utterance string) {
	text := s.responder.Respond(ctx, utterance)
	msg := &models.Message{Role: models.RoleBot, Text: text, Timestamp: s.now()}

	err := s.retryOnce("append bot message", func() error { return s.store.Append(ctx, msg) })
	if err != nil {
		s.logger.Error("reply dropped", zap.String("turn", turn.ID), zap.Error(err))
	} else {
		s.logger.Info("bot reply stored",
			zap.String("turn", turn.ID),
			zap.Int64("messageID", msg.ID))
	}

	s.mu.Lock()
	s.pending--
	if s.pending == 0 {
		s.display.Typing(false)
	}
	s.mu.Unlock()

	// The name may have changed while the reply was pending.
	if err := s.Render(ctx, s.currentName(ctx, who)); err != nil {
		s.logger.Warn("render after reply failed", zap.String("turn", turn.ID), zap.Error(err))
	}
}

// Render reloads the whole history and publishes it. Renders are serialized
// so the display never goes back to an older history.
func (s *Service) Render(ctx context.Context, who string) error {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	view, err := s.History(ctx, who)
	if err != nil {
		s.display.Notice(NoticeReadFailed)
		return err
	}
	s.display.Show(view)
	return nil
}

// History returns the rendered history without publishing it.
func (s *Service) History(ctx context.Context, who string) (render.View, error) {
	var messages []models.Message
	err := s.retryOnce("read history", func() error {
		var err error
		messages, err = s.store.ReadAll(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, db.ErrStorageUnavailable) {
			return render.View{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return render.View{}, err
	}
	return render.Render(messages, who, s.assistant), nil
}

// Clear deletes the history and the identity and shows an empty list.
func (s *Service) Clear(ctx context.Context) {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	s.store.WipeAll(ctx)
	s.display.Show(render.Render(nil, identity.DefaultName, s.assistant))
	s.logger.Info("chat history cleared")
}

// Login stores the trimmed name as the identity and returns it.
func (s *Service) Login(ctx context.Context, name string) (string, error) {
	name, err := identity.Normalize(name)
	if err != nil {
		return "", err
	}
	if err := s.identities.Set(ctx, name); err != nil {
		return "", fmt.Errorf("save identity: %w", err)
	}
	s.logger.Info("identity saved", zap.String("username", name))
	return name, nil
}

// Identity reports the stored name and whether the user has logged in.
func (s *Service) Identity(ctx context.Context) (string, bool, error) {
	return s.identities.Get(ctx)
}

// ChangeName forgets the identity but keeps the history.
func (s *Service) ChangeName(ctx context.Context) error {
	return s.identities.Clear(ctx)
}

// currentName returns the display name for the stored identity, or fallback
// when it cannot be read.
func (s *Service) currentName(ctx context.Context, fallback string) string {
	if s.identities == nil {
		return fallback
	}
	name, ok, err := s.identities.Get(ctx)
	if err != nil {
		s.logger.Warn("read identity failed", zap.Error(err))
		return fallback
	}
	return identity.DisplayName(name, ok)
}

// Pending returns the number of scheduled replies not yet delivered.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Wait blocks until every scheduled reply has run.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) retryOnce(op string, fn func() error) error {
	err := fn()
	if err == nil || errors.Is(err, db.ErrStorageUnavailable) {
		return err
	}
	s.logger.Warn("store operation failed, retrying", zap.String("op", op), zap.Error(err))
	return fn()
}

type nopDisplay struct{}

func (nopDisplay) Show(render.View) {}
func (nopDisplay) Typing(bool)      {}
func (nopDisplay) Notice(string)    {}

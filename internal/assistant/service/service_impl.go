package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/assistant/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxMessageRunes = 4000
	maxContextRunes = 50000
	defaultHistory  = 20
	maxHistory      = 100
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Usage     usagedomain.Service
	Inference domain.Inference
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	usage     usagedomain.Service
	inference domain.Inference
	metrics   *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("assistant.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		usage:     p.Usage,
		inference: p.Inference,
		metrics:   p.Metrics,
	}
}

// Ask answers one question as a metered call: admission first, inference
// outside any transaction, then a charge only if a reply came back.
func (s *Service) Ask(ctx context.Context, req domain.AskRequest) (*domain.AskResponse, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.ErrInvalidMessage
	}
	if utf8.RuneCountInString(message) > maxMessageRunes || utf8.RuneCountInString(req.NoteContext) > maxContextRunes {
		return nil, domain.ErrMessageTooLong
	}
	log := logger.WithUser(logger.WithContext(ctx, s.log), userID)

	adm, err := s.usage.Check(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !adm.Allowed() {
		log.Info("assistant call blocked", zap.Int64("free_used_today", adm.FreeUsedToday))
		return nil, usagedomain.ErrUsageBlocked
	}

	reply, err := s.inference.Generate(ctx, composePrompt(message, req.NoteContext, req.NoteTitle))
	if err != nil {
		s.usage.Discard(ctx, userID, adm.Mode)
		s.metrics.RecordInferenceFailure(ctx, inferenceFailureReason(ctx, err))
		log.Warn("assistant inference failed", zap.String("mode", string(adm.Mode)), zap.Error(err))
		return nil, err
	}

	msgID := s.genID.Generate()
	if err := s.usage.Commit(ctx, userID, adm.Mode, "chat_"+msgID.String()); err != nil {
		// A concurrent call took the last credit after this one was
		// admitted; the reply is served uncharged.
		if !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
			return nil, err
		}
	}

	msg := &domain.ChatMessage{
		ID:        msgID,
		UserID:    userID,
		Question:  message,
		Answer:    reply,
		Mode:      adm.Mode,
		Model:     s.inference.Model(),
		CreatedAt: s.clock.Now(),
	}
	if title := strings.TrimSpace(req.NoteTitle); title != "" && strings.TrimSpace(req.NoteContext) != "" {
		msg.NoteTitle = &title
	}
	if err := s.repo.Insert(ctx, s.db, msg); err != nil {
		log.Error("failed to store chat message", zap.String("message_id", msgID.String()), zap.Error(err))
	}

	resp := &domain.AskResponse{
		Reply:     reply,
		MessageID: msgID.String(),
		Mode:      adm.Mode,
	}
	if status, err := s.usage.Status(ctx, userID); err == nil {
		resp.Usage = status
	} else {
		log.Warn("failed to load usage status", zap.Error(err))
	}
	return resp, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]domain.ChatMessage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}

func inferenceFailureReason(ctx context.Context, err error) string {
	switch {
	case ctx.Err() != nil:
		return "canceled"
	case errors.Is(err, domain.ErrInferenceRejected):
		return "rejected"
	case errors.Is(err, domain.ErrEmptyReply):
		return "empty_reply"
	case errors.Is(err, domain.ErrInferenceUnavailable):
		return "unavailable"
	default:
		return "unknown"
	}
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	dayLayout    = "2006-01-02"
	usagePurpose = "usage"
)

type ServiceParam struct {
	fx.In

	Store    ledgerdomain.Store
	Log      *zap.Logger
	Clock    clock.Clock
	Metering *config.MeteringConfigHolder `optional:"true"`
	Metrics  *obsmetrics.Metrics          `optional:"true"`
}

type Service struct {
	store    ledgerdomain.Store
	log      *zap.Logger
	clock    clock.Clock
	metering *config.MeteringConfigHolder
	metrics  *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	metering := p.Metering
	if metering == nil {
		metering = config.NewStaticMeteringConfigHolder(config.DefaultMeteringConfig())
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		store:    p.Store,
		log:      p.Log.Named("usage.service"),
		clock:    clk,
		metering: metering,
		metrics:  p.Metrics,
	}
}

// today returns the calendar day of the free allowance and the configured
// daily limit, both read from the current metering policy.
func (s *Service) today() (string, int64) {
	cfg := s.metering.Get()
	return s.clock.Now().In(cfg.Location()).Format(dayLayout), cfg.FreeDailyLimit
}

func (s *Service) admission(ctx context.Context, userID string) (*usagedomain.Admission, *ledgerdomain.UserCredits, error) {
	day, limit := s.today()
	used, err := s.store.GetDailyUsage(ctx, userID, day)
	if err != nil {
		return nil, nil, err
	}
	credits, err := s.store.GetUserCredits(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	adm := &usagedomain.Admission{
		Day:              day,
		FreeUsedToday:    used,
		FreeDailyLimit:   limit,
		RemainingCredits: credits.RemainingCredits,
	}
	switch {
	case used < limit:
		adm.Mode = usagedomain.ModeFree
	case credits.RemainingCredits > 0:
		adm.Mode = usagedomain.ModePaid
	default:
		adm.Mode = usagedomain.ModeBlocked
	}
	return adm, credits, nil
}

// Check decides whether a metered call may run. It writes nothing.
func (s *Service) Check(ctx context.Context, userID string) (*usagedomain.Admission, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}

	adm, _, err := s.admission(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordUsageAdmission(ctx, string(adm.Mode))
	return adm, nil
}

// Commit charges one unit for a call that completed. Free commits bump the
// daily counter; paid commits consume one credit under the credits lock.
func (s *Service) Commit(ctx context.Context, userID string, mode usagedomain.Mode, reference string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ledgerdomain.ErrInvalidUser
	}
	log := logger.WithUser(logger.WithContext(ctx, s.log), userID)

	var err error
	switch mode {
	case usagedomain.ModeFree:
		err = s.commitFree(ctx, userID)
	case usagedomain.ModePaid:
		err = s.commitPaid(ctx, userID, reference)
	case usagedomain.ModeBlocked:
		return usagedomain.ErrUsageBlocked
	default:
		return usagedomain.ErrInvalidMode
	}

	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
			s.metrics.RecordUsageUncharged(ctx, "credits_exhausted")
			log.Warn("paid usage admitted without remaining credits",
				zap.String("reference", reference),
			)
		}
		return err
	}

	s.metrics.RecordUsageCommit(ctx, string(mode))
	log.Debug("usage committed",
		zap.String("mode", string(mode)),
		zap.String("reference", reference),
	)
	return nil
}

func (s *Service) commitFree(ctx context.Context, userID string) error {
	day, _ := s.today()
	return s.store.Transaction(ctx, func(tx ledgerdomain.Tx) error {
		_, err := tx.IncrementDailyUsage(userID, day)
		return err
	})
}

func (s *Service) commitPaid(ctx context.Context, userID, reference string) error {
	return s.store.WithLockedUserCredits(ctx, userID, func(tx ledgerdomain.Tx, c *ledgerdomain.UserCredits) error {
		if c.RemainingCredits <= 0 {
			return ledgerdomain.ErrInsufficientCredits
		}
		c.UsedCredits++
		c.Recompute()

		entry := &ledgerdomain.CreditUsageHistory{
			UserID:      userID,
			CreditsUsed: 1,
			Purpose:     usagePurpose,
		}
		if ref := strings.TrimSpace(reference); ref != "" {
			entry.ReferenceID = &ref
		}
		return tx.AppendCreditUsage(entry)
	})
}

// Discard releases an admission whose call failed. Nothing was reserved,
// so there is nothing to undo.
func (s *Service) Discard(ctx context.Context, userID string, mode usagedomain.Mode) {
	logger.WithUser(logger.WithContext(ctx, s.log), userID).Debug("usage discarded",
		zap.String("mode", string(mode)),
	)
}

func (s *Service) Status(ctx context.Context, userID string) (*usagedomain.Status, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ledgerdomain.ErrInvalidUser
	}

	adm, credits, err := s.admission(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &usagedomain.Status{
		Admission:     *adm,
		FreeRemaining: adm.FreeRemaining(),
		Credits:       credits,
	}, nil
}

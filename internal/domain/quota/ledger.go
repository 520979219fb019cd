package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/portraitlab/server/internal/model"
	"github.com/portraitlab/server/internal/port/outbound"
	apperrors "github.com/portraitlab/server/internal/utils/errors"
	"github.com/portraitlab/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// DefaultFreeGenerations is the free-tier allowance per period.
const DefaultFreeGenerations = 5

// Config holds ledger configuration.
type Config struct {
	FreeGenerations int
}

// DefaultConfig returns default ledger configuration.
func DefaultConfig() *Config {
	return &Config{FreeGenerations: DefaultFreeGenerations}
}

// Reservation is one unit of quota held between CheckAndReserve and
// Commit or Release.
type Reservation struct {
	UserID    uuid.UUID `json:"user_id"`
	Source    Source    `json:"source"`
	Allowed   bool      `json:"allowed"`
	Allowance int       `json:"allowance"` // -1 for unlimited
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"` // -1 for unlimited

	// PeriodStart is the counter's last reset date when the unit was held.
	// Commit and Release compare it to detect a rollover.
	PeriodStart time.Time `json:"period_start"`
}

// Status is a read view of a user's quota.
type Status struct {
	Source    Source    `json:"source"`
	Allowance int       `json:"allowance"`
	Used      int       `json:"used"`
	Remaining int       `json:"remaining"`
	ResetsAt  time.Time `json:"resets_at"`
}

// Ledger owns the generation counters of users and subscriptions.
type Ledger struct {
	userDB         outbound.UserDatabasePort
	subscriptionDB outbound.SubscriptionDatabasePort
	txPort         outbound.TransactionPort
	clock          Clock
	config         *Config
	metrics        *metrics.Metrics
	logger         *zap.Logger
}

// NewLedger creates a new quota ledger.
func NewLedger(
	userDB outbound.UserDatabasePort,
	subscriptionDB outbound.SubscriptionDatabasePort,
	txPort outbound.TransactionPort,
	clock Clock,
	config *Config,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Ledger{
		userDB:         userDB,
		subscriptionDB: subscriptionDB,
		txPort:         txPort,
		clock:          clock,
		config:         config,
		metrics:        m,
		logger:         logger,
	}
}

// CheckAndReserve decides whether the user may generate one more image and,
// if so, holds the unit by incrementing the counter. A denied request leaves
// the counter untouched apart from a due rollover.
func (l *Ledger) CheckAndReserve(ctx context.Context, userID uuid.UUID) (*Reservation, error) {
	var res *Reservation
	err := l.inTx(ctx, func(txCtx context.Context) error {
		c, err := l.lockCounter(txCtx, userID)
		if err != nil {
			return err
		}
		l.rollover(c)

		res = &Reservation{
			UserID:    userID,
			Source:    c.source,
			Allowance: c.allowance,
		}
		if !c.unlimited() && c.used >= c.allowance {
			res.Used = c.used
			res.Remaining = 0
			return l.saveIfDirty(txCtx, c)
		}

		c.used++
		c.dirty = true
		res.Allowed = true
		res.Used = c.used
		res.Remaining = c.remaining()
		res.PeriodStart = c.lastReset
		return l.saveIfDirty(txCtx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("reserve quota: %w", err)
	}

	l.metrics.RecordQuotaDecision(res.Source.String(), res.Allowed)
	if !res.Allowed {
		l.logger.Info("quota exhausted",
			zap.String("user_id", userID.String()),
			zap.String("source", res.Source.String()),
			zap.Int("allowance", res.Allowance),
			zap.Int("used", res.Used),
		)
	}
	return res, nil
}

// Commit finalises a reservation. It must run inside the transaction that
// records the generation. If the counter rolled over since the unit was held,
// the unit is charged again to the new period while it has room; otherwise
// it stays counted against the period it was reserved in.
func (l *Ledger) Commit(txCtx context.Context, res *Reservation) error {
	if res == nil || !res.Allowed {
		return ErrReservationNotHeld
	}

	c, err := l.lockCounterFor(txCtx, res)
	if err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	if c == nil {
		l.logger.Warn("reservation counter vanished before commit",
			zap.String("user_id", res.UserID.String()),
			zap.String("source", res.Source.String()),
		)
		return nil
	}

	l.rollover(c)
	if !c.lastReset.Equal(res.PeriodStart) {
		if c.unlimited() || c.used < c.allowance {
			c.used++
			c.dirty = true
			l.logger.Debug("re-charged reservation after rollover",
				zap.String("user_id", res.UserID.String()),
				zap.String("source", res.Source.String()),
			)
		} else {
			l.logger.Info("new period full, reservation kept on its original period",
				zap.String("user_id", res.UserID.String()),
				zap.String("source", res.Source.String()),
				zap.Time("reserved_period", res.PeriodStart),
			)
		}
	}
	if err := l.saveIfDirty(txCtx, c); err != nil {
		return fmt.Errorf("commit reservation: %w", err)
	}
	return nil
}

// Release returns a held unit after the generation failed. It is a no-op
// when the counter rolled over since, because the reset already dropped it.
func (l *Ledger) Release(ctx context.Context, res *Reservation) error {
	if res == nil || !res.Allowed {
		return nil
	}

	var released bool
	err := l.inTx(ctx, func(txCtx context.Context) error {
		released = false
		c, err := l.lockCounterFor(txCtx, res)
		if err != nil || c == nil {
			return err
		}
		l.rollover(c)
		if c.lastReset.Equal(res.PeriodStart) && c.used > 0 {
			c.used--
			c.dirty = true
			released = true
		}
		return l.saveIfDirty(txCtx, c)
	})
	if err != nil {
		return fmt.Errorf("release reservation: %w", err)
	}

	l.metrics.RecordQuotaRelease(res.Source.String(), released)
	return nil
}

// Status returns the user's current quota, applying any due rollover.
func (l *Ledger) Status(ctx context.Context, userID uuid.UUID) (*Status, error) {
	var st *Status
	err := l.inTx(ctx, func(txCtx context.Context) error {
		c, err := l.lockCounter(txCtx, userID)
		if err != nil {
			return err
		}
		l.rollover(c)
		st = &Status{
			Source:    c.source,
			Allowance: c.allowance,
			Used:      c.used,
			Remaining: c.remaining(),
			ResetsAt:  c.resetsAt(),
		}
		return l.saveIfDirty(txCtx, c)
	})
	if err != nil {
		return nil, fmt.Errorf("quota status: %w", err)
	}
	return st, nil
}

// inTx runs fn in a transaction and retries it once on a store conflict.
func (l *Ledger) inTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	err := l.txPort.RunInTransaction(ctx, fn)
	if err != nil && errors.Is(err, apperrors.ErrConflict) {
		l.metrics.RecordQuotaRetry()
		l.logger.Debug("retrying quota transaction after conflict", zap.Error(err))
		err = l.txPort.RunInTransaction(ctx, fn)
	}
	return err
}

// --- Counter handling ---

// counter is a locked quota row, either a subscription or a user's free tier.
type counter struct {
	source    Source
	userID    uuid.UUID
	subID     uuid.UUID
	allowance int
	used      int
	lastReset time.Time

	// subscription boundaries, zero for the free tier
	periodStart time.Time
	periodEnd   time.Time

	now   time.Time
	dirty bool
}

func (c *counter) unlimited() bool {
	return c.allowance == model.UnlimitedGenerations
}

func (c *counter) remaining() int {
	if c.unlimited() {
		return model.UnlimitedGenerations
	}
	return max(c.allowance-c.used, 0)
}

func (c *counter) resetsAt() time.Time {
	if c.source == SourceSubscription {
		return c.periodEnd
	}
	return NextFreeReset(c.lastReset)
}

// lockCounter locks the counter that pays for userID's generations.
// Only an active subscription with a known plan supplies the allowance;
// anything else falls back to the user's free counter.
func (l *Ledger) lockCounter(txCtx context.Context, userID uuid.UUID) (*counter, error) {
	sub, err := l.subscriptionDB.LockByUserID(txCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock subscription: %w", err)
	}
	if sub != nil && sub.IsActive() {
		if sub.Plan != nil {
			return l.subscriptionCounter(sub), nil
		}
		l.logger.Warn("active subscription without plan, using free allowance",
			zap.String("user_id", userID.String()),
			zap.String("plan_id", sub.PlanID),
		)
	}
	return l.lockFreeCounter(txCtx, userID)
}

// lockCounterFor locks the counter a reservation was taken from.
// Returns nil if that counter no longer exists.
func (l *Ledger) lockCounterFor(txCtx context.Context, res *Reservation) (*counter, error) {
	if res.Source == SourceSubscription {
		sub, err := l.subscriptionDB.LockByUserID(txCtx, res.UserID)
		if err != nil {
			return nil, fmt.Errorf("lock subscription: %w", err)
		}
		if sub == nil {
			return nil, nil
		}
		return l.subscriptionCounter(sub), nil
	}
	return l.lockFreeCounter(txCtx, res.UserID)
}

func (l *Ledger) lockFreeCounter(txCtx context.Context, userID uuid.UUID) (*counter, error) {
	user, err := l.userDB.LockByID(txCtx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return &counter{
		source:    SourceFree,
		userID:    user.ID,
		allowance: l.config.FreeGenerations,
		used:      user.GenerationsUsed,
		lastReset: user.LastResetDate,
		now:       l.now(),
	}, nil
}

func (l *Ledger) subscriptionCounter(sub *model.Subscription) *counter {
	allowance := 0
	if sub.Plan != nil {
		allowance = sub.Plan.Generations
	}
	return &counter{
		source:      SourceSubscription,
		userID:      sub.UserID,
		subID:       sub.ID,
		allowance:   allowance,
		used:        sub.GenerationsUsed,
		lastReset:   sub.LastResetDate,
		periodStart: sub.CurrentPeriodStart,
		periodEnd:   sub.CurrentPeriodEnd,
		now:         l.now(),
	}
}

// now returns the clock time at the store's timestamp precision, so reset
// dates compare equal after a round trip.
func (l *Ledger) now() time.Time {
	return l.clock.Now().Truncate(time.Microsecond)
}

// rollover zeroes the counter when its period is over.
func (l *Ledger) rollover(c *counter) {
	var (
		last  time.Time
		reset bool
	)
	switch c.source {
	case SourceSubscription:
		last, reset = RolloverSubscription(&model.Subscription{
			CurrentPeriodStart: c.periodStart,
			CurrentPeriodEnd:   c.periodEnd,
			LastResetDate:      c.lastReset,
		}, c.now)
	default:
		last, reset = RolloverFree(c.lastReset, c.now)
	}
	if !reset {
		return
	}

	if !c.lastReset.IsZero() {
		l.metrics.RecordQuotaReset(c.source.String())
		l.logger.Debug("quota period rolled over",
			zap.String("user_id", c.userID.String()),
			zap.String("source", c.source.String()),
			zap.Int("previous_used", c.used),
		)
	}
	c.used = 0
	c.lastReset = last
	c.dirty = true
}

func (l *Ledger) saveIfDirty(txCtx context.Context, c *counter) error {
	if !c.dirty {
		return nil
	}
	var err error
	if c.source == SourceSubscription {
		err = l.subscriptionDB.UpdateCounters(txCtx, c.subID, c.used, c.lastReset)
	} else {
		err = l.userDB.UpdateFreeCounters(txCtx, c.userID, c.used, c.lastReset)
	}
	if err != nil {
		return fmt.Errorf("save %s counter: %w", c.source, err)
	}
	c.dirty = false
	return nil
}

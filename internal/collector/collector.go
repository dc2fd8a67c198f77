// Package collector runs one options collection pass: select expirations,
// fetch chains, shape rows, store the batch and report the outcome by email.
package collector

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/eddiefleurent/spy_options_collector/internal/config"
	"github.com/eddiefleurent/spy_options_collector/internal/expiry"
	"github.com/eddiefleurent/spy_options_collector/internal/marketdata"
	"github.com/eddiefleurent/spy_options_collector/internal/models"
	"github.com/eddiefleurent/spy_options_collector/internal/notify"
	"github.com/eddiefleurent/spy_options_collector/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Status email subjects
const (
	SubjectNoData         = "SDC Update: Date has no data"
	SubjectStored         = "SDC Update: Data successfully stored for: "
	SubjectNothingStored  = "SDC Update: No data stored"
	SubjectFetchFailed    = "SDC Update: Failed to retrieve data"
	SubjectShapeFailed    = "SDC Update: Failed to shape data"
	SubjectDatabaseFailed = "SDC Update: Failed to connect to database"
	SubjectInsertFailed   = "SDC Update: Failed to insert data"
)

// Result summarizes a finished run.
type Result struct {
	RunID          string
	QuoteTimestamp string
	Expirations    []string
	Gaps           []string
	Fetched        int
	Stored         int
	State          models.RunState
}

// Collector wires the pipeline stages together. Every collaborator is injected.
type Collector struct {
	cfg       *config.Config
	chains    marketdata.ChainClient
	openStore storage.Opener
	notifier  notify.Notifier
	logger    *logrus.Logger
	now       func() time.Time
}

// Option customizes a Collector
type Option func(*Collector)

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a collector.
func New(cfg *config.Config, chains marketdata.ChainClient, openStore storage.Opener,
	notifier notify.Notifier, logger *logrus.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	c := &Collector{
		cfg:       cfg,
		chains:    chains,
		openStore: openStore,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runContext carries per-run state through the stages
type runContext struct {
	ctx context.Context
	// notifyCtx outlives cancellation so failures can still be reported
	notifyCtx context.Context
	// finalCtx carries the closing status email past an open mail breaker
	finalCtx context.Context
	log      *logrus.Entry
	sm       *models.RunStateMachine
	result   *Result
}

// Run executes one pass. A returned error has already been reported through the
// notifier; the Result is always non-nil and carries the final state.
func (c *Collector) Run(ctx context.Context) (*Result, error) {
	rc := &runContext{
		ctx:       ctx,
		notifyCtx: context.WithoutCancel(ctx),
		sm:        models.NewRunStateMachine(),
		result:    &Result{RunID: uuid.New().String()},
	}
	rc.finalCtx = notify.Final(rc.notifyCtx)
	rc.log = c.logger.WithField("run_id", rc.result.RunID)
	defer func() { rc.result.State = rc.sm.Current() }()

	if err := ctx.Err(); err != nil {
		return rc.result, c.fail(rc, models.ConditionRunCancelled, SubjectFetchFailed, err.Error(), err)
	}

	today := c.now()
	rc.result.Expirations = expiry.Select(today, c.cfg.HorizonDays, c.cfg.Weekdays())
	if err := c.advance(rc, models.StateFetching, models.ConditionStartFetch); err != nil {
		return rc.result, err
	}
	rc.log.WithFields(logrus.Fields{
		"symbol":      c.cfg.Symbol,
		"expirations": rc.result.Expirations,
	}).Info("Fetching option chains")

	records, err := marketdata.FetchChains(ctx, c.chains, c.cfg.Symbol, rc.result.Expirations, func(exp string) {
		rc.result.Gaps = append(rc.result.Gaps, exp)
		rc.log.WithField("expiration", exp).Warn("No option data for expiration")
		c.notifier.Notify(rc.notifyCtx, SubjectNoData, exp)
	})
	if err != nil {
		return rc.result, c.fail(rc, models.ConditionFetchFailed, SubjectFetchFailed, c.describe(rc, err.Error()), err)
	}
	rc.result.Fetched = len(records)

	if len(records) == 0 {
		if err := c.advance(rc, models.StateDone, models.ConditionNoData); err != nil {
			return rc.result, err
		}
		c.notifier.Notify(rc.finalCtx, SubjectNothingStored,
			c.describe(rc, fmt.Sprintf("no contracts returned for %v", rc.result.Expirations)))
		return rc.result, nil
	}

	if err := c.advance(rc, models.StateShaping, models.ConditionFetched); err != nil {
		return rc.result, err
	}
	rows, err := Shape(records, c.now())
	if err != nil {
		return rc.result, c.fail(rc, models.ConditionShapeFailed, SubjectShapeFailed, c.describe(rc, err.Error()), err)
	}
	rc.result.QuoteTimestamp = rows[0].QuoteTimestamp

	if err := c.advance(rc, models.StateStoring, models.ConditionShaped); err != nil {
		return rc.result, err
	}
	if err := c.store(rc, rows); err != nil {
		return rc.result, err
	}
	rc.result.Stored = len(rows)

	if err := c.advance(rc, models.StateDone, models.ConditionStored); err != nil {
		return rc.result, err
	}
	rc.log.WithFields(logrus.Fields{
		"rows":            len(rows),
		"quote_timestamp": rc.result.QuoteTimestamp,
	}).Info("Option chains stored")
	c.notifier.Notify(rc.finalCtx, SubjectStored+rc.result.QuoteTimestamp,
		c.describe(rc, fmt.Sprintf("%d rows stored\nsample: %s", len(rows), rows[0])))
	return rc.result, nil
}

// store opens the database, ensures the schema and inserts the batch. The
// connection is released on every path.
func (c *Collector) store(rc *runContext, rows []models.OptionRow) error {
	st, err := c.openStore(c.cfg.DBFilepath)
	if err != nil {
		return c.fail(rc, models.ConditionStoreFailed, SubjectDatabaseFailed, c.describe(rc, err.Error()), err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			rc.log.WithError(cerr).Warn("Failed to close database")
		}
	}()

	if err := st.EnsureSchema(rc.ctx); err != nil {
		return c.fail(rc, models.ConditionStoreFailed, SubjectDatabaseFailed, c.describe(rc, err.Error()), err)
	}
	if err := st.InsertBatch(rc.ctx, rows); err != nil {
		body := fmt.Sprintf("%s\nsample: %s", err.Error(), rows[0])
		return c.fail(rc, models.ConditionStoreFailed, SubjectInsertFailed, c.describe(rc, body), err)
	}
	return nil
}

// advance moves the state machine forward and logs the new state
func (c *Collector) advance(rc *runContext, to models.RunState, condition string) error {
	if err := rc.sm.Transition(to, condition); err != nil {
		return fmt.Errorf("run %s: %w", rc.result.RunID, err)
	}
	rc.log.WithField("state", to).Debug("Run state changed")
	return nil
}

// fail reports the error by email and moves the run into error_reported
func (c *Collector) fail(rc *runContext, condition, subject, body string, cause error) error {
	rc.log.WithError(cause).WithField("state", rc.sm.Current()).Error(subject)
	c.notifier.Notify(rc.finalCtx, subject, body)
	if err := rc.sm.Transition(models.StateErrorReported, condition); err != nil {
		rc.log.WithError(err).Error("Unexpected state transition")
	}
	return cause
}

// describe appends the run identifier to an email body
func (c *Collector) describe(rc *runContext, body string) string {
	return fmt.Sprintf("%s\n\nsymbol: %s\nrun: %s", body, c.cfg.Symbol, rc.result.RunID)
}

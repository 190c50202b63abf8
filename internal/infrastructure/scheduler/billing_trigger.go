package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
)

// ErrInvalidSchedule is returned for schedules the trigger cannot parse
var ErrInvalidSchedule = errors.New("invalid billing schedule")

// BillingRunner issues rent invoices for one billing period
type BillingRunner interface {
	GenerateForPeriod(ctx context.Context, periodStart time.Time, dueDays int) (*ledgerapp.BillingRunReport, error)
}

// billingSchedule is a cron-style "minute hour day-of-month * *" mark.
// Rent billing is monthly, so the last two fields must stay wildcards.
type billingSchedule struct {
	minute     int
	hour       int
	dayOfMonth int
}

func parseBillingSchedule(spec string) (billingSchedule, error) {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return billingSchedule{}, fmt.Errorf("%w: %q needs 5 fields", ErrInvalidSchedule, spec)
	}
	if fields[3] != "*" || fields[4] != "*" {
		return billingSchedule{}, fmt.Errorf("%w: %q, month and weekday must be *", ErrInvalidSchedule, spec)
	}

	minute, err := parseScheduleField(fields[0], 0, 59)
	if err != nil {
		return billingSchedule{}, fmt.Errorf("%w: minute in %q", ErrInvalidSchedule, spec)
	}
	hour, err := parseScheduleField(fields[1], 0, 23)
	if err != nil {
		return billingSchedule{}, fmt.Errorf("%w: hour in %q", ErrInvalidSchedule, spec)
	}
	day, err := parseScheduleField(fields[2], 1, 28)
	if err != nil {
		return billingSchedule{}, fmt.Errorf("%w: day of month in %q must be 1-28", ErrInvalidSchedule, spec)
	}

	return billingSchedule{minute: minute, hour: hour, dayOfMonth: day}, nil
}

func parseScheduleField(field string, min, max int) (int, error) {
	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, err
	}
	if n < min || n > max {
		return 0, fmt.Errorf("value %d out of range [%d,%d]", n, min, max)
	}
	return n, nil
}

func (s billingSchedule) matches(t time.Time) bool {
	return t.Day() == s.dayOfMonth && t.Hour() == s.hour && t.Minute() == s.minute
}

// BillingTrigger fires the monthly invoice run when the wall clock hits the
// configured schedule. It checks once a minute and remembers the last period
// it ran for, so a restart inside the trigger minute does not double-issue
// (GenerateForPeriod is idempotent regardless).
type BillingTrigger struct {
	runner        BillingRunner
	schedule      billingSchedule
	dueDays       int
	checkInterval time.Duration
	logger        *zap.Logger

	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.Mutex
	isRunning    bool
	lastRunMonth string
}

// NewBillingTrigger creates a trigger from a cron-style schedule such as
// "0 6 1 * *" (06:00 on the first of every month)
func NewBillingTrigger(runner BillingRunner, spec string, dueDays int, logger *zap.Logger) (*BillingTrigger, error) {
	schedule, err := parseBillingSchedule(spec)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingTrigger{
		runner:        runner,
		schedule:      schedule,
		dueDays:       dueDays,
		checkInterval: time.Minute,
		logger:        logger,
	}, nil
}

// Start begins the schedule watch loop
func (t *BillingTrigger) Start(ctx context.Context) {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return
	}
	t.isRunning = true
	t.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	t.wg.Add(1)
	go t.loop(ctx)

	t.logger.Info("billing trigger started",
		zap.Int("day_of_month", t.schedule.dayOfMonth),
		zap.Int("hour", t.schedule.hour),
		zap.Int("minute", t.schedule.minute))
}

// Stop halts the watch loop and waits for an in-flight run to finish
func (t *BillingTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("billing trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *BillingTrigger) loop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.checkAndRun(ctx, time.Now())
		}
	}
}

func (t *BillingTrigger) checkAndRun(ctx context.Context, now time.Time) {
	if !t.schedule.matches(now) {
		return
	}

	month := now.Format("2006-01")
	t.mu.Lock()
	if t.lastRunMonth == month {
		t.mu.Unlock()
		return
	}
	t.lastRunMonth = month
	t.mu.Unlock()

	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	t.logger.Info("starting monthly billing run", zap.Time("period_start", periodStart))

	report, err := t.runner.GenerateForPeriod(ctx, periodStart, t.dueDays)
	if err != nil {
		t.logger.Error("monthly billing run failed", zap.Error(err))
		return
	}
	t.logger.Info("monthly billing run finished",
		zap.Int("issued", report.Issued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failed)))
}

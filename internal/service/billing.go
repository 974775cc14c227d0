package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/metrics"
	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/notify"
)

// InvoiceStore is the invoice persistence slice billing drives.
type InvoiceStore interface {
	CreateWithLines(ctx context.Context, inv *models.Invoice) error
	GetByID(ctx context.Context, id string) (*models.Invoice, error)
	ExistsForPeriod(ctx context.Context, subscriptionID string, periodStart time.Time) (bool, error)
	ListDraftAutoAdvance(ctx context.Context, limit int) ([]*models.Invoice, error)
	ListOpenAutoCharge(ctx context.Context, limit int) ([]*models.Invoice, error)
	MarkOpen(ctx context.Context, id string, finalizedAt time.Time) error
	MarkPaid(ctx context.Context, id string, paidAt time.Time, amountPaid int64) error
	MarkPastDue(ctx context.Context, id, failureCode, failureMessage string) error
	MarkUncollectible(ctx context.Context, id string) error
}

type SubscriptionStore interface {
	GetByID(ctx context.Context, id string) (*models.Subscription, error)
	ListRenewalCandidates(ctx context.Context, until time.Time, limit int) ([]*models.Subscription, error)
	ListTrialReminderDue(ctx context.Context, until time.Time, limit int) ([]*models.Subscription, error)
	ListTrialEnded(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	ListCancellationDue(ctx context.Context, now time.Time, limit int) ([]*models.Subscription, error)
	UpdateStatus(ctx context.Context, id string, status models.SubscriptionStatus) error
	AdvancePeriod(ctx context.Context, id string, start, end time.Time) error
	MarkTrialReminderSent(ctx context.Context, id string) error
	MarkUnpaid(ctx context.Context, id string, canceledAt time.Time) error
	MarkCanceled(ctx context.Context, id string, endedAt time.Time) error
	ListItems(ctx context.Context, subscriptionID string) ([]*models.SubscriptionItem, error)
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
}

type JobStore interface {
	Create(ctx context.Context, job *models.BillingJob) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.BillingJob, error)
	MarkCompleted(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, attempts int, nextRun time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, attempts int, lastError string) error
}

// Charger is the charge processor as billing sees it.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeOutcome, error)
}

// BillingService drives the invoice/subscription state machine on a fixed
// external cadence. Every scan is idempotent under duplicate invocation.
type BillingService struct {
	invoices    InvoiceStore
	subs        SubscriptionStore
	jobs        JobStore
	charger     Charger
	email       notify.EmailSender
	environment string
	batchSize   int
	logger      *zap.Logger

	now func() time.Time
}

func NewBillingService(invoices InvoiceStore, subs SubscriptionStore, jobs JobStore, charger Charger, email notify.EmailSender, environment string, logger *zap.Logger) *BillingService {
	return &BillingService{
		invoices:    invoices,
		subs:        subs,
		jobs:        jobs,
		charger:     charger,
		email:       email,
		environment: environment,
		batchSize:   50,
		logger:      logger,
		now:         time.Now,
	}
}

// RunAll executes every scan once. Scan failures are isolated: one scan's
// error never aborts the others.
func (s *BillingService) RunAll(ctx context.Context) {
	scans := []struct {
		name string
		fn   func(context.Context) (int, error)
	}{
		{"generate_invoices", s.GenerateInvoices},
		{"finalize_invoices", s.FinalizeInvoices},
		{"charge_invoices", s.ChargeInvoices},
		{"process_retries", s.ProcessRetries},
		{"trial_reminders", s.SendTrialReminders},
		{"end_trials", s.EndTrials},
		{"expire_cancellations", s.ExpireCancellations},
	}

	for _, scan := range scans {
		count, err := scan.fn(ctx)
		if err != nil {
			s.logger.Error("billing scan failed", zap.String("scan", scan.name), zap.Error(err))
			continue
		}
		if count > 0 {
			s.logger.Info("billing scan complete", zap.String("scan", scan.name), zap.Int("items", count))
		}
	}
}

// GenerateInvoices drafts an invoice for each billable subscription whose
// period ends within 24 hours, once per period.
func (s *BillingService) GenerateInvoices(ctx context.Context) (int, error) {
	now := s.now()
	candidates, err := s.subs.ListRenewalCandidates(ctx, now.Add(24*time.Hour), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list renewal candidates: %w", err)
	}

	generated := 0
	for _, sub := range candidates {
		created, err := s.generateInvoice(ctx, sub)
		if err != nil {
			metrics.BillingScanItems.WithLabelValues("generate_invoices", "error").Inc()
			s.logger.Error("invoice generation failed",
				zap.String("subscription_id", sub.ID),
				zap.Error(err))
			continue
		}
		if !created {
			continue
		}
		metrics.BillingScanItems.WithLabelValues("generate_invoices", "ok").Inc()
		generated++
	}
	return generated, nil
}

// generateInvoice drafts one invoice for the subscription's current period.
// It reports false without error on the skip paths: the period is already
// invoiced, or the subscription has nothing to bill.
func (s *BillingService) generateInvoice(ctx context.Context, sub *models.Subscription) (bool, error) {
	exists, err := s.invoices.ExistsForPeriod(ctx, sub.ID, sub.CurrentPeriodStart)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	items, err := s.subs.ListItems(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		return false, nil
	}

	now := s.now()
	inv := &models.Invoice{
		ID:               uuid.New().String(),
		TenantID:         sub.TenantID,
		CustomerID:       sub.CustomerID,
		SubscriptionID:   sub.ID,
		Status:           models.InvoiceStatusDraft,
		CollectionMethod: models.CollectChargeAutomatically,
		Currency:         sub.Currency,
		AutoAdvance:      true,
		PeriodStart:      sub.CurrentPeriodStart,
		PeriodEnd:        sub.CurrentPeriodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, item := range items {
		amount := item.UnitAmount * item.Quantity
		inv.Lines = append(inv.Lines, &models.InvoiceLineItem{
			ID:          uuid.New().String(),
			InvoiceID:   inv.ID,
			Description: item.Description,
			UnitAmount:  item.UnitAmount,
			Quantity:    item.Quantity,
			Amount:      amount,
			CreatedAt:   now,
		})
		inv.Subtotal += amount
	}

	// Tax is not modeled; total equals subtotal.
	inv.Total = inv.Subtotal + inv.Tax
	inv.AmountRemaining = inv.Total - inv.AmountPaid

	if err := s.invoices.CreateWithLines(ctx, inv); err != nil {
		return false, err
	}
	return true, nil
}

// FinalizeInvoices moves auto-advance drafts to open and notifies the
// customer.
func (s *BillingService) FinalizeInvoices(ctx context.Context) (int, error) {
	drafts, err := s.invoices.ListDraftAutoAdvance(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list draft invoices: %w", err)
	}

	finalized := 0
	for _, inv := range drafts {
		if err := s.invoices.MarkOpen(ctx, inv.ID, s.now()); err != nil {
			metrics.BillingScanItems.WithLabelValues("finalize_invoices", "error").Inc()
			s.logger.Error("invoice finalization failed", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		s.sendEmail(ctx, notify.EmailInvoiceCreated, map[string]string{
			"invoice_id":  inv.ID,
			"customer_id": inv.CustomerID,
		})
		metrics.BillingScanItems.WithLabelValues("finalize_invoices", "ok").Inc()
		finalized++
	}
	return finalized, nil
}

// ChargeInvoices collects open auto-charge invoices through the charge
// processor.
func (s *BillingService) ChargeInvoices(ctx context.Context) (int, error) {
	open, err := s.invoices.ListOpenAutoCharge(ctx, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list open invoices: %w", err)
	}

	charged := 0
	for _, inv := range open {
		if err := s.chargeInvoice(ctx, inv, inv.ID+"_initial"); err != nil {
			metrics.BillingScanItems.WithLabelValues("charge_invoices", "error").Inc()
			s.logger.Error("invoice charge failed", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		metrics.BillingScanItems.WithLabelValues("charge_invoices", "ok").Inc()
		charged++
	}
	return charged, nil
}

// chargeInvoice runs one collection try for an open invoice and applies
// the resulting state transitions.
func (s *BillingService) chargeInvoice(ctx context.Context, inv *models.Invoice, idempotencyKey string) error {
	token, err := s.resolveToken(ctx, inv)
	if err != nil {
		return err
	}
	if token == "" {
		// Nothing to charge against; no PSP call, no retry job.
		return s.invoices.MarkPastDue(ctx, inv.ID, "no_payment_method", "customer has no default payment method")
	}

	outcome, err := s.charger.Charge(ctx, ChargeRequest{
		TenantID:       inv.TenantID,
		Token:          token,
		Amount:         inv.AmountRemaining,
		Currency:       inv.Currency,
		Environment:    s.environment,
		IdempotencyKey: idempotencyKey,
		InvoiceID:      inv.ID,
		SubscriptionID: inv.SubscriptionID,
		Description:    "subscription renewal",
	})
	if err != nil {
		return err
	}

	if outcome.Success {
		return s.applyPayment(ctx, inv)
	}
	return s.applyChargeFailure(ctx, inv, outcome)
}

func (s *BillingService) resolveToken(ctx context.Context, inv *models.Invoice) (string, error) {
	if inv.SubscriptionID != "" {
		sub, err := s.subs.GetByID(ctx, inv.SubscriptionID)
		if err != nil {
			return "", err
		}
		if sub != nil && sub.DefaultToken != "" {
			return sub.DefaultToken, nil
		}
	}

	customer, err := s.subs.GetCustomer(ctx, inv.CustomerID)
	if err != nil {
		return "", err
	}
	if customer == nil {
		return "", nil
	}
	return customer.DefaultToken, nil
}

func (s *BillingService) applyPayment(ctx context.Context, inv *models.Invoice) error {
	now := s.now()
	if err := s.invoices.MarkPaid(ctx, inv.ID, now, inv.Total); err != nil {
		return err
	}

	if inv.SubscriptionID != "" {
		sub, err := s.subs.GetByID(ctx, inv.SubscriptionID)
		if err != nil {
			return err
		}
		if sub != nil {
			start, end := sub.AdvancePeriod()
			if err := s.subs.AdvancePeriod(ctx, sub.ID, start, end); err != nil {
				return err
			}
		}
	}

	s.sendEmail(ctx, notify.EmailPaymentReceipt, map[string]string{
		"invoice_id":  inv.ID,
		"customer_id": inv.CustomerID,
	})
	return nil
}

func (s *BillingService) applyChargeFailure(ctx context.Context, inv *models.Invoice, outcome *ChargeOutcome) error {
	if err := s.invoices.MarkPastDue(ctx, inv.ID, outcome.FailureCode, outcome.FailureMessage); err != nil {
		return err
	}
	if inv.SubscriptionID != "" {
		if err := s.subs.UpdateStatus(ctx, inv.SubscriptionID, models.SubStatusPastDue); err != nil {
			return err
		}
	}

	now := s.now()
	job := &models.BillingJob{
		ID:           uuid.New().String(),
		TenantID:     inv.TenantID,
		JobType:      models.JobTypeRetryPayment,
		TargetID:     inv.ID,
		ScheduledFor: now.Add(models.RetryOffsets[1]),
		Status:       models.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return err
	}

	s.sendEmail(ctx, notify.EmailPaymentFailed, map[string]string{
		"invoice_id":     inv.ID,
		"customer_id":    inv.CustomerID,
		"failure_reason": outcome.FailureMessage,
	})
	return nil
}

// ProcessRetries re-collects past_due invoices on the fixed dunning
// schedule. The 5th failure exhausts the schedule: the invoice goes
// uncollectible and the subscription is ended as unpaid.
func (s *BillingService) ProcessRetries(ctx context.Context) (int, error) {
	due, err := s.jobs.ListDue(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due jobs: %w", err)
	}

	processed := 0
	for _, job := range due {
		if err := s.processRetry(ctx, job); err != nil {
			metrics.BillingScanItems.WithLabelValues("process_retries", "error").Inc()
			s.logger.Error("retry job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		metrics.BillingScanItems.WithLabelValues("process_retries", "ok").Inc()
		processed++
	}
	return processed, nil
}

func (s *BillingService) processRetry(ctx context.Context, job *models.BillingJob) error {
	inv, err := s.invoices.GetByID(ctx, job.TargetID)
	if err != nil {
		return err
	}
	if inv == nil || inv.Status == models.InvoiceStatusPaid || inv.Status == models.InvoiceStatusVoid {
		return s.jobs.MarkCompleted(ctx, job.ID)
	}

	token, err := s.resolveToken(ctx, inv)
	if err != nil {
		return err
	}

	var outcome *ChargeOutcome
	if token == "" {
		outcome = &ChargeOutcome{FailureCode: "no_payment_method", FailureMessage: "customer has no default payment method"}
	} else {
		// Fresh idempotency key per scheduled retry: each one is its own
		// at-most-once operation at the PSP.
		outcome, err = s.charger.Charge(ctx, ChargeRequest{
			TenantID:       inv.TenantID,
			Token:          token,
			Amount:         inv.AmountRemaining,
			Currency:       inv.Currency,
			Environment:    s.environment,
			IdempotencyKey: fmt.Sprintf("inv_%s_try%d", inv.ID, job.Attempts+1),
			InvoiceID:      inv.ID,
			SubscriptionID: inv.SubscriptionID,
			Description:    "subscription renewal retry",
		})
		if err != nil {
			return err
		}
	}

	if outcome.Success {
		if err := s.invoices.MarkPaid(ctx, inv.ID, s.now(), inv.Total); err != nil {
			return err
		}
		if inv.SubscriptionID != "" {
			if err := s.subs.UpdateStatus(ctx, inv.SubscriptionID, models.SubStatusActive); err != nil {
				return err
			}
		}
		s.sendEmail(ctx, notify.EmailPaymentReceipt, map[string]string{
			"invoice_id":  inv.ID,
			"customer_id": inv.CustomerID,
		})
		return s.jobs.MarkCompleted(ctx, job.ID)
	}

	attempts := job.Attempts + 1
	nextOffset := attempts + 1
	if nextOffset < len(models.RetryOffsets) {
		return s.jobs.Reschedule(ctx, job.ID, attempts,
			s.now().Add(models.RetryOffsets[nextOffset]), outcome.FailureMessage)
	}

	// Schedule exhausted.
	if err := s.invoices.MarkUncollectible(ctx, inv.ID); err != nil {
		return err
	}
	if inv.SubscriptionID != "" {
		if err := s.subs.MarkUnpaid(ctx, inv.SubscriptionID, s.now()); err != nil {
			return err
		}
	}
	s.sendEmail(ctx, notify.EmailSubCanceled, map[string]string{
		"invoice_id":      inv.ID,
		"customer_id":     inv.CustomerID,
		"subscription_id": inv.SubscriptionID,
	})
	return s.jobs.MarkFailed(ctx, job.ID, attempts, outcome.FailureMessage)
}

// SendTrialReminders warns trialing customers three days before trial end,
// once.
func (s *BillingService) SendTrialReminders(ctx context.Context) (int, error) {
	due, err := s.subs.ListTrialReminderDue(ctx, s.now().Add(72*time.Hour), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list trial reminders: %w", err)
	}

	sent := 0
	for _, sub := range due {
		if err := s.subs.MarkTrialReminderSent(ctx, sub.ID); err != nil {
			s.logger.Error("trial reminder flag update failed", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		s.sendEmail(ctx, notify.EmailTrialReminder, map[string]string{
			"subscription_id": sub.ID,
			"customer_id":     sub.CustomerID,
		})
		sent++
	}
	return sent, nil
}

// EndTrials flips trialing subscriptions to active once the trial passes.
func (s *BillingService) EndTrials(ctx context.Context) (int, error) {
	ended, err := s.subs.ListTrialEnded(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list ended trials: %w", err)
	}

	flipped := 0
	for _, sub := range ended {
		if err := s.subs.UpdateStatus(ctx, sub.ID, models.SubStatusActive); err != nil {
			s.logger.Error("trial end transition failed", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		flipped++
	}
	return flipped, nil
}

// ExpireCancellations finalizes cancel-at-period-end subscriptions whose
// period has actually ended.
func (s *BillingService) ExpireCancellations(ctx context.Context) (int, error) {
	due, err := s.subs.ListCancellationDue(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due cancellations: %w", err)
	}

	canceled := 0
	for _, sub := range due {
		if err := s.subs.MarkCanceled(ctx, sub.ID, s.now()); err != nil {
			s.logger.Error("cancellation transition failed", zap.String("subscription_id", sub.ID), zap.Error(err))
			continue
		}
		canceled++
	}
	return canceled, nil
}

func (s *BillingService) sendEmail(ctx context.Context, kind notify.EmailKind, data map[string]string) {
	if err := s.email.Send(ctx, kind, data); err != nil {
		s.logger.Warn("email send failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

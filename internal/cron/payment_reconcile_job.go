package cron

import (
	"context"
	"fmt"

	"github.com/j1myx/kiwishaproject/pkg/logger"
)

// paymentSweeper reconciles every open payment intent against the gateway.
type paymentSweeper interface {
	ReconcilePending(ctx context.Context, limit int) (int, error)
}

// PaymentReconcileJobParams configure the payment reconciliation job.
type PaymentReconcileJobParams struct {
	Logger   *logger.Logger
	Payments paymentSweeper
	// BatchLimit caps how many intents a single run polls. Zero means all.
	BatchLimit int
}

// NewPaymentReconcileJob builds the cron job that polls the payment gateway
// for orders still awaiting payment.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentReconcileJob{
		logg:     params.Logger,
		payments: params.Payments,
		limit:    params.BatchLimit,
	}, nil
}

type paymentReconcileJob struct {
	logg     *logger.Logger
	payments paymentSweeper
	limit    int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconcile" }

func (j *paymentReconcileJob) Run(ctx context.Context) error {
	count, err := j.payments.ReconcilePending(ctx, j.limit)
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	if err != nil {
		j.logg.Error(logCtx, "payment reconcile sweep finished with errors", err)
		return err
	}
	j.logg.Info(logCtx, "payment reconcile sweep complete")
	return nil
}

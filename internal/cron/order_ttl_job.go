package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/j1myx/kiwishaproject/pkg/logger"
)

const expiredPaymentReason = "pago expirado"

// staleOrderCanceller expires pending orders older than a TTL, returning
// their stock.
type staleOrderCanceller interface {
	CancelStalePending(ctx context.Context, olderThan time.Duration, reason string) (int, error)
}

// OrderTTLJobParams configure the pending order expiration job.
type OrderTTLJobParams struct {
	Logger *logger.Logger
	Orders staleOrderCanceller
	// PendingTTL is how long an order may sit unpaid before it is cancelled.
	PendingTTL time.Duration
}

// NewOrderTTLJob builds the cron job that cancels orders whose payment never
// arrived.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.PendingTTL <= 0 {
		return nil, fmt.Errorf("pending ttl must be positive")
	}
	return &orderTTLJob{
		logg:       params.Logger,
		orders:     params.Orders,
		pendingTTL: params.PendingTTL,
	}, nil
}

type orderTTLJob struct {
	logg       *logger.Logger
	orders     staleOrderCanceller
	pendingTTL time.Duration
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	count, err := j.orders.CancelStalePending(ctx, j.pendingTTL, expiredPaymentReason)
	logCtx := j.logg.WithFields(ctx, map[string]any{"count": count})
	if err != nil {
		j.logg.Error(logCtx, "order expiration loop finished with errors", err)
		return err
	}
	j.logg.Info(logCtx, "order expiration loop complete")
	return nil
}

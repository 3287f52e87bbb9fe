package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/KoushikPanda1729/billing-service/internal/order"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

// PaymentChecker resolves the real state of a stuck payment.
type PaymentChecker interface {
	MarkPaymentFailed(ctx context.Context, orderID string) error
}

// Reconciler sweeps orders whose gateway payment never completed. A client
// can drop offline between paying and calling the verify endpoint; those
// orders sit in pending forever unless something closes them out. Orders
// still pending after the stale window get their payment marked failed,
// which also returns any held wallet credits.
type Reconciler struct {
	orders  order.Store
	checker PaymentChecker
	logger  *logging.Logger

	interval    time.Duration
	staleAfter  time.Duration
	batchSize   int
	workerCount int
}

func NewReconciler(orders order.Store, checker PaymentChecker, logger *logging.Logger) *Reconciler {
	return &Reconciler{
		orders:      orders,
		checker:     checker,
		logger:      logger,
		interval:    5 * time.Minute,
		staleAfter:  30 * time.Minute,
		batchSize:   50,
		workerCount: 5,
	}
}

// Start runs the sweep loop until the context is cancelled. Blocking.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info(logging.Fields{Step: "reconciler_started", Message: r.interval.String()})
	for {
		select {
		case <-ctx.Done():
			r.logger.Info(logging.Fields{Step: "reconciler_stopped"})
			return
		case <-ticker.C:
			r.processBatch(ctx)
		}
	}
}

func (r *Reconciler) processBatch(ctx context.Context) {
	stale, err := r.orders.FindStalePendingPayments(ctx, r.staleAfter, r.batchSize)
	if err != nil {
		r.logger.Error(logging.Fields{Step: "reconciler_scan"}, err)
		return
	}
	if len(stale) == 0 {
		return
	}
	r.logger.Info(logging.Fields{
		Step:    "reconciler_batch",
		Message: fmt.Sprintf("%d stale pending payments", len(stale)),
	})

	jobs := make(chan order.Order, len(stale))
	var wg sync.WaitGroup
	for w := 0; w < r.workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for o := range jobs {
				if err := r.checker.MarkPaymentFailed(ctx, o.ID); err != nil {
					r.logger.Error(logging.Fields{OrderID: o.ID, Step: "reconcile_order"}, err)
				}
			}
		}()
	}
	for _, o := range stale {
		jobs <- o
	}
	close(jobs)
	wg.Wait()
}

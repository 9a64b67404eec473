/*
scheduler.go - Background balance reconciliation

PURPOSE:
  Periodically rederives every employee's cached leave balance from the
  ledgers and repairs drift. The synchronizer maintains the projection
  incrementally; this sweep is the backstop for partial applies that were
  never retried.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Derives the balance with ledger.Recompute (the source of truth)
  - Writes only when the cached projection differs
  - Logs every repaired drift for audit

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewBalanceSweeper(store, log)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: GetBalance does the same reconciliation per read
  - ledger/balance.go: Recompute
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/roster-engine/ledger"
	"github.com/warp/roster-engine/rota"
)

// BalanceSweeper repairs cached-balance drift in the background.
type BalanceSweeper struct {
	Store         ledger.TxStore
	Log           logrus.FieldLogger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBalanceSweeper creates a new sweeper.
func NewBalanceSweeper(store ledger.TxStore, log logrus.FieldLogger) *BalanceSweeper {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &BalanceSweeper{
		Store:         store,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the sweeper. A stopped sweeper can be started again.
func (bs *BalanceSweeper) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		bs.Log.Info("balance sweeper disabled, not starting")
		return
	}
	if bs.ticker != nil {
		return
	}

	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.stop = make(chan struct{})
	bs.wg.Add(1)
	go bs.run(bs.ticker, bs.stop)

	bs.Log.WithField("interval", bs.CheckInterval).Info("balance sweeper started")
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (bs *BalanceSweeper) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		bs.ticker = nil
		bs.Log.Info("balance sweeper stopped")
	}
}

func (bs *BalanceSweeper) run(ticker *time.Ticker, stop chan struct{}) {
	defer bs.wg.Done()

	// Run immediately on start
	bs.sweep()

	for {
		select {
		case <-ticker.C:
			bs.sweep()
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (bs *BalanceSweeper) RunNow() { bs.sweep() }

func (bs *BalanceSweeper) sweep() {
	ctx := context.Background()
	year := rota.Today().Year()

	employees, err := bs.Store.ListEmployees(ctx)
	if err != nil {
		bs.Log.WithError(err).Error("balance sweep: listing employees failed")
		return
	}

	repaired := 0
	for _, emp := range employees {
		fixed, err := bs.reconcileEmployee(ctx, emp, year)
		if err != nil {
			bs.Log.WithError(err).WithField("employee", emp.ID).
				Error("balance sweep: reconciliation failed")
			continue
		}
		if fixed {
			repaired++
		}
	}

	if repaired > 0 {
		bs.Log.WithFields(logrus.Fields{
			"employees": len(employees),
			"repaired":  repaired,
		}).Info("balance sweep completed")
	}
}

func (bs *BalanceSweeper) reconcileEmployee(ctx context.Context, emp ledger.Employee, year int) (bool, error) {
	inLieus, err := bs.Store.ListInLieus(ctx, emp.ID)
	if err != nil {
		return false, err
	}
	leaves, err := bs.Store.ListLeavesForYear(ctx, emp.ID, year)
	if err != nil {
		return false, err
	}
	derived := ledger.FloorZero(ledger.Recompute(emp, year, inLieus, leaves))

	cached, err := bs.Store.GetBalance(ctx, emp.ID)
	if err != nil {
		return false, err
	}
	if cached != nil && cached.Days.Equal(derived) {
		return false, nil
	}

	if cached != nil {
		bs.Log.WithFields(logrus.Fields{
			"employee": emp.ID,
			"cached":   cached.Days.String(),
			"derived":  derived.String(),
		}).Warn("balance sweep: repairing drifted balance")
	}
	err = bs.Store.SaveBalance(ctx, ledger.CachedBalance{
		EmployeeID: emp.ID,
		Days:       derived,
		UpdatedAt:  time.Now().UTC(),
	})
	return err == nil, err
}

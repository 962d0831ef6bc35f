package integration

import (
	"context"
	"time"

	"github.com/dukex/integra/pkg/executor"
	"github.com/dukex/integra/pkg/faults"
	"github.com/dukex/integra/pkg/models"
)

// probeSessionTTL bounds how long an unfinished probed transaction keeps its loop state.
const probeSessionTTL = 15 * time.Minute

// probeSession keeps the executor of a probed transaction between single-step probes, so
// a for_each entered by one probe is still active when its collect step is probed.
type probeSession struct {
	tx       *models.Transaction
	executor *executor.Executor
	touched  time.Time
}

// Probe executes the current step of tx without persisting anything, and keeps going when
// continueRun is set. The integration does not need to be running. Loop state carries over
// between calls for the same transaction until it finishes.
func (i *Integration) Probe(ctx context.Context, tx *models.Transaction, continueRun bool) ([]executor.StepExecution, error) {
	if tx.IntegrationID != i.id {
		return nil, faults.State("Probe", i.id, ErrForeignTransaction)
	}

	session := i.probeSession(tx)

	return i.probe(ctx, session, continueRun), nil
}

// ProbeNext continues the probed transaction txID from where the last probe left it.
func (i *Integration) ProbeNext(ctx context.Context, txID uint64, continueRun bool) (*models.Transaction, []executor.StepExecution, error) {
	now := time.Now()

	i.probesMu.Lock()
	i.sweepProbesLocked(now)
	session, ok := i.probes[txID]
	i.probesMu.Unlock()

	if !ok {
		return nil, nil, faults.State("ProbeNext", i.id, ErrProbeNotFound)
	}

	return session.tx, i.probe(ctx, session, continueRun), nil
}

func (i *Integration) probe(ctx context.Context, session *probeSession, continueRun bool) []executor.StepExecution {
	var executions []executor.StepExecution

	if continueRun {
		executions = session.executor.Run(ctx, session.tx)
	} else {
		executions = []executor.StepExecution{session.executor.Execute(ctx, session.tx)}
	}

	i.probesMu.Lock()
	defer i.probesMu.Unlock()

	if session.tx.Finished {
		delete(i.probes, session.tx.ID)
	} else {
		session.touched = time.Now()
	}

	return executions
}

// probeSession returns the session of tx, starting one when tx was not probed before or
// was replaced by another transaction carrying the same ID.
func (i *Integration) probeSession(tx *models.Transaction) *probeSession {
	now := time.Now()

	i.probesMu.Lock()
	defer i.probesMu.Unlock()

	i.sweepProbesLocked(now)

	if session, ok := i.probes[tx.ID]; ok && session.tx == tx {
		session.touched = now
		return session
	}

	session := &probeSession{
		tx:       tx,
		executor: executor.New(i.Definition(), i.executorDeps(), executor.WithProbing()),
		touched:  now,
	}
	i.probes[tx.ID] = session

	return session
}

func (i *Integration) sweepProbesLocked(now time.Time) {
	for id, session := range i.probes {
		if now.Sub(session.touched) > probeSessionTTL {
			delete(i.probes, id)
		}
	}
}

func (i *Integration) dropProbes() {
	i.probesMu.Lock()
	defer i.probesMu.Unlock()

	clear(i.probes)
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const sweepBatchSize = 500

// ExpirySweeper periodically removes expired files. Reads already treat
// them as gone, this only reclaims the records and objects.
type ExpirySweeper struct {
	svc  *UploadService
	spec string
	cron *cron.Cron
}

func NewExpirySweeper(svc *UploadService, spec string) *ExpirySweeper {
	return &ExpirySweeper{
		svc:  svc,
		spec: spec,
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

func (e *ExpirySweeper) Start() error {
	if _, err := e.cron.AddFunc(e.spec, e.run); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q, %w", e.spec, err)
	}

	e.cron.Start()
	zap.L().Debug("Expiry sweeper attached", zap.String("schedule", e.spec))

	return nil
}

// Stop waits for a running sweep to finish
func (e *ExpirySweeper) Stop() {
	<-e.cron.Stop().Done()
}

func (e *ExpirySweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := e.svc.SweepExpired(ctx, sweepBatchSize)
	if err != nil {
		zap.L().Error("Expiry sweep failed", zap.Int("swept", n), zap.Error(err))
		return
	}

	if n > 0 {
		zap.L().Info("Expiry sweep finished", zap.Int("swept", n))
	}
}

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// schedule re-runs the session on a cron expression until ctx is done. A
// run still in progress when the next tick fires makes that tick a no-op.
func schedule(ctx context.Context, spec string, s *session) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return usageError(fmt.Errorf("invalid schedule %q: %w", spec, err))
	}

	logger := cronLogger{sugar: s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.SkipIfStillRunning(logger)),
	)

	c.Schedule(sched, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		res, err := s.runOnce(ctx)
		switch {
		case err != nil && ctx.Err() == nil:
			s.logger.Warn("scheduled run failed", zap.Error(err))
		case res != nil:
			s.logger.Info("scheduled run finished",
				zap.String("run", res.ID),
				zap.Bool("ok", res.OK()),
				zap.Int("exit_code", RunExitCode(res)))
		}
		fmt.Fprintf(s.stdout, "Next run at %s\n", sched.Next(time.Now()).Format(time.RFC3339))
	}))

	fmt.Fprintf(s.stdout, "Scheduled %q, first run at %s (press Ctrl+C to stop)\n",
		spec, sched.Next(time.Now()).Format(time.RFC3339))

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

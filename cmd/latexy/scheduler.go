package main

import (
	"github.com/spf13/cobra"

	red "github.com/sanskarpan/Latexy/internal/infra/redis"
	"github.com/sanskarpan/Latexy/internal/infra/scheduler"
)

func newSchedulerCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Submit periodic cleanup and health-check jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := newCore(ctx, flags, "scheduler")
			if err != nil {
				return err
			}
			defer c.close()
			if !c.cfg.Scheduler.Enabled {
				c.log.Warn().Msg("scheduler.enabled is false; nothing to do")
				<-ctx.Done()
				return nil
			}

			s, err := scheduler.NewScheduler(c.cfg.Scheduler, c.submitter, red.NewLocker(c.redis), c.log)
			if err != nil {
				return err
			}
			s.Start(ctx)
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
}

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sanskarpan/Latexy/internal/infra/adapters/latex"
	pg "github.com/sanskarpan/Latexy/internal/infra/db/postgres"
	"github.com/sanskarpan/Latexy/internal/infra/realtime"
	red "github.com/sanskarpan/Latexy/internal/infra/redis"
	"github.com/sanskarpan/Latexy/internal/infra/web"
	"github.com/sanskarpan/Latexy/internal/usecase"
)

func newAPICmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "api",
		Short: "Serve the job API and realtime websocket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := newCore(ctx, flags, "api")
			if err != nil {
				return err
			}
			defer c.close()

			hub := realtime.NewHub(c.log)
			defer hub.Close()

			// Workers publish through Redis; the relay forwards to local sockets.
			feed, err := red.NewUpdateFeed(c.redis, c.cfg.Redis.UpdatesChannel, c.log).Subscribe(ctx)
			if err != nil {
				return err
			}
			go hub.Relay(ctx, feed)

			auth := web.NewAuthManager(c.cfg.Security.JWTSecret, time.Hour)
			if !auth.Enabled() {
				c.log.Warn().Msg("security.jwt_secret not set; all callers are anonymous")
			}
			// Downloads read the same latex.work_root the workers write to.
			qopts := []usecase.QueryOption{usecase.WithArtifacts(latex.NewWorkspace(c.cfg.Latex.WorkRoot))}
			if c.cfg.Database.URL != "" {
				pool, err := pg.Connect(ctx, c.cfg.Database.URL, 2)
				if err != nil {
					return err
				}
				defer pool.Close()
				qopts = append(qopts, usecase.WithUsageReports(pg.NewUsageRepo(pool)))
			}

			srv := web.NewServer(
				c.submitter,
				usecase.NewJobQuery(c.store, c.queue, c.log, qopts...),
				hub, auth, c.cfg.HTTP, c.log,
			)
			return srv.Run(ctx)
		},
	}
}

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sio4242/Godsaeng-project/internal/domain/progression"
	"github.com/sio4242/Godsaeng-project/pkg/logger"
)

// withBackend loads config, opens storage, and runs fn against it.
func withBackend(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, b *backend, log *logger.Logger) error) error {
	cfg, log, err := loadConfig(flags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	b, err := openBackend(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, b, log)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATE
// ══════════════════════════════════════════════════════════════════════════════

func newMigrateCmd(flags *globalFlags) *cobra.Command {
	migrate := &cobra.Command{Use: "migrate", Short: "Manage the PostgreSQL schema"}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend, _ *logger.Logger) error {
				n, err := b.migrateUp(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
				return nil
			})
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend, _ *logger.Logger) error {
				m, err := b.migrator()
				if err != nil {
					return err
				}
				v, err := m.Rollback(ctx)
				if err != nil {
					return err
				}
				if v == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rolled back version %d\n", v)
				return nil
			})
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend, _ *logger.Logger) error {
				m, err := b.migrator()
				if err != nil {
					return err
				}
				list, err := m.Status(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
				for _, mig := range list {
					applied := "no"
					if mig.IsApplied {
						applied = mig.AppliedAt.UTC().Format(time.RFC3339)
					}
					_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", mig.Version, mig.Name, applied)
				}
				return w.Flush()
			})
		},
	}

	migrate.AddCommand(up, down, status)
	return migrate
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

func newLedgerCmd(flags *globalFlags) *cobra.Command {
	ledger := &cobra.Command{Use: "ledger", Short: "Inspect and provision progression ledgers"}

	provision := &cobra.Command{
		Use:   "provision <user-id>",
		Short: "Create the starting ledger (level 1, exp 0) if absent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, flags, func(ctx context.Context, b *backend, log *logger.Logger) error {
				l, created, err := b.ProvisionLedger(ctx, args[0], time.Now().UTC())
				if err != nil {
					return err
				}
				log.Info("ledger provisioned", logger.UserID(l.UserID), logger.Bool("created", created))

				verb := "exists"
				if created {
					verb = "created"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s level=%d exp=%d\n", verb, l.UserID, l.Level, l.Exp)
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print a user's level and experience",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(flags)
			if err != nil {
				return err
			}
			resolver := progression.NewResolver(progression.FixedRequirement(progression.Exp(cfg.Progression.ExpPerLevel)))

			return withBackend(cmd, flags, func(ctx context.Context, b *backend, _ *logger.Logger) error {
				l, err := b.GetLedger(ctx, args[0])
				if err != nil {
					return err
				}
				s := l.Snapshot(resolver)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s level=%d exp=%d/%d updated=%s\n",
					s.UserID, s.Level, s.Exp, s.ExpRequired, s.UpdatedAt.Format(time.RFC3339))
				return nil
			})
		},
	}

	ledger.AddCommand(provision, show)
	return ledger
}

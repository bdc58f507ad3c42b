package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chioma/settlement/internal/bootstrap"
	"github.com/chioma/settlement/internal/config"
	"github.com/chioma/settlement/internal/db"
	"github.com/chioma/settlement/internal/models"
	"github.com/chioma/settlement/internal/services"
)

// withEngine opens the configured runtime for the duration of fn.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, rt *bootstrap.Runtime) error) error {
	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg := config.Load()
	rt, err := bootstrap.Open(cmd.Context(), cfg, bootstrap.Options{Engine: true}, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(cmd.Context(), rt)
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return zap.NewDevelopment()
	}
	return zap.NewNop(), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func callerFlag(cmd *cobra.Command) {
	cmd.Flags().String("as", "", "Address the call is made as")
	_ = cmd.MarkFlagRequired("as")
	cmd.Flags().Bool("verbose", false, "Log backend activity")
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the protocol with an admin, fee and fee collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			admin, _ := cmd.Flags().GetString("admin")
			fee, _ := cmd.Flags().GetUint32("fee-bps")
			collector, _ := cmd.Flags().GetString("collector")
			if !cmd.Flags().Changed("fee-bps") {
				fee = uint32(cfg.PlatformFeeBPS)
			}
			if collector == "" {
				collector = cfg.FeeCollector
			}

			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				protocol := services.NewProtocolService(rt.Engine)
				err := protocol.Initialize(ctx, admin, models.ProtocolConfig{FeeBPS: fee, FeeCollector: collector})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "initialized: admin=%s fee_bps=%d collector=%s\n", admin, fee, collector)
				return nil
			})
		},
	}
	cmd.Flags().String("admin", "", "Protocol admin address")
	_ = cmd.MarkFlagRequired("admin")
	cmd.Flags().Uint32("fee-bps", 0, "Platform fee in basis points (default PLATFORM_FEE_BPS)")
	cmd.Flags().String("collector", "", "Fee collector address (default FEE_COLLECTOR)")
	cmd.Flags().Bool("verbose", false, "Log backend activity")
	return cmd
}

func pauseCmd(paused bool) *cobra.Command {
	use, short := "unpause", "Resume mutating operations"
	if paused {
		use, short = "pause", "Reject every mutating operation until unpaused"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, _ := cmd.Flags().GetString("as")
			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				if err := services.NewProtocolService(rt.Engine).SetPaused(ctx, caller, paused); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "paused=%t\n", paused)
				return nil
			})
		},
	}
	callerFlag(cmd)
	return cmd
}

func setFeeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-fee",
		Short: "Update the platform fee and fee collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, _ := cmd.Flags().GetString("as")
			fee, _ := cmd.Flags().GetUint32("fee-bps")
			collector, _ := cmd.Flags().GetString("collector")
			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				updated, err := services.NewProtocolService(rt.Engine).UpdateConfig(ctx, caller, fee, collector)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), updated)
			})
		},
	}
	callerFlag(cmd)
	cmd.Flags().Uint32("fee-bps", 0, "Platform fee in basis points")
	cmd.Flags().String("collector", "", "Fee collector address")
	_ = cmd.MarkFlagRequired("fee-bps")
	_ = cmd.MarkFlagRequired("collector")
	return cmd
}

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show admin, config and counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				st, err := services.NewProtocolService(rt.Engine).State(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
	cmd.Flags().Bool("verbose", false, "Log backend activity")
	return cmd
}

func escrowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow <id>",
		Short: "Show an escrow by its hex id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := models.ParseEscrowID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				escrow, err := services.NewEscrowService(rt.Engine).GetByID(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), escrow)
			})
		},
	}
	cmd.Flags().Bool("verbose", false, "Log backend activity")
	return cmd
}

func agreementCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agreement <id>",
		Short: "Show a rent agreement with its payment history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				agreement, err := services.NewAgreementService(rt.Engine).GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), agreement)
			})
		},
	}
	cmd.Flags().Bool("verbose", false, "Log backend activity")
	return cmd
}

func propertyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "property <id>",
		Short: "Show a registered property",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd, func(ctx context.Context, rt *bootstrap.Runtime) error {
				property, err := services.NewPropertyService(rt.Engine).GetByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), property)
			})
		},
	}
	cmd.Flags().Bool("verbose", false, "Log backend activity")
	return cmd
}

func purgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete records whose lease has lapsed",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd)
			if err != nil {
				return err
			}
			rt, err := bootstrap.Open(cmd.Context(), config.Load(), bootstrap.Options{}, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			purged, err := rt.Store.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d records\n", purged)
			return nil
		},
	}
	cmd.Flags().Bool("verbose", false, "Log backend activity")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "List the migrations found in MIGRATIONS_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := db.PendingMigrations(config.Load().MigrationsDir)
			if err != nil {
				return err
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply migrations to POSTGRES_DSN",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(cmd)
			if err != nil {
				return err
			}
			cfg := config.Load()
			pool, err := db.NewPostgresPool(cmd.Context(), cfg.PostgresDSN, log)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.RunMigrations(cmd.Context(), pool, cfg.MigrationsDir, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migrations\n", applied)
			return nil
		},
	}
	up.Flags().Bool("verbose", false, "Log backend activity")

	cmd.AddCommand(status, up)
	return cmd
}

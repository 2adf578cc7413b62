package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/erazemk/inventura/internal/connectivity"
	"github.com/erazemk/inventura/internal/reconcile"
	"github.com/erazemk/inventura/internal/replica"
)

func newModeCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mode [online|offline]",
		Short: "Show or switch the connectivity mode",
		Long: `Show or switch the connectivity mode.

Going online flushes queued replica writes to the remote store and pulls a
fresh copy. Going offline takes a last copy when the remote is reachable and
otherwise just records the mode.`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(connectivity.Online), string(connectivity.Offline)},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := rootOpts.setup(cmd)
			defer closeLog()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			if len(args) == 0 {
				local, err := replica.Open(cfg.Replica)
				if err != nil {
					return err
				}
				defer local.Close()
				conn, err := connectivity.New(ctx, local, nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pending)\n", conn.CurrentMode(), len(local.Pending()))
				return nil
			}

			mode, err := connectivity.ParseMode(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				if mode == connectivity.Online {
					return err
				}
				slog.Warn("remote store unreachable, switching offline without a fresh copy", "error", err)
				return setOfflineLocally(cmd, cfg.Replica)
			}
			defer a.close()

			if err := a.conn.SetMode(ctx, mode == connectivity.Online); err != nil {
				return fmt.Errorf("switched to %s, but syncing failed: %w", mode, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pending)\n", a.conn.CurrentMode(), len(a.replica.Pending()))
			return nil
		},
	}
}

func setOfflineLocally(cmd *cobra.Command, path string) error {
	local, err := replica.Open(path)
	if err != nil {
		return err
	}
	defer local.Close()
	conn, err := connectivity.New(cmd.Context(), local, nil)
	if err != nil {
		return err
	}
	if err := conn.SetMode(cmd.Context(), false); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%d pending)\n", conn.CurrentMode(), len(local.Pending()))
	return nil
}

func newResyncCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Flush queued writes and pull a fresh replica copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := rootOpts.setup(cmd)
			defer closeLog()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			if !a.conn.Online() {
				return fmt.Errorf("resync needs online mode; run 'inventura mode online' instead")
			}
			if err := a.manager.Resync(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "replica in sync")
			return nil
		},
	}
}

func newReconcileCommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "reconcile duplicates|orphans",
		Short:     "Collapse duplicate equipment or release orphaned group members",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"duplicates", "orphans"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := rootOpts.setup(cmd)
			defer closeLog()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.close()

			var report reconcile.Report
			switch args[0] {
			case "duplicates":
				report, err = reconcile.CollapseDuplicates(cmd.Context(), a.protocol, a.data.Equipment())
			case "orphans":
				report, err = reconcile.ReleaseOrphans(cmd.Context(), a.protocol, a.data.Equipment(), a.data.Groups())
			default:
				return fmt.Errorf("unknown job %q (want duplicates or orphans)", args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

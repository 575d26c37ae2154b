package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/jarscout/internal/catalog"
	"github.com/mattjoyce/jarscout/internal/lock"
)

func newStatusCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the catalog lock holder and recorded scans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog: %s\n", cfg.Catalog.Path)

			lk, err := lock.Acquire(cfg.Catalog.Path)
			switch {
			case errors.Is(err, lock.ErrLocked):
				if pid, ok := lock.Holder(cfg.Catalog.Path); ok {
					fmt.Fprintf(out, "lock: held by pid %d\n", pid)
				} else {
					fmt.Fprintln(out, "lock: held")
				}
			case err != nil:
				return err
			default:
				fmt.Fprintln(out, "lock: free")
				_ = lk.Release()
			}

			store, err := catalog.Open(cmd.Context(), cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			scans, err := store.Scans(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "scans: %d\n", len(scans))
			for _, s := range scans {
				state := "incomplete"
				if s.FinishedAt != nil {
					state = "finished " + s.FinishedAt.Local().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(out, "  %s  %s  %s (%s)\n", s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Root, state)
			}
			return nil
		},
	}
}

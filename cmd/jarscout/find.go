package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/jarscout/internal/catalog"
)

func newFindCmd(global *globalOptions) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "find [query]",
		Short: "Find recorded classes whose name contains query",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global, false)
			if err != nil {
				return err
			}
			query := strings.Join(args, "")

			store, err := catalog.Open(cmd.Context(), cfg.Catalog.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			matches, err := store.FindClasses(cmd.Context(), query, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if matches == nil {
					matches = []catalog.Match{}
				}
				data, err := json.MarshalIndent(matches, "", "  ")
				if err != nil {
					return fmt.Errorf("render matches: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(matches) == 0 {
				fmt.Fprintf(out, "No classes match %q\n", query)
				return nil
			}
			for _, group := range groupByContainer(matches) {
				fmt.Fprintln(out, group.container)
				for _, m := range group.matches {
					fmt.Fprintf(out, "  %s\n", m.File)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of classes (0 = no limit)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output matches as JSON")
	return cmd
}

type matchGroup struct {
	container string
	matches   []catalog.Match
}

// groupByContainer groups matches by archive, in order of first
// appearance. The stand-alone group always comes last.
func groupByContainer(matches []catalog.Match) []matchGroup {
	var (
		groups     []matchGroup
		index      = make(map[string]int)
		standalone *matchGroup
	)
	for _, m := range matches {
		if m.Container == catalog.StandaloneContainer {
			if standalone == nil {
				standalone = &matchGroup{container: m.Container}
			}
			standalone.matches = append(standalone.matches, m)
			continue
		}
		i, ok := index[m.Container]
		if !ok {
			i = len(groups)
			index[m.Container] = i
			groups = append(groups, matchGroup{container: m.Container})
		}
		groups[i].matches = append(groups[i].matches, m)
	}
	if standalone != nil {
		groups = append(groups, *standalone)
	}
	return groups
}

package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/jarscout/internal/tui"
)

func newWatchCmd(global *globalOptions) *cobra.Command {
	var url, apiKey string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Monitor a running jarscout server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, global, true)
			if err != nil {
				return err
			}
			if url == "" {
				url = serverURL(cfg.API.Listen)
			}
			if !cmd.Flags().Changed("api-key") {
				apiKey = cfg.API.APIKey
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return tui.Run(ctx, tui.SSESource{URL: url, APIKey: apiKey})
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "Server URL (default derived from api.listen)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Bearer token sent to the server")
	return cmd
}

// serverURL turns a listen address into a URL a local client can dial.
func serverURL(listen string) string {
	if strings.HasPrefix(listen, "http://") || strings.HasPrefix(listen, "https://") {
		return listen
	}
	if strings.HasPrefix(listen, ":") || strings.HasPrefix(listen, "0.0.0.0:") {
		_, port, _ := strings.Cut(listen, ":")
		return "http://127.0.0.1:" + port
	}
	return "http://" + listen
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/example/control-assessor/internal/app"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		// serve always logs
		verbose = true
		a, err := loadApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if serveAddr != "" {
			a.Config.HTTP.Addr = serveAddr
		}
		ctx, stop := app.NotifyContext(cmd.Context())
		defer stop()
		return a.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

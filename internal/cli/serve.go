package cli

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/cjgribel/eeng-core/internal/api"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the inspection HTTP API (batches, assets, metrics)",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := newEngineHandle()
	if err != nil {
		return err
	}
	defer e.Close()

	host := e.cfg.API.Host
	if serveHost != "" {
		host = serveHost
	}
	port := e.cfg.API.Port
	if servePort != 0 {
		port = servePort
	}

	srv := api.NewServer(e.batches, e.storage, e.reg)
	if e.cfg.Metrics.Enabled {
		srv.EnableMetrics()
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	fmt.Println("listening on", addr)
	return http.ListenAndServe(addr, srv.Handler())
}

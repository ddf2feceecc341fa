package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	opts := &extractOptions{}
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API for uploading forms and reading extractions",
		Example: `  formscan serve
  formscan serve --port 9000 --keep-going`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ex, err := opts.newExtractor()
			if err != nil {
				return err
			}
			formReader = ex
			if err := initDB(); err != nil {
				return err
			}

			r := gin.Default()
			setupRoutes(r)
			addr := ":" + port
			server := &http.Server{Addr: addr, Handler: r}

			serverErr := make(chan error, 1)
			go func() {
				log.Printf("listening on %s", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			select {
			case <-cmd.Context().Done():
				log.Printf("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			case err := <-serverErr:
				return err
			}
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "8081", "Port to listen on")
	bindPipelineFlags(cmd, opts)
	return cmd
}

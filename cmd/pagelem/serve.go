package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pagelem tools over MCP streamable HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Serve.Addr = addr
			}
			ln, err := net.Listen("tcp", a.cfg.Serve.Addr)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", env("PAGELEM_ADDR", ""), "listen address, overrides serve.addr")
	return cmd
}

// router mounts the health check and the MCP endpoint.
func (a *app) router() http.Handler {
	srv := mcp.NewServer(&mcp.Implementation{Name: "pagelem", Version: version}, nil)
	a.svc.RegisterMCP(srv)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
	r.Handle(a.cfg.Serve.MCPPath, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	return r
}

// serve runs the HTTP server on ln until ctx is done.
func (a *app) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.Info("pagelem: serving", "addr", ln.Addr().String(), "mcp", a.cfg.Serve.MCPPath)
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	a.logger.Info("pagelem: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

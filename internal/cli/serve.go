package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/strata"
	httpAdapter "github.com/aretw0/strata/pkg/adapters/http"
	mcpAdapter "github.com/aretw0/strata/pkg/adapters/mcp"
)

// ServeOptions configures the serve command.
type ServeOptions struct {
	ConfigPath   string
	TopologyPath string
	// Addr overrides metrics.addr.
	Addr  string
	Debug bool
}

// Serve runs the engine and its operational endpoints until ctx is cancelled.
func Serve(ctx context.Context, opts ServeOptions, stdout io.Writer) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Metrics.Addr = opts.Addr
	}
	logger, err := createLogger(cfg, opts.Debug)
	if err != nil {
		return err
	}

	streams := httpAdapter.NewStreamManager(logger)
	st, err := BuildEngine(cfg, opts.TopologyPath, logger, opts.Debug, strata.WithHooks(streams.Hooks()))
	if err != nil {
		return err
	}
	defer st.Close()

	handler := httpAdapter.NewHandler(st.Engine,
		httpAdapter.WithStreams(streams),
		httpAdapter.WithMetricsHandler(st.Metrics.Handler()),
		httpAdapter.WithVersion(strata.Version),
		httpAdapter.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := st.Start(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return st.Run(gctx) })
	g.Go(func() error {
		printSystemMessage(stdout, "strata %s listening on %s (backend %s)", strata.Version, srv.Addr, st.Engine.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "err", err)
			return srv.Close()
		}
		return nil
	})

	err = g.Wait()
	printSystemMessage(stdout, "strata stopped")
	return err
}

// ServeMCP exposes the engine as an MCP server over stdio or SSE.
func ServeMCP(ctx context.Context, opts MCPOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger, err := createLogger(cfg, opts.Debug)
	if err != nil {
		return err
	}
	st, err := BuildEngine(cfg, opts.TopologyPath, logger, opts.Debug)
	if err != nil {
		return err
	}
	defer st.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := st.Start(runCtx); err != nil {
		return err
	}
	runErr := make(chan error, 1)
	go func() { runErr <- st.Run(runCtx) }()

	srv := mcpAdapter.NewServer(st.Engine, strata.Version, logger)
	switch opts.Transport {
	case "", "stdio":
		err = srv.ServeStdio()
	case "sse":
		baseURL := opts.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost" + opts.Addr
		}
		err = srv.ServeSSE(runCtx, opts.Addr, baseURL)
	default:
		err = fmt.Errorf("unknown transport %q (use stdio or sse)", opts.Transport)
	}

	cancel()
	if stopErr := <-runErr; err == nil {
		err = stopErr
	}
	return err
}

// MCPOptions configures the mcp command.
type MCPOptions struct {
	ConfigPath   string
	TopologyPath string
	Transport    string
	Addr         string
	BaseURL      string
	Debug        bool
}

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/strata/pkg/domain"
)

const (
	defaultSubmitTimeout = 60 * time.Second
	maxQueryLimit        = 100
	topologyURI          = "strata://topology"
)

// Engine is the subset of the strata engine exposed over MCP.
type Engine interface {
	Submit(ctx context.Context, content string) (domain.Outcome, error)
	QueryMemory(ctx context.Context, neuronID string, kinds []domain.EntryKind, limit int) ([]domain.MemoryEntry, error)
	Costs() domain.CostStats
	Health() []domain.NeuronHealth
	Declarations() []domain.NeuronDeclaration
}

// SubmitArgs are the arguments of submit_task.
type SubmitArgs struct {
	Content        string  `json:"content"`
	TimeoutSeconds float64 `json:"timeout_seconds,omitempty"`
}

// SubmitResponse is the structured result of submit_task.
type SubmitResponse struct {
	Outcome domain.Outcome `json:"outcome" jsonschema_description:"Terminal results and failures of the request"`
	Error   string         `json:"error,omitempty" jsonschema_description:"Deepest terminal error when no result was produced"`
}

// QueryArgs are the arguments of query_memory.
type QueryArgs struct {
	NeuronID string `json:"neuron_id"`
	Kind     string `json:"kind,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// QueryResponse is the structured result of query_memory.
type QueryResponse struct {
	Entries []domain.MemoryEntry `json:"entries" jsonschema_description:"Entries, most recent first"`
}

// Server exposes a strata engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("strata-mcp", version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	r := chi.NewRouter()
	r.Handle("/sse", sseServer.SSEHandler())
	r.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func (s *Server) registerTools() {
	submitTool := mcp.NewTool("submit_task",
		mcp.WithDescription("Submit a task at the highest-layer entry neuron and wait for the chain to finish."),
		mcp.WithString("content", mcp.Required(), mcp.Description("The task to process")),
		mcp.WithNumber("timeout_seconds", mcp.Description("Overall deadline in seconds (default 60)")),
		mcp.WithOutputSchema[SubmitResponse](),
	)
	s.mcpServer.AddTool(submitTool, mcp.NewStructuredToolHandler(s.handleSubmit))

	queryTool := mcp.NewTool("query_memory",
		mcp.WithDescription("List the most recent memory entries of a neuron."),
		mcp.WithString("neuron_id", mcp.Required(), mcp.Description("Neuron whose partition is read")),
		mcp.WithString("kind", mcp.Description("Optional kind filter: task, result, error or learning")),
		mcp.WithNumber("limit", mcp.Description("Maximum entries to return (default 10)")),
		mcp.WithOutputSchema[QueryResponse](),
	)
	s.mcpServer.AddTool(queryTool, mcp.NewStructuredToolHandler(s.handleQuery))

	s.mcpServer.AddTool(mcp.NewTool("cost_stats",
		mcp.WithDescription("Current hourly and daily spend against the configured ceilings."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.engine.Costs())
	})

	s.mcpServer.AddTool(mcp.NewTool("neuron_health",
		mcp.WithDescription("State and counters of every neuron."),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(s.engine.Health())
	})
}

func (s *Server) handleSubmit(ctx context.Context, request mcp.CallToolRequest, args SubmitArgs) (SubmitResponse, error) {
	if args.Content == "" {
		return SubmitResponse{}, errors.New("content is required")
	}
	timeout := defaultSubmitTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds * float64(time.Second))
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := s.engine.Submit(ctx, args.Content)
	resp := SubmitResponse{Outcome: out}
	if err != nil {
		var terminal *domain.TerminalError
		if !errors.As(err, &terminal) {
			return SubmitResponse{}, fmt.Errorf("submit failed: %w", err)
		}
		resp.Error = terminal.Error()
		s.logger.Warn("MCP submit_task ended without a result", "batch_id", out.BatchID, "err", err)
	}
	return resp, nil
}

func (s *Server) handleQuery(ctx context.Context, request mcp.CallToolRequest, args QueryArgs) (QueryResponse, error) {
	if args.NeuronID == "" {
		return QueryResponse{}, errors.New("neuron_id is required")
	}
	var kinds []domain.EntryKind
	if args.Kind != "" {
		k := domain.EntryKind(args.Kind)
		if !k.Valid() {
			return QueryResponse{}, fmt.Errorf("unknown kind %q", args.Kind)
		}
		kinds = []domain.EntryKind{k}
	}
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, maxQueryLimit)

	entries, err := s.engine.QueryMemory(ctx, args.NeuronID, kinds, limit)
	if err != nil {
		return QueryResponse{}, fmt.Errorf("query failed: %w", err)
	}
	if entries == nil {
		entries = []domain.MemoryEntry{}
	}
	return QueryResponse{Entries: entries}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(topologyURI, "Neuron topology",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.engine.Declarations())
		if err != nil {
			return nil, fmt.Errorf("failed to encode topology: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      topologyURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

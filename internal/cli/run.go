package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aretw0/strata/internal/presentation/graph"
	"github.com/aretw0/strata/internal/presentation/tui"
	"github.com/aretw0/strata/pkg/backend"
	"github.com/aretw0/strata/pkg/domain"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	ConfigPath   string
	TopologyPath string
	Content      string
	NeuronID     string
	Mode         string
	Timeout      time.Duration
	JSON         bool
	Plain        bool
	// Graph appends a Mermaid flowchart highlighting the terminal neurons.
	Graph bool
	Debug bool
}

// RunReport is the JSON document printed by run --json.
type RunReport struct {
	Outcome domain.Outcome   `json:"outcome"`
	Costs   domain.CostStats `json:"costs"`
	Mode    string           `json:"mode"`
	Error   string           `json:"error,omitempty"`
}

// Execute submits one request, waits for the chain to drain and prints the outcome.
// The returned error is the terminal error when no result was produced.
func Execute(ctx context.Context, opts RunOptions, stdout io.Writer) error {
	if opts.Content == "" {
		return fmt.Errorf("content is required")
	}
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Mode != "" {
		cfg.Backend.Mode = backend.Mode(opts.Mode)
		if err := cfg.Validate(); err != nil {
			return err
		}
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

	if err := st.Engine.Start(ctx); err != nil {
		return err
	}
	defer st.Engine.Stop()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	var (
		out    domain.Outcome
		runErr error
	)
	if opts.NeuronID != "" {
		out, runErr = st.Engine.SubmitTo(ctx, opts.NeuronID, opts.Content)
	} else {
		out, runErr = st.Engine.Submit(ctx, opts.Content)
	}
	logger.Info("Request finished", "batch_id", out.BatchID, "results", len(out.Results), "failures", len(out.Failures), "duration", out.Duration)

	if opts.JSON {
		report := RunReport{Outcome: out, Costs: st.Engine.Costs(), Mode: string(st.Engine.Mode())}
		if runErr != nil {
			report.Error = runErr.Error()
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		return runErr
	}

	render := tui.NewRenderer(opts.Plain || !isTerminal(stdout))
	rendered, err := render(tui.OutcomeMarkdown(out))
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	fmt.Fprint(stdout, rendered)
	if opts.Graph {
		fmt.Fprintf(stdout, "\n```mermaid\n%s```\n", graph.GenerateMermaid(st.Engine.Topology(), graph.OverlayFrom(out)))
	}

	costs := st.Engine.Costs()
	printSystemMessage(stdout, "backend %s, %d paid calls, $%.4f spent this hour", st.Engine.Mode(), costs.TotalCalls, costs.Hour.Cost)
	return runErr
}

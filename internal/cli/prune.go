package cli

import (
	"context"
	"io"
)

// Prune runs one retention pass against the configured store.
func Prune(ctx context.Context, configPath, topologyPath string, debug bool, stdout io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := createLogger(cfg, debug)
	if err != nil {
		return err
	}
	st, err := BuildEngine(cfg, topologyPath, logger, debug)
	if err != nil {
		return err
	}
	defer st.Close()

	removed, err := st.Engine.Prune(ctx)
	if err != nil {
		return err
	}
	printSystemMessage(stdout, "pruned %d memory entries older than %d days below importance %.2f",
		removed, cfg.Retention.RetentionDays, cfg.Retention.MinImportance)
	return nil
}

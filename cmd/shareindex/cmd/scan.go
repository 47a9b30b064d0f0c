package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var forceRescan bool

// scanCmd performs a one-shot Initialize + Scan and exits, for cron-style
// invocation rather than the long-running serve daemon.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan configured share roots into the catalog once and exit",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&forceRescan, "force", false, "rebuild the catalog from scratch, ignoring any existing backup")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg)

	svc, primary, _, err := buildService(cfg)
	if err != nil {
		return err
	}
	defer primary.Close()

	ctx := context.Background()
	if err := svc.Initialize(ctx, forceRescan); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	result, err := svc.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	st := svc.State().CurrentValue()
	log.Info().
		Bool("cancelled", result.Cancelled).
		Bool("faulted", result.Faulted).
		Int("directories", st.Directories).
		Int("files", st.Files).
		Msg("scan complete")

	return nil
}

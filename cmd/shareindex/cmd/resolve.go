package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// resolveCmd resolves a single masked filename to its local path and size,
// for scripting/debugging a peer's download request by hand.
var resolveCmd = &cobra.Command{
	Use:   "resolve <masked-filename>",
	Short: "Resolve a masked filename to its local path and size",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
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

	if err := svc.Initialize(context.Background(), false); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	localPath, size, err := svc.ResolveFile(args[0])
	if err != nil {
		return fmt.Errorf("resolve %q: %w", args[0], err)
	}

	fmt.Printf("%s\t%d bytes\n", localPath, size)
	return nil
}

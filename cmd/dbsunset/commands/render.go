package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbsunset/dbsunset/internal/dashboard"
	"github.com/dbsunset/dbsunset/internal/worklog"
)

const renderFilePerm = 0o644

// ErrNoOutputFile is returned when the --output flag is not set.
var ErrNoOutputFile = errors.New("output file is required (use --output)")

// NewRenderCommand creates the render subcommand. It turns a saved workflow
// log snapshot (json or json.lz4) into a standalone HTML dashboard.
func NewRenderCommand() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "render <snapshot-file>",
		Short: "Render a workflow log snapshot as an HTML dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if outputFile == "" {
				return ErrNoOutputFile
			}

			return runRender(args[0], outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "output HTML file")

	return cmd
}

func runRender(snapshotPath, outputFile string) error {
	entries, err := worklog.LoadSnapshotFile(snapshotPath)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	out, err := os.OpenFile(outputFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, renderFilePerm)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	renderErr := dashboard.RenderWorkflow(out, workflowIDFromPath(snapshotPath), entries)

	closeErr := out.Close()
	if renderErr != nil {
		return renderErr
	}

	return closeErr
}

// workflowIDFromPath recovers the workflow id from a snapshot filename like
// wf-1a2b3c4d.json.lz4.
func workflowIDFromPath(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, ".lz4")
	base = strings.TrimSuffix(base, ".json")

	return base
}

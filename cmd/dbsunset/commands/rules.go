package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/dbsunset/dbsunset/internal/classify"
	"github.com/dbsunset/dbsunset/internal/rules"
)

// RulesCommand holds configuration for the rules command.
type RulesCommand struct {
	sourceType string
	database   string

	out io.Writer
}

// NewRulesCommand creates the rules subcommand: it prints the effective
// refactoring rule packs, optionally filtered by source type, with patterns
// previewed against a concrete database name.
func NewRulesCommand() *cobra.Command {
	rc := &RulesCommand{out: os.Stdout}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Show the effective refactoring rule packs",
		RunE: func(_ *cobra.Command, _ []string) error {
			return rc.Run()
		},
	}

	cmd.Flags().StringVar(&rc.sourceType, "type", "", "only show rules for one source type")
	cmd.Flags().StringVar(&rc.database, "database", "", "preview patterns substituted for this database")

	return cmd
}

// Run prints the rule table.
func (rc *RulesCommand) Run() error {
	engine, err := rules.NewEngine()
	if err != nil {
		return err
	}

	types := engine.SourceTypes()

	if rc.sourceType != "" {
		wanted, parseErr := classify.ParseSourceType(rc.sourceType)
		if parseErr != nil {
			return parseErr
		}

		types = []classify.SourceType{wanted}
	}

	tbl := table.NewWriter()
	tbl.SetOutputMirror(rc.out)
	tbl.AppendHeader(table.Row{"Type", "Rule", "Action", "Frameworks", "Patterns"})

	rows := 0

	for _, sourceType := range types {
		for _, rule := range engine.RulesFor(sourceType) {
			patterns := rule.Patterns
			if rc.database != "" {
				patterns = rules.PreviewPatterns(rule, rc.database)
			}

			tbl.AppendRow(table.Row{
				string(sourceType),
				rule.ID,
				string(rule.Action),
				strings.Join(rule.RequiredFrameworks, ", "),
				strings.Join(patterns, "\n"),
			})
			rows++
		}
	}

	tbl.Render()
	fmt.Fprintf(rc.out, "%d rule(s)\n", rows)

	return nil
}

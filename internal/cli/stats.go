package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edwinsyarief/sekai"
)

// StatsResult holds the counters of a scenario world.
type StatsResult struct {
	Scenario string          `json:"scenario"`
	Info     sekai.WorldInfo `json:"info"`
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stats <scenario.yaml>",
		Short:         "Print the table, id record and query counters of a scenario world",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runStats(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	sw, err := loadScenario(opts, f, path)
	if err != nil {
		return err
	}
	defer sw.Fini()
	defer func() { _ = sw.Logger().Sync() }()

	res := StatsResult{Scenario: sw.Scenario.Name, Info: sw.Info()}
	return f.Success(res, renderStats(res))
}

func renderStats(res StatsResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", res.Scenario)
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	info := res.Info
	for _, row := range []struct {
		name  string
		value any
	}{
		{"entities", info.EntityCount},
		{"tables", info.TableCount},
		{"empty tables", info.EmptyTableCount},
		{"id records", info.IDRecordCount},
		{"storage tables", info.StorageTableCount},
		{"queries", info.QueryCount},
		{"cached queries", info.CachedQueryCount},
		{"tables created", info.TablesCreatedTotal},
		{"tables deleted", info.TablesDeletedTotal},
		{"structural version", info.StructuralVersion},
	} {
		fmt.Fprintf(tw, "  %s\t%v\n", row.name, row.value)
	}
	_ = tw.Flush()
	return b.String()
}

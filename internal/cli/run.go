package cli

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edwinsyarief/sekai/internal/scenario"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	*RootOptions
	Query string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Build a scenario world and print the results of its queries",
		Long: `Build the world described by a scenario file, evaluate its queries and
print one row per matched entity with the ids, sources and variables of the
match.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "only run the named query")

	return cmd
}

func runRun(opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	sw, err := loadScenario(opts.RootOptions, f, path)
	if err != nil {
		return err
	}
	defer sw.Fini()
	defer func() { _ = sw.Logger().Sync() }()

	queries := selectQueries(sw, opts.Query)
	if queries == nil && opts.Query != "" {
		_ = f.Error(ErrCodeQuery, fmt.Sprintf("no query named %q", opts.Query), nil)
		return WrapExitError(ExitCommandError, "run", fmt.Errorf("no query named %q", opts.Query))
	}
	results := make([]scenario.Result, 0, len(queries))
	for _, q := range queries {
		results = append(results, sw.RunQuery(q))
		f.VerboseLog("query %s: %d rows", q.Name, len(results[len(results)-1].Rows))
	}
	return f.Success(results, renderResults(results))
}

func renderResults(results []scenario.Result) string {
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "query %s", res.Query)
		if res.Cached {
			b.WriteString(" (cached)")
		}
		fmt.Fprintf(&b, ": %d rows\n", len(res.Rows))
		for _, r := range res.Rows {
			b.WriteString("  ")
			b.WriteString(renderRow(r))
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func renderRow(r scenario.Row) string {
	var parts []string
	entity := r.Entity
	if entity == "" {
		entity = "-"
	}
	parts = append(parts, entity)

	fields := make([]string, len(r.IDs))
	for f, id := range r.IDs {
		switch {
		case id == "":
			fields[f] = "!"
		case r.Sources != nil && r.Sources[f] != "":
			fields[f] = id + "@" + r.Sources[f]
		default:
			fields[f] = id
		}
	}
	parts = append(parts, "["+strings.Join(fields, ", ")+"]")

	for _, name := range slices.Sorted(maps.Keys(r.Vars)) {
		parts = append(parts, "$"+name+"="+r.Vars[name])
	}
	for _, comp := range slices.Sorted(maps.Keys(r.Values)) {
		vals := r.Values[comp]
		kv := make([]string, 0, len(vals))
		for _, field := range slices.Sorted(maps.Keys(vals)) {
			kv = append(kv, fmt.Sprintf("%s:%g", field, vals[field]))
		}
		parts = append(parts, comp+"{"+strings.Join(kv, " ")+"}")
	}
	return strings.Join(parts, " ")
}

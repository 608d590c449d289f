package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// PlanOptions holds options for the plan command.
type PlanOptions struct {
	*RootOptions
	Query string
}

// PlanResult is the compiled program of one query.
type PlanResult struct {
	Query  string `json:"query"`
	Cached bool   `json:"cached"`
	Fields int    `json:"fields"`
	Vars   int    `json:"vars"`
	Plan   string `json:"plan"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <scenario.yaml>",
		Short: "Print the compiled instructions of scenario queries",
		Long: `Compile the queries of a scenario file and print their instruction
lists, one instruction per line with its jump targets.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "only print the named query")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
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
		return WrapExitError(ExitCommandError, "plan", fmt.Errorf("no query named %q", opts.Query))
	}

	plans := make([]PlanResult, 0, len(queries))
	var b strings.Builder
	for i, q := range queries {
		p := PlanResult{
			Query:  q.Name,
			Cached: q.Query.IsCached(),
			Fields: q.Query.FieldCount(),
			Vars:   q.Query.VarCount(),
			Plan:   q.Query.Plan(),
		}
		plans = append(plans, p)
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "query %s (fields: %d, vars: %d, cached: %t)\n", p.Query, p.Fields, p.Vars, p.Cached)
		b.WriteString(p.Plan)
		if !strings.HasSuffix(p.Plan, "\n") {
			b.WriteByte('\n')
		}
	}
	return f.Success(plans, b.String())
}

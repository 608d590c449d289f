package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/edwinsyarief/sekai"
	"github.com/edwinsyarief/sekai/internal/scenario"
)

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// loadConfig returns the config named by --config, or the defaults.
func loadConfig(opts *RootOptions) (*sekai.Config, error) {
	cfg := sekai.DefaultConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = sekai.LoadConfig(opts.Config); err != nil {
			return nil, err
		}
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// loadScenario builds the world of the scenario at path. Failures are
// reported through f and returned as ExitErrors.
func loadScenario(opts *RootOptions, f *OutputFormatter, path string) (*scenario.World, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	s, err := scenario.Load(path)
	if err != nil {
		_ = f.Error(ErrCodeScenario, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "load scenario", err)
	}
	f.VerboseLog("scenario %s: %d components, %d entities, %d queries",
		s.Name, len(s.Components), len(s.Entities), len(s.Queries))

	w, err := sekai.NewWorldFromConfig(cfg)
	if err != nil {
		_ = f.Error(ErrCodeConfig, err.Error(), nil)
		return nil, WrapExitError(ExitCommandError, "create world", err)
	}
	sw, err := scenario.Build(w, s)
	if err != nil {
		_ = w.Logger().Sync()
		errs := multierr.Errors(err)
		details := make([]string, len(errs))
		code, exit := ErrCodeBuild, ExitCommandError
		for i, e := range errs {
			details[i] = e.Error()
			if isQueryError(e) {
				code, exit = ErrCodeQuery, ExitFailure
			}
		}
		_ = f.Error(code, "build scenario failed", details)
		return nil, WrapExitError(exit, "build scenario", err)
	}
	return sw, nil
}

func isQueryError(err error) bool {
	var qe *sekai.QueryError
	return errors.As(err, &qe)
}

// selectQueries returns the query named name, or all queries when name is
// empty.
func selectQueries(sw *scenario.World, name string) []*scenario.Query {
	if name == "" {
		return sw.Queries
	}
	if q := sw.QueryByName(name); q != nil {
		return []*scenario.Query{q}
	}
	return nil
}

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jengzang/solarscan-backend-go/internal/config"
	"github.com/jengzang/solarscan-backend-go/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "solarscan",
		Short:         "Detect rooftop solar panels around power substations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file path (YAML)")
	pf.StringVar(&opts.logLevel, "log-level", "", "override log.level")

	cmd.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newGridCommand(opts),
	)
	return cmd
}

// load reads configuration and builds the logger. CLI logs go to stderr so
// stdout stays machine-readable.
func (o *rootOptions) load(toStderr bool) (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	logCfg := cfg.Log
	if toStderr {
		logCfg.OutputPaths = []string{"stderr"}
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

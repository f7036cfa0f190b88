package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jengzang/solarscan-backend-go/internal/app"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/pipeline"
)

type runOptions struct {
	input string
	id    string
	lat   float64
	lon   float64
	rad   float64
	full  bool
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyse substations and print the reports as JSON",
		Long: "Analyse one substation given by flags, or every substation in a JSON file\n" +
			"(an object or an array of objects with id_subestacao, lat, lon, raio_m).\n" +
			"Use --input - to read from stdin.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			inputs, err := ro.inputs(cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, logger, err := opts.load(true)
			if err != nil {
				return err
			}
			a, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.Service.RunBatch(cmd.Context(), inputs)
			if ro.full {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			return writeJSON(cmd.OutOrStdout(), reports(results))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&ro.input, "input", "i", "", "JSON file with substation inputs")
	f.StringVar(&ro.id, "id", "", "substation id")
	f.Float64Var(&ro.lat, "lat", 0, "substation latitude")
	f.Float64Var(&ro.lon, "lon", 0, "substation longitude")
	f.Float64Var(&ro.rad, "radius", 0, "scan radius in meters (0 uses the default)")
	f.BoolVar(&ro.full, "full", false, "print full results instead of reports")
	return cmd
}

func (ro *runOptions) inputs(stdin io.Reader) ([]models.SubstationInput, error) {
	if ro.input == "" {
		if ro.id == "" {
			return nil, fmt.Errorf("either --input or --id is required")
		}
		return []models.SubstationInput{{ID: ro.id, Lat: ro.lat, Lon: ro.lon, RadiusM: ro.rad}}, nil
	}

	var data []byte
	var err error
	if ro.input == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(ro.input)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return parseInputs(data)
}

// parseInputs accepts a single object or an array.
func parseInputs(data []byte) ([]models.SubstationInput, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var in models.SubstationInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("failed to parse input: %w", err)
		}
		return []models.SubstationInput{in}, nil
	}
	var inputs []models.SubstationInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("input holds no substations")
	}
	return inputs, nil
}

type reportLine struct {
	ID     string      `json:"id_subestacao"`
	RunID  string      `json:"run_id,omitempty"`
	Report interface{} `json:"report,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func reports(results []pipeline.Result) []reportLine {
	out := make([]reportLine, len(results))
	for i, res := range results {
		out[i] = reportLine{ID: res.Input.ID, RunID: res.RunID, Error: res.Error}
		if res.Report != nil {
			out[i].Report = res.Report
		}
	}
	return out
}

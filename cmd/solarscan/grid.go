package main

import (
	"github.com/spf13/cobra"

	"github.com/jengzang/solarscan-backend-go/internal/config"
	"github.com/jengzang/solarscan-backend-go/internal/models"
	"github.com/jengzang/solarscan-backend-go/internal/pipeline"
	"github.com/jengzang/solarscan-backend-go/internal/tiling"
)

type gridOutput struct {
	tiling.Grid
	Order []int `json:"order"`
}

func newGridCommand(opts *rootOptions) *cobra.Command {
	var (
		in     models.SubstationInput
		zoom   int
		legacy bool
	)
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the tile grid for a point without fetching imagery",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(true)
			if err != nil {
				return err
			}
			if zoom > 0 {
				cfg.Imagery.Zoom = zoom
			}
			if legacy {
				cfg.Grid.Mode = config.GridModeLegacy
			}
			if in.ID == "" {
				in.ID = "cli"
			}

			runner := pipeline.NewRunner(nil, nil, nil, pipeline.FromAppConfig(cfg))
			prepared, err := runner.Prepare(in)
			if err != nil {
				return err
			}
			grid, err := runner.Grid(prepared)
			if err != nil {
				return err
			}

			ordered := tiling.OrderCenterOut(grid.Tiles)
			out := gridOutput{Grid: grid, Order: make([]int, len(ordered))}
			for i, t := range ordered {
				out.Order[i] = t.Index
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&in.Lat, "lat", 0, "center latitude")
	f.Float64Var(&in.Lon, "lon", 0, "center longitude")
	f.Float64Var(&in.RadiusM, "radius", 0, "radius in meters (0 uses the default)")
	f.IntVar(&zoom, "zoom", 0, "override imagery zoom")
	f.BoolVar(&legacy, "legacy", false, "use the fixed 3x3 grid")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

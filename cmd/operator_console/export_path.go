package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roadops/operator-console/internal/geo"
	"github.com/roadops/operator-console/internal/storage/memory"
)

var (
	exportOut string
	exportLon float64
	exportLat float64
)

var exportPathCmd = &cobra.Command{
	Use:   "export-path <recording.json[.gz]>",
	Short: "Write the final path proposal of a recording as GeoJSON",
	Long: `Reads a session recording written by the memory backend and writes its
final path proposal as a GeoJSON Feature. Scene coordinates are kept unless
--lon and --lat anchor the scene origin, in which case the line is emitted
in WGS84.`,
	Args: cobra.ExactArgs(1),
	RunE: runExportPath,
}

func init() {
	exportPathCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
	exportPathCmd.Flags().Float64Var(&exportLon, "lon", 0, "Longitude of the scene origin")
	exportPathCmd.Flags().Float64Var(&exportLat, "lat", 0, "Latitude of the scene origin")
}

func runExportPath(cmd *cobra.Command, args []string) error {
	export, err := memory.ReadExport(args[0])
	if err != nil {
		return err
	}
	proposal, ok := export.FinalProposal()
	if !ok {
		return errors.New("recording has no path proposals")
	}

	var georef *geo.Georeferencer
	if exportLon != 0 || exportLat != 0 {
		georef, err = geo.NewGeoreferencer(exportLon, exportLat)
		if err != nil {
			return err
		}
	}

	feature, err := geo.PathFeature(proposal, georef)
	if err != nil {
		return fmt.Errorf("failed to build feature: %w", err)
	}
	feature = append(feature, '\n')

	if exportOut == "" {
		_, err = cmd.OutOrStdout().Write(feature)
		return err
	}
	return os.WriteFile(exportOut, feature, 0644)
}

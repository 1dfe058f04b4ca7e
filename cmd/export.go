package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/reference"
	"github.com/sells-group/siteselect/internal/report"
)

var exportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Write ranked results to an Excel workbook",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			return eris.New("export: --out is required")
		}

		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		venues, _ := cmd.Flags().GetBool("venues")
		category, _ := cmd.Flags().GetString("category")
		sheet, _ := cmd.Flags().GetString("sheet")

		recs, err := searchForExport(ctx, env, queryFromArgs(cmd, args), venues, category)
		if err != nil {
			return err
		}
		if err := report.SaveXLSX(out, sheet, recs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d results to %s.\n", len(recs), out)
		return nil
	},
}

var importVenuesCmd = &cobra.Command{
	Use:   "import-venues <file.shp|file.xlsx>",
	Short: "Import venues into a reference tables file",
	Long:  "Reads venues from a point shapefile or a workbook and writes the reference tables with that venue list to --out. Point reference.path at the result to serve it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		venues, err := readVenues(args[0])
		if err != nil {
			return err
		}
		if len(venues) == 0 {
			return eris.Errorf("import-venues: no venues found in %s", args[0])
		}

		ref, err := reference.LoadFile(cfg.Reference.Path)
		if err != nil {
			return err
		}
		if merge, _ := cmd.Flags().GetBool("merge"); merge {
			venues = mergeVenues(ref.Venues, venues)
		}
		ref.Venues = venues

		out, _ := cmd.Flags().GetString("out")
		if err := ref.Save(out); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d venues to %s.\n", len(venues), out)
		return nil
	},
}

// readVenues picks the reader by file extension.
func readVenues(path string) ([]model.PointOfInterest, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return reference.LoadVenuesShapefile(path)
	case ".xlsx":
		return report.ReadVenuesXLSX(path)
	default:
		return nil, eris.Errorf("import-venues: unsupported file type %q", filepath.Ext(path))
	}
}

// mergeVenues appends incoming venues to existing ones. An incoming venue
// replaces an existing one with the same name.
func mergeVenues(existing, incoming []model.PointOfInterest) []model.PointOfInterest {
	idx := make(map[string]int, len(existing))
	out := make([]model.PointOfInterest, 0, len(existing)+len(incoming))
	for _, v := range existing {
		idx[strings.ToLower(v.Name)] = len(out)
		out = append(out, v)
	}
	for _, v := range incoming {
		key := strings.ToLower(v.Name)
		if i, ok := idx[key]; ok {
			out[i] = v
			continue
		}
		idx[key] = len(out)
		out = append(out, v)
	}
	return out
}

func init() {
	addQueryFlags(exportCmd)
	exportCmd.Flags().String("out", "", "output .xlsx path")
	exportCmd.Flags().String("sheet", report.DefaultSheet, "sheet name")
	exportCmd.Flags().Bool("venues", false, "export venue search results")
	exportCmd.Flags().String("category", "", "venue category filter (implies --venues)")

	importVenuesCmd.Flags().String("out", "reference.yaml", "output reference tables path")
	importVenuesCmd.Flags().Bool("merge", false, "merge with the current venue list instead of replacing it")

	rootCmd.AddCommand(exportCmd, importVenuesCmd)
}

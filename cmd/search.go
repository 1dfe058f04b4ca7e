package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/sells-group/siteselect/internal/model"
	"github.com/sells-group/siteselect/internal/search"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Rank areas for a business query",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		q := queryFromArgs(cmd, args)
		useAI, _ := cmd.Flags().GetBool("ai")
		counties, _ := cmd.Flags().GetStringSlice("county")

		var recs []model.Recommendation
		switch {
		case useAI:
			res, err := env.Search.AISearch(ctx, q)
			if err != nil {
				return err
			}
			recs = res.Recommendations
		case len(counties) > 0:
			recs, err = env.Search.AdvancedSearch(ctx, q, model.Filters{Counties: counties})
		default:
			recs, err = env.Search.Search(ctx, q)
		}
		if err != nil {
			return err
		}
		return writeRecommendations(cmd, recs)
	},
}

var venuesCmd = &cobra.Command{
	Use:   "venues [query]",
	Short: "Rank venues by the metrics of their nearest area",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		category, _ := cmd.Flags().GetString("category")
		recs, err := env.Search.VenueSearch(ctx, queryFromArgs(cmd, args), search.VenueFilters{Category: category})
		if err != nil {
			return err
		}
		return writeRecommendations(cmd, recs)
	},
}

func queryFromArgs(cmd *cobra.Command, args []string) model.Query {
	bt, _ := cmd.Flags().GetString("business-type")
	q := model.Query{BusinessType: bt}
	if len(args) > 0 {
		q.Query = args[0]
	}
	return q
}

func writeRecommendations(cmd *cobra.Command, recs []model.Recommendation) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}
	if len(recs) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No matching locations.")
		return nil
	}
	formatRecommendations(cmd.OutOrStdout(), recs)
	return nil
}

// formatRecommendations renders recommendations as an aligned table. The
// venue columns appear only when a result carries a nearest area.
func formatRecommendations(w io.Writer, recs []model.Recommendation) {
	venues := false
	for _, r := range recs {
		if r.NearestArea != "" {
			venues = true
			break
		}
	}

	header := []string{"#", "Area", "Score", "Pop Density", "Biz Density", "Transit", "Apartments"}
	if venues {
		header = append(header, "Nearest Area", "Km", "Category")
	}
	header = append(header, "Top Reason")

	rows := make([][]string, 0, len(recs))
	for i, r := range recs {
		row := []string{
			strconv.Itoa(i + 1),
			r.Area,
			strconv.FormatFloat(r.Score, 'f', 1, 64),
			strconv.Itoa(r.PopulationDensity),
			strconv.Itoa(r.BusinessDensity),
			strconv.FormatFloat(r.TransportScore, 'f', 1, 64),
			intOrDash(r.ApartmentCount),
		}
		if venues {
			dist := "-"
			if r.DistanceKm != nil {
				dist = strconv.FormatFloat(*r.DistanceKm, 'f', 1, 64)
			}
			row = append(row, r.NearestArea, dist, r.Category)
		}
		reason := ""
		if len(r.Reasons) > 0 {
			reason = r.Reasons[0]
		}
		rows = append(rows, append(row, reason))
	}
	printTable(w, header, rows)
}

func intOrDash(p *int) string {
	if p == nil {
		return "-"
	}
	return strconv.Itoa(*p)
}

func printTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.AppendBulk(rows)
	table.Render()
}

// searchForExport runs the mode selected by the export flags.
func searchForExport(ctx context.Context, env *appEnv, q model.Query, venues bool, category string) ([]model.Recommendation, error) {
	if venues || category != "" {
		return env.Search.VenueSearch(ctx, q, search.VenueFilters{Category: category})
	}
	return env.Search.Search(ctx, q)
}

func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().String("business-type", search.DefaultBusinessType, "business type to score for")
	cmd.Flags().Bool("json", false, "print results as JSON")
}

func init() {
	addQueryFlags(searchCmd)
	searchCmd.Flags().Bool("ai", false, "re-rank with the AI advisor")
	searchCmd.Flags().StringSlice("county", nil, "only areas in these counties")

	addQueryFlags(venuesCmd)
	venuesCmd.Flags().String("category", "", "only venues whose category contains this text")

	rootCmd.AddCommand(searchCmd, venuesCmd)
}

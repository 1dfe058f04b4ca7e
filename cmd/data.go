package main

import (
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%s).\n", cfg.Store.Driver)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Replace all areas and metrics with the reference tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.ETL.Seed(ctx)
		if err != nil {
			return eris.Wrap(err, "seed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d areas and %d metric rows.\n", res.Areas, res.Metrics)
		return nil
	},
}

var etlCmd = &cobra.Command{
	Use:   "etl",
	Short: "Refresh area metrics",
}

var etlDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Upsert reference cities and recompute their densities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.ETL.DiscoverCities(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Discovered %d new cities, updated %d existing cities. Total: %d.\n",
			res.Created, res.Updated, res.Total)
		return nil
	},
}

var etlTransportCmd = &cobra.Command{
	Use:   "transport",
	Short: "Recompute transit scores",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.ETL.UpdateTransport(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated transportation scores for %d of %d areas.\n", res.Updated, res.TotalAreas)
		return nil
	},
}

var etlApartmentsCmd = &cobra.Command{
	Use:   "apartments",
	Short: "Refresh apartment counts from census or reference data",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if live, _ := cmd.Flags().GetBool("live"); live {
			cfg.Census.UseLiveAPI = true
		}
		env, err := initEnv(ctx, "store")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.ETL.UpdateApartments(ctx)
		if err != nil {
			return err
		}
		formatApartments(cmd.OutOrStdout(), res.Updated, res.Live, res.Fallback)
		return nil
	},
}

func formatApartments(w io.Writer, updated, live, fallback int) {
	fmt.Fprintf(w, "Updated apartment counts for %d areas (%d from census, %d from reference data).\n",
		updated, live, fallback)
}

func init() {
	etlApartmentsCmd.Flags().Bool("live", false, "query the census API for areas with a place code")

	etlCmd.AddCommand(etlDiscoverCmd, etlTransportCmd, etlApartmentsCmd)
	rootCmd.AddCommand(migrateCmd, seedCmd, etlCmd)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/neilk/octowatch/internal/export"
	"github.com/neilk/octowatch/internal/octopus"
	"github.com/neilk/octowatch/internal/tariff"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "octowatch",
		Short: "Octowatch - Track Octopus Agile half-hourly electricity prices",
		Long: `Octowatch follows the Octopus Agile tariff: it fetches half-hourly
unit rates, finds the cheapest windows of the day and reconciles metered
consumption against the published prices.`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.octowatch/config.yaml)")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(regionCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(windowsCmd())
	rootCmd.AddCommand(consumptionCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".octowatch")
		os.MkdirAll(configDir, 0755)

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("octowatch")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func newClient() *octopus.Client {
	return octopus.NewClient(octopus.Config{
		Product: viper.GetString("product"),
		APIKey:  viper.GetString("api_key"),
	})
}

func resolveDate(date string) (string, error) {
	if date == "today" {
		return time.Now().UTC().Format("2006-01-02"), nil
	}
	if date == "yesterday" {
		return time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02"), nil
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", fmt.Errorf("invalid date format (use YYYY-MM-DD): %w", err)
	}
	return date, nil
}

func fetchTable(ctx context.Context, region, date string) (tariff.DayRateTable, error) {
	day, err := resolveDate(date)
	if err != nil {
		return tariff.DayRateTable{}, err
	}
	table, err := newClient().Rates(ctx, region, day)
	if err != nil {
		return tariff.DayRateTable{}, err
	}
	table.Date = day
	return table, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func regionCmd() *cobra.Command {
	var postcode string

	cmd := &cobra.Command{
		Use:   "region",
		Short: "Resolve a postcode to its grid supply point region",
		RunE: func(cmd *cobra.Command, args []string) error {
			region, err := newClient().ResolveRegion(context.Background(), postcode)
			if err != nil {
				return err
			}
			fmt.Println(region)
			return nil
		},
	}

	cmd.Flags().StringVarP(&postcode, "postcode", "p", "", "UK postcode (required)")
	cmd.MarkFlagRequired("postcode")

	return cmd
}

func fetchCmd() *cobra.Command {
	var region string
	var date string

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch half-hourly Agile rates for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := fetchTable(context.Background(), region, date)
			if err != nil {
				return err
			}
			return printJSON(table)
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "C", "Octopus region (A-P)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date to fetch (YYYY-MM-DD, 'today' or 'yesterday')")

	return cmd
}

func statsCmd() *cobra.Command {
	var region string
	var date string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show min, max and average rate for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := fetchTable(context.Background(), region, date)
			if err != nil {
				return err
			}
			stats, err := tariff.Stats(table)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "C", "Octopus region (A-P)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date (YYYY-MM-DD, 'today' or 'yesterday')")

	return cmd
}

func windowsCmd() *cobra.Command {
	var region string
	var date string

	cmd := &cobra.Command{
		Use:   "windows",
		Short: "Find the cheapest contiguous windows of a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := fetchTable(context.Background(), region, date)
			if err != nil {
				return err
			}
			windows := tariff.LowestCostWindows(table, tariff.WindowLengths)

			// Stable order for display: shortest window first.
			out := make([]tariff.StatWindow, 0, len(windows))
			for _, n := range tariff.WindowLengths {
				if w, ok := windows[n]; ok {
					out = append(out, w)
				}
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "C", "Octopus region (A-P)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date (YYYY-MM-DD, 'today' or 'yesterday')")

	return cmd
}

func consumptionCmd() *cobra.Command {
	var fuel, point, serial string
	var smets2 bool

	cmd := &cobra.Command{
		Use:   "consumption",
		Short: "Fetch yesterday's metered half-hour readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if viper.GetString("api_key") == "" {
				return fmt.Errorf("consumption queries need an API key (set api_key in config or OCTOWATCH_API_KEY)")
			}

			from, to := octopus.ConsumptionWindow(time.Now(), time.Local, smets2)
			records, err := newClient().Consumption(context.Background(), tariff.MeterRef{
				Fuel: fuel, Point: point, Serial: serial,
			}, from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Fetched %d readings, total %.4f\n", len(records), tariff.TotalQuantity(records))
			return printJSON(records)
		},
	}

	cmd.Flags().StringVar(&fuel, "fuel", "electricity", "Meter fuel (electricity or gas)")
	cmd.Flags().StringVar(&point, "point", "", "Meter point (MPAN/MPRN, required)")
	cmd.Flags().StringVar(&serial, "serial", "", "Meter serial number (required)")
	cmd.Flags().BoolVar(&smets2, "smets2", false, "Meter is SMETS2")
	cmd.MarkFlagRequired("point")
	cmd.MarkFlagRequired("serial")

	return cmd
}

func exportCmd() *cobra.Command {
	var region string
	var date string
	var dir string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a day's rates to CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := fetchTable(context.Background(), region, date)
			if err != nil {
				return err
			}
			path, err := export.RatesFile(dir, region, table)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&region, "region", "r", "C", "Octopus region (A-P)")
	cmd.Flags().StringVarP(&date, "date", "d", "today", "Date (YYYY-MM-DD, 'today' or 'yesterday')")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the CSV into")

	return cmd
}

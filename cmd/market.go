package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/wecanfarm/wecanfarm/internal/market"
)

var marketJSON bool

var marketCmd = &cobra.Command{
	Use:   "market",
	Short: "Browse produce listings",
	Long: "Lists the produce on the market, featured listings first. Listings\n" +
		"registered in the app live for that app session only.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var seed []market.Listing
		if cfg.Seed() {
			seed = market.SeedListings(time.Now())
		}
		reg := market.NewRegistry(seed...)
		out := cmd.OutOrStdout()
		if marketJSON {
			return writeJSON(out, reg.All())
		}
		if reg.Len() == 0 {
			fmt.Fprintln(out, "No listings yet.")
			return nil
		}
		featured, others := reg.Featured(), reg.Others()
		fmt.Fprintln(out, "Featured")
		printListings(out, featured)
		if len(others) > 0 {
			fmt.Fprintln(out, "\nMore produce")
			printListings(out, others)
		}
		return nil
	},
}

func printListings(w io.Writer, ls []market.Listing) {
	for _, l := range ls {
		fmt.Fprintf(w, "  %-26s %8s won/%-6s %-12s %s\n",
			l.DisplayName(), l.Price, l.Unit, l.Seller, l.PickupLocation)
	}
}

func init() {
	marketCmd.Flags().BoolVar(&marketJSON, "json", false, "print listings as JSON")
	rootCmd.AddCommand(marketCmd)
}

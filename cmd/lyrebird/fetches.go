package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var fetchesLimit int

var fetchesCmd = &cobra.Command{
	Use:   "fetches",
	Short: "List recent remote lyric and cover lookups",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := bootstrap()
		if err != nil {
			return err
		}
		defer svc.Close()

		records, err := svc.db.RecentFetches(fetchesLimit)
		if err != nil {
			return fmt.Errorf("error reading fetch ledger: %w", err)
		}
		if len(records) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No remote lookups recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tKIND\tOUTCOME\tPROVIDER\tTITLE\tARTIST\tERROR")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				r.FetchedAt.Local().Format("2006-01-02 15:04"),
				r.Kind, r.Outcome, r.Provider, r.Title, r.Artist, r.Error)
		}
		return w.Flush()
	},
}

func init() {
	fetchesCmd.Flags().IntVarP(&fetchesLimit, "limit", "n", 20, "number of lookups to show")
	rootCmd.AddCommand(fetchesCmd)
}

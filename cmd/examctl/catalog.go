package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gokatarajesh/exam-engine/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Print the sections of a catalog profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, _ := cmd.Flags().GetString("profile")
		asJSON, _ := cmd.Flags().GetBool("json")

		cat, err := catalog.Lookup(profile)
		if err != nil {
			return fmt.Errorf("%w (known: %v)", err, catalog.Profiles())
		}
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(cat)
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tID\tNAME\tBUCKET\tMINUTES\tQUESTIONS")
		for i, s := range cat.Sections {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n", i+1, s.ID, s.DisplayName, s.Bucket, s.DurationSeconds/60, s.QuestionCount)
		}
		fmt.Fprintf(tw, "\ttotal\t\t\t%.0f\t\n", cat.TotalDuration().Minutes())
		return tw.Flush()
	},
}

func init() {
	catalogCmd.Flags().String("profile", catalog.ProfileSAT, "Catalog profile")
	catalogCmd.Flags().Bool("json", false, "Print as JSON")
}

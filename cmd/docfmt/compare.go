package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/feichai0017/docformat/internal/namelist"
)

func compareCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "compare LIST1 LIST2",
		Short: "Compare two name lists (one name per line)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text1, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			text2, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			res := namelist.CompareText(string(text1), string(text2))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "Only in %s (%d):\n", args[0], len(res.OnlyInList1))
			for _, n := range res.OnlyInList1 {
				fmt.Fprintf(out, "  %s\n", n)
			}
			fmt.Fprintf(out, "Only in %s (%d):\n", args[1], len(res.OnlyInList2))
			for _, n := range res.OnlyInList2 {
				fmt.Fprintf(out, "  %s\n", n)
			}
			fmt.Fprintf(out, "Duplicates (%d):\n", len(res.DuplicatesInBoth))
			for _, d := range res.DuplicatesInBoth {
				fmt.Fprintf(out, "  %-20s x%d\n", d.Name, d.Count)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

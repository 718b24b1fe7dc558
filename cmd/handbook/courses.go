package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var coursesJSON bool

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List the courses present in the index",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := assemble(ctx, true)
		if err != nil {
			return err
		}
		defer c.Close()

		refs, err := c.index.Courses(ctx)
		if err != nil {
			return fmt.Errorf("list courses: %w", err)
		}
		if coursesJSON {
			data, err := json.MarshalIndent(refs, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		}
		if len(refs) == 0 {
			cmd.Println("No courses indexed.")
			return nil
		}
		for _, r := range refs {
			cmd.Printf("%s  %s\n", r.Code, r.Name)
		}
		return nil
	},
}

func init() {
	coursesCmd.Flags().BoolVar(&coursesJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(coursesCmd)
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all projects",
	Run: func(cmd *cobra.Command, args []string) {
		repo, closeRepo, err := openRepository(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer closeRepo()

		result, err := projectService(repo).ListProjects(cmd.Context())
		if err != nil {
			fmt.Printf("Error listing projects: %v\n", err)
			os.Exit(1)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				fmt.Printf("Error marshaling projects: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		if result.Total == 0 {
			fmt.Println("No projects found. Create one with 'musicforge new <name>'.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tGENRE\tMOOD\tSTATUS\tSTEMS\tUPDATED")
		for _, p := range result.Projects {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
				p.ID, p.Name, p.Genre, p.Mood, p.Status, p.StemCount, p.UpdatedAt.Format("2006-01-02 15:04"))
		}
		w.Flush()
	},
}

func init() {
	listCmd.Flags().Bool("json", false, "Print projects as JSON")
	rootCmd.AddCommand(listCmd)
}

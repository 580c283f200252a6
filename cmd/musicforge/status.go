package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status <project-id>",
	Aliases: []string{"show"},
	Short:   "Show project details",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, closeRepo, err := openRepository(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer closeRepo()

		p, err := projectService(repo).GetProject(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error loading project '%s': %v\n", args[0], err)
			os.Exit(1)
		}

		spec := p.Specification
		fmt.Printf("%s (%s)\n", p.Name, p.ID)
		fmt.Printf("  Status:   %s\n", p.Status)
		if p.FailureReason != "" {
			fmt.Printf("  Failure:  %s\n", p.FailureReason)
		}
		fmt.Printf("  Genre:    %s | Mood: %s\n", spec.Genre, spec.Mood)
		fmt.Printf("  Key:      %s | Tempo: %s | Time: %s\n", spec.Key, spec.Tempo, spec.TimeSignature)
		fmt.Printf("  Duration: %ds | Vocals: %s\n", spec.DurationSeconds, yesNo(spec.HasVocals))

		if a := p.Arrangement; a != nil {
			fmt.Printf("  Chords:   %s\n", strings.Join(a.ChordProgression, " - "))
			if len(a.Sections) > 0 {
				fmt.Printf("  Sections: %s\n", strings.Join(a.Sections, ", "))
			}
			if a.Style != "" {
				fmt.Printf("  Style:    %s\n", a.Style)
			}
		}

		if len(p.Stems) > 0 {
			fmt.Println("  Stems:")
			for _, s := range p.Stems {
				fmt.Printf("    - %-8s %s\n", s.Name, s.Path)
			}
		}
		if p.MasterFilePath != "" {
			fmt.Printf("  Master:   %s\n", p.MasterFilePath)
		}

		if p.Context != nil {
			if checkpoints := p.Context.FocusCheckpoints(); len(checkpoints) > 0 {
				fmt.Println("  Checkpoints:")
				for _, c := range checkpoints {
					fmt.Printf("    - %s\n", c)
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/makeasinger/musicforge/internal/agent"
)

var generateCmd = &cobra.Command{
	Use:     "generate <project-id>",
	Aliases: []string{"gen"},
	Short:   "Generate music for a project",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, closeRepo, err := openRepository(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer closeRepo()

		prompt, _ := cmd.Flags().GetString("prompt")
		if prompt == "" {
			p, err := repo.GetByID(cmd.Context(), args[0])
			if err != nil {
				fmt.Printf("Error loading project '%s': %v\n", args[0], err)
				os.Exit(1)
			}
			prompt = p.Specification.Description
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		o := newOrchestrator(repo, agent.WithObserver(printProgress))
		fmt.Printf("Generating %s...\n", args[0])
		result := o.Generate(ctx, args[0], prompt)
		printResult(result)
	},
}

var iterateCmd = &cobra.Command{
	Use:     "iterate <project-id> <feedback>",
	Short:   "Apply feedback to a generated project",
	Example: `  musicforge iterate 3f2c... "make the drums punchier" --section chorus`,
	Args:    cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		repo, closeRepo, err := openRepository(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer closeRepo()

		section, _ := cmd.Flags().GetString("section")
		feedback := strings.Join(args[1:], " ")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		o := newOrchestrator(repo, agent.WithObserver(printProgress))
		fmt.Printf("Iterating on %s: %q\n", args[0], feedback)
		result, err := o.Iterate(ctx, args[0], feedback, section)
		if err != nil {
			fmt.Printf("Error analyzing feedback: %v\n", err)
			os.Exit(1)
		}
		printResult(result)
	},
}

func init() {
	generateCmd.Flags().StringP("prompt", "p", "", "Generation prompt (defaults to the project description)")
	iterateCmd.Flags().StringP("section", "s", "", "Section the feedback targets")
	rootCmd.AddCommand(generateCmd, iterateCmd)
}

// printProgress renders each snapshot of the run as one line
func printProgress(ctx context.Context, runID string, updates <-chan agent.Snapshot) {
	for snap := range updates {
		fmt.Printf("  [%3.0f%%] %-20s %s\n", snap.Progress*100, snap.Stage.Label(), snap.Message)
	}
}

func printResult(result *agent.GenerationResult) {
	if !result.Success {
		fmt.Printf("\nGeneration failed: %s\n", result.ErrorMessage)
		os.Exit(1)
	}

	fmt.Println("\nGeneration complete.")
	for _, path := range result.StemPaths {
		fmt.Printf("  - %s\n", path)
	}
	fmt.Printf("  Master: %s\n", result.MasterFilePath)
}

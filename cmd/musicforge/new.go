package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/makeasinger/musicforge/internal/model"
)

const newExample = `  musicforge new MySong -g electronic -t 128
  musicforge new Ballad -g pop -m romantic -k "G Major" --vocals`

var newCmd = &cobra.Command{
	Use:     "new <name>",
	Short:   "Create a new music project",
	Example: newExample,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		repo, closeRepo, err := openRepository(cmd)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer closeRepo()

		flags := cmd.Flags()
		genre, _ := flags.GetString("genre")
		mood, _ := flags.GetString("mood")
		tempo, _ := flags.GetInt("tempo")
		key, _ := flags.GetString("key")
		duration, _ := flags.GetInt("duration")
		vocals, _ := flags.GetBool("vocals")
		description, _ := flags.GetString("description")

		name := args[0]
		if description == "" {
			description = fmt.Sprintf("%s - %s track", name, genre)
		}

		project, err := projectService(repo).CreateProject(cmd.Context(), &model.CreateProjectRequest{
			Name:            name,
			Description:     description,
			Genre:           model.Genre(genre),
			Mood:            model.Mood(mood),
			Tempo:           tempo,
			Key:             key,
			DurationSeconds: duration,
			HasVocals:       vocals,
		})
		if err != nil {
			fmt.Printf("Error creating project: %v\n", err)
			os.Exit(1)
		}

		spec := project.Specification
		fmt.Printf("Created project %s\n", project.Name)
		fmt.Printf("  ID: %s\n", project.ID)
		fmt.Printf("  Genre: %s | Mood: %s\n", spec.Genre, spec.Mood)
		fmt.Printf("  Key: %s | Tempo: %s\n", spec.Key, spec.Tempo)
		fmt.Printf("  Duration: %ds | Vocals: %s\n", spec.DurationSeconds, yesNo(spec.HasVocals))
		fmt.Printf("\nRun 'musicforge generate %s' to start generation.\n", project.ID)
	},
}

func init() {
	newCmd.Flags().StringP("genre", "g", string(model.GenreElectronic), "Music genre")
	newCmd.Flags().StringP("mood", "m", string(model.MoodChill), "Emotional mood")
	newCmd.Flags().IntP("tempo", "t", model.DefaultTempo, "Tempo in BPM (40-240)")
	newCmd.Flags().StringP("key", "k", "C Major", "Musical key (e.g. 'C Major', 'Am')")
	newCmd.Flags().IntP("duration", "d", model.DefaultDurationSeconds, "Duration in seconds")
	newCmd.Flags().String("description", "", "Free-form description of the song")
	newCmd.Flags().Bool("vocals", false, "Include vocals")
	rootCmd.AddCommand(newCmd)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

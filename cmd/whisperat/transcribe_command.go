package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m-aliabbas/whisper-at-server/internal/engine"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var atTimeRes int
	var temperature float64
	var noSpeechThreshold float64
	var asJSON bool

	defaults := engine.DefaultParams()

	cmd := &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Upload an audio file and print its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.newClient()
			if err != nil {
				return err
			}

			params := engine.Params{
				AudioTaggingTimeResolution: atTimeRes,
				Temperature:                temperature,
				NoSpeechThreshold:          noSpeechThreshold,
			}
			if err := params.Validate(); err != nil {
				return err
			}

			resp, err := svc.TranscribeFile(cmd.Context(), args[0], params)
			if err != nil {
				return fmt.Errorf("transcribe %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(resp)
			}
			fmt.Fprintln(out, resp.Text)
			return nil
		},
	}

	cmd.Flags().IntVar(&atTimeRes, "at-time-res", defaults.AudioTaggingTimeResolution, "Audio tagging time resolution in seconds")
	cmd.Flags().Float64Var(&temperature, "temperature", defaults.Temperature, "Sampling temperature")
	cmd.Flags().Float64Var(&noSpeechThreshold, "no-speech-threshold", defaults.NoSpeechThreshold, "No-speech probability threshold")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full JSON response")

	return cmd
}

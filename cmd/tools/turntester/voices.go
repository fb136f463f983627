package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/euonia-ta/backend/internal/config"
	"github.com/zhouzirui/euonia-ta/backend/internal/model/speech"
	speechsvc "github.com/zhouzirui/euonia-ta/backend/internal/service/speech"
)

var voicesCmd = &cobra.Command{
	Use:   "voices <name>...",
	Short: "Show which of the given voice names playback would pick",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}

		voices := make([]speech.Voice, 0, len(args))
		for _, name := range args {
			voices = append(voices, speech.Voice{Name: name})
		}

		pref := speechsvc.VoicePreference{Name: cfg.Voice.PreferredName, PlatformLabel: cfg.Voice.PlatformLabel}
		selected, ok := speechsvc.SelectVoice(voices, pref)
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "no voice")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "selected: %s (rate %.2f, pitch %.2f)\n", selected.Name, cfg.Voice.SpeechRate, cfg.Voice.SpeechPitch)
		return nil
	},
}

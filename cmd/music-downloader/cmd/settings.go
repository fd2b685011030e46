package cmd

import (
	"fmt"
	"io"
	"strings"

	"go-music-downloader/internal/models"
	"go-music-downloader/internal/settings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	settingsVolumeFlag int
	settingsModeFlag   string
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change player settings",
	Long: `Player settings (volume and playback mode) are kept in a JSON file, by default
settings.json. Playback modes: ` + strings.Join(settings.Modes, ", ") + `.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store := settings.NewStore(globalConfig.SettingsPath)
		current, err := store.Load()
		if err != nil {
			log.WithError(err).Warn("Settings file is unreadable, showing defaults")
		}
		printSettings(cmd.OutOrStdout(), store.Path(), current)
		return nil
	},
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the volume and/or playback mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		volumeSet := cmd.Flags().Changed("volume")
		modeSet := cmd.Flags().Changed("playback-mode")
		if !volumeSet && !modeSet {
			return fmt.Errorf("nothing to change: pass --volume and/or --playback-mode")
		}
		if modeSet {
			if _, err := settings.ParsePlaybackMode(settingsModeFlag); err != nil {
				return err
			}
		}

		if volumeSet {
			if clamped := settings.ClampVolume(settingsVolumeFlag); clamped != settingsVolumeFlag {
				log.Warnf("Volume %d is out of range, using %d", settingsVolumeFlag, clamped)
			}
		}

		store := settings.NewStore(globalConfig.SettingsPath)
		saved, err := store.Update(func(current *models.Settings) {
			if volumeSet {
				current.Volume = settingsVolumeFlag
			}
			if modeSet {
				current.PlaybackMode = settingsModeFlag
			}
		})
		if err != nil {
			return err
		}
		printSettings(cmd.OutOrStdout(), store.Path(), saved)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
	settingsSetCmd.Flags().IntVar(&settingsVolumeFlag, "volume", settings.DefaultVolume, "Volume, 0 to 100")
	settingsSetCmd.Flags().StringVar(&settingsModeFlag, "playback-mode", settings.ModeNormal, "Playback mode ("+strings.Join(settings.Modes, ", ")+")")
}

func printSettings(w io.Writer, path string, s models.Settings) {
	fmt.Fprintf(w, "Settings file: %s\n", path)
	fmt.Fprintf(w, "Volume:        %d\n", s.Volume)
	fmt.Fprintf(w, "Playback mode: %s\n", s.PlaybackMode)
}

package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sensorwatch/internal/app"
)

var (
	replaySensor string
	replayFrom   string
	replayTo     string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-evaluate stored readings against the current thresholds",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayFrom == "" || replayTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from value: %w", err)
		}

		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to value: %w", err)
		}

		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		opts := app.ReplayOptions{
			Sensor: replaySensor,
			From:   from,
			To:     to,
		}

		return getApp().Replay(cmd.Context(), opts)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replaySensor, "sensor", "", "Restrict to one sensor name")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start timestamp (RFC3339, inclusive)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End timestamp (RFC3339, exclusive)")
}

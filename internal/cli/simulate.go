package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sensorwatch/internal/app"
	"sensorwatch/internal/sensor"
)

var (
	simulateEvent         string
	simulateSensor        string
	simulateType          string
	simulateValue         float64
	simulateRepeat        int
	simulateForceDispatch bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Push a synthetic event through an in-process pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			EventPath:     simulateEvent,
			Sensor:        simulateSensor,
			Value:         simulateValue,
			Repeat:        simulateRepeat,
			ForceDispatch: simulateForceDispatch,
		}

		if simulateEvent == "" {
			t, err := sensor.ParseType(simulateType)
			if err != nil {
				return fmt.Errorf("invalid --type value: %w", err)
			}
			opts.Type = t
		}

		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateEvent, "event", "", "Path to a JSON event payload")
	simulateCmd.Flags().StringVar(&simulateSensor, "sensor", "", "Sensor name for a single synthetic reading")
	simulateCmd.Flags().StringVar(&simulateType, "type", "temperature", "Sensor type (temperature, humidity, air_quality)")
	simulateCmd.Flags().Float64Var(&simulateValue, "value", 0, "Raw reading value")
	simulateCmd.Flags().IntVar(&simulateRepeat, "repeat", 1, "Number of times to send the event")
	simulateCmd.Flags().BoolVar(&simulateForceDispatch, "force-dispatch", false, "Arm the gate for this run so alerts are sent")
}

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	sim "github.com/richarai7/platelet-pooling-simulator-draft/sim"
)

var (
	logLevel   string // Log verbosity level
	outputPath string // Where to write the result JSON ("-" for stdout)
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "platesim",
	Short: "Discrete-event simulator for pooled-device processing networks",
}

// runCmd loads a scenario file, runs it to completion and writes the
// result document as JSON.
var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a simulation scenario",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		raw, err := loadScenario(args[0])
		if err != nil {
			logrus.Fatalf("unable to read scenario %s: %v", args[0], err)
		}

		engine, err := sim.NewEngine(raw)
		if err != nil {
			var verr *sim.ValidationError
			if errors.As(err, &verr) {
				for _, issue := range verr.Issues {
					logrus.Error(issue)
				}
			}
			logrus.Fatalf("scenario rejected: %v", err)
		}

		startTime := time.Now()
		result := engine.Run()
		logrus.Infof("Simulation finished: status=%s events=%d flows_completed=%d wall=%.2fs",
			result.Status, result.Summary.TotalEvents,
			result.Summary.TotalFlowsCompleted, time.Since(startTime).Seconds())

		if err := writeResult(result); err != nil {
			logrus.Fatalf("unable to write result: %v", err)
		}
		if result.Error != nil {
			logrus.Errorf("run terminated abnormally: %s", result.Error.Message)
			os.Exit(2)
		}
	},
}

// validateCmd checks a scenario file without running it, reporting every
// issue found rather than stopping at the first.
var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>",
	Short: "Validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		raw, err := loadScenario(args[0])
		if err != nil {
			logrus.Fatalf("unable to read scenario %s: %v", args[0], err)
		}
		cfg, err := sim.Validate(raw)
		if err != nil {
			var verr *sim.ValidationError
			if errors.As(err, &verr) {
				for _, issue := range verr.Issues {
					fmt.Fprintf(os.Stderr, "  - %s\n", issue)
				}
			}
			logrus.Fatalf("scenario invalid: %v", err)
		}
		logrus.Infof("Scenario valid: %d devices, %d flows, duration=%.1fs",
			len(cfg.Devices), len(cfg.Flows), cfg.Simulation.Duration)
	},
}

// loadScenario reads and decodes a YAML scenario file.
func loadScenario(path string) (*sim.RawConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw sim.RawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("malformed YAML: %w", err)
	}
	return &raw, nil
}

func writeResult(result *sim.Result) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	path := viper.GetString("output")
	if path == "" || path == "-" {
		_, err = fmt.Fprintln(os.Stdout, string(data))
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func setupLogging() {
	level, err := logrus.ParseLevel(viper.GetString("log"))
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", viper.GetString("log"))
	}
	logrus.SetLevel(level)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "-", "Result JSON destination (\"-\" for stdout)")

	viper.SetEnvPrefix("SIMKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

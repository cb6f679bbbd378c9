package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stiffode/stiffode/radau"
	"github.com/stiffode/stiffode/radau/linsolve"
)

var (
	// CLI flags for the integration run
	problemName string  // Built-in problem name
	logLevel    string  // Log verbosity level
	xStart      float64 // Left end of the interval
	xEnd        float64 // Right end of the interval
	atol        float64 // Absolute tolerance
	rtol        float64 // Relative tolerance
	initialStep float64 // First step size; 0 = automatic
	maxStep     float64 // Step size ceiling; 0 = interval length
	maxSteps    int     // Attempted-step budget
	denseEvery  float64 // Equidistant dense-output spacing; 0 = off
	assumeStiff bool    // Enable error-estimate stabilization from the start
	timeout     time.Duration

	presetsPath string // YAML presets file
	presetName  string // Named preset inside the file
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "stiffode",
	Short: "Adaptive Radau IIA (order 5) integrator for stiff ODE systems",
}

// runCmd integrates one of the built-in problems using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Integrate a built-in stiff problem",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		bp, err := lookupProblem(problemName)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		cfg := radau.DefaultConfig()
		cfg.Tolerances.AbsTol = bp.AbsTol
		cfg.Tolerances.RelTol = bp.RelTol
		cfg.Stiffness.AssumeStiff = bp.AssumeStiff

		if presetsPath != "" {
			pf, err := loadPresets(presetsPath)
			if err != nil {
				logrus.Fatalf("unable to read presets; %v", err)
			}
			preset, ok := pf.Presets[presetName]
			if !ok {
				logrus.Fatalf("preset %q not found in %s", presetName, presetsPath)
			}
			preset.apply(&cfg)
		}

		// Explicit flags win over both the problem defaults and the preset
		if cmd.Flags().Changed("atol") {
			cfg.Tolerances.AbsTol = atol
		}
		if cmd.Flags().Changed("rtol") {
			cfg.Tolerances.RelTol = rtol
		}
		if cmd.Flags().Changed("h0") {
			cfg.Step.InitialStep = initialStep
		}
		if cmd.Flags().Changed("max-step") {
			cfg.Step.MaxStep = maxStep
		}
		if cmd.Flags().Changed("max-steps") {
			cfg.MaxSteps = maxSteps
		}
		if cmd.Flags().Changed("assume-stiff") {
			cfg.Stiffness.AssumeStiff = assumeStiff
		}
		cfg.Output.DenseSpacing = denseEvery

		x0 := bp.X0
		if cmd.Flags().Changed("x0") {
			x0 = xStart
		}
		x1 := bp.XEnd
		if cmd.Flags().Changed("x-end") {
			x1 = xEnd
		}

		in, err := radau.New(bp.Problem, linsolve.NewDense(), cfg)
		if err != nil {
			logrus.Fatalf("unable to build integrator; %v", err)
		}

		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		logrus.Infof("Integrating %q (%s) over [%g, %g], atol=%g rtol=%g",
			problemName, bp.Description, x0, x1, cfg.Tolerances.AbsTol, cfg.Tolerances.RelTol)

		rt, err := in.Run(ctx, x0, bp.Y0, x1)
		if err != nil {
			logrus.Fatalf("integration failed: %v", err)
		}

		last := rt.Last()
		fmt.Printf("y(%g) = %v\n", last.X, last.Y)
		if bp.Reference != nil {
			fmt.Printf("reference   %v\n", bp.Reference)
		}
		stats := in.Stats()
		fmt.Println(stats.String())

		sum := rt.Summarize()
		fmt.Printf("Step sizes (min/max/last): %g / %g / %g\n", sum.MinH, sum.MaxH, sum.LastH)
		fmt.Printf("Jacobian refreshes       : %d\n", sum.JacobianRefreshes)
		fmt.Printf("Refactorizations         : %d\n", sum.Refactorizations)
		fmt.Printf("Stiffness ratio          : %.3f\n", in.StiffnessRatio())
		if denseEvery > 0 {
			fmt.Printf("Dense samples            : %d\n", sum.DensePoints)
		}

		logrus.Info("Integration complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	runCmd.Flags().StringVar(&problemName, "problem", "decay", "Built-in problem (decay, hwlinear, vanderpol, robertson)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// interval and tolerances
	runCmd.Flags().Float64Var(&xStart, "x0", 0, "Left end of the integration interval")
	runCmd.Flags().Float64Var(&xEnd, "x-end", 0, "Right end of the integration interval")
	runCmd.Flags().Float64Var(&atol, "atol", 1e-6, "Absolute tolerance")
	runCmd.Flags().Float64Var(&rtol, "rtol", 1e-6, "Relative tolerance")

	// step control
	runCmd.Flags().Float64Var(&initialStep, "h0", 0, "Initial step size (0 = automatic)")
	runCmd.Flags().Float64Var(&maxStep, "max-step", 0, "Maximum step size (0 = interval length)")
	runCmd.Flags().IntVar(&maxSteps, "max-steps", 100000, "Maximum number of attempted steps")
	runCmd.Flags().BoolVar(&assumeStiff, "assume-stiff", false, "Stabilize the error estimate on every step")

	// output
	runCmd.Flags().Float64Var(&denseEvery, "dense-every", 0, "Equidistant dense-output spacing (0 = off)")
	runCmd.Flags().DurationVar(&timeout, "timeout", 0, "Wall-clock budget for the run (0 = none)")

	// presets
	runCmd.Flags().StringVar(&presetsPath, "presets", "", "YAML presets file")
	runCmd.Flags().StringVar(&presetName, "preset", "default", "Preset name inside the presets file")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}

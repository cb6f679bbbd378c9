package cmd

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stiffode/stiffode/radau"
)

// Preset is one named tuning block in a presets file. Zero values mean "leave
// the default alone"; only set fields override the configuration.
type Preset struct {
	AbsTol float64 `yaml:"atol"`
	RelTol float64 `yaml:"rtol"`

	InitialStep float64 `yaml:"initial_step"`
	MinStep     float64 `yaml:"min_step"`
	MaxStep     float64 `yaml:"max_step"`
	Safety      float64 `yaml:"safety"`

	NewtonMaxIterations int     `yaml:"newton_max_iterations"`
	NewtonTolerance     float64 `yaml:"newton_tolerance"`

	JacobianMaxStepAge int  `yaml:"jacobian_max_step_age"`
	AssumeStiff        bool `yaml:"assume_stiff"`

	MaxSteps int `yaml:"max_steps"`
}

// PresetsFile is the full structure of a presets YAML file. All top-level
// sections must be listed to satisfy strict parsing: a typo in a field name
// is an error, not a silent default.
type PresetsFile struct {
	Version string            `yaml:"version"`
	Presets map[string]Preset `yaml:"presets"`
}

// loadPresets parses a presets file with strict field checking.
func loadPresets(path string) (PresetsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PresetsFile{}, fmt.Errorf("read presets file: %w", err)
	}
	var pf PresetsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&pf); err != nil {
		return PresetsFile{}, fmt.Errorf("parse presets file %s: %w", path, err)
	}
	return pf, nil
}

// apply copies the preset's set fields onto cfg.
func (p Preset) apply(cfg *radau.Config) {
	if p.AbsTol > 0 {
		cfg.Tolerances.AbsTol = p.AbsTol
	}
	if p.RelTol > 0 {
		cfg.Tolerances.RelTol = p.RelTol
	}
	if p.InitialStep > 0 {
		cfg.Step.InitialStep = p.InitialStep
	}
	if p.MinStep > 0 {
		cfg.Step.MinStep = p.MinStep
	}
	if p.MaxStep > 0 {
		cfg.Step.MaxStep = p.MaxStep
	}
	if p.Safety > 0 {
		cfg.Step.Safety = p.Safety
	}
	if p.NewtonMaxIterations > 0 {
		cfg.Newton.MaxIterations = p.NewtonMaxIterations
	}
	if p.NewtonTolerance > 0 {
		cfg.Newton.Tolerance = p.NewtonTolerance
	}
	if p.JacobianMaxStepAge > 0 {
		cfg.Jacobian.MaxStepAge = p.JacobianMaxStepAge
	}
	if p.AssumeStiff {
		cfg.Stiffness.AssumeStiff = true
	}
	if p.MaxSteps > 0 {
		cfg.MaxSteps = p.MaxSteps
	}
}

package flow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tuning holds the detector thresholds and the style vocabulary. The
// defaults are the observed production values; a YAML file can override
// any of them.
type Tuning struct {
	FastEnergyThreshold     float64 `yaml:"fast_energy_threshold"`
	MediumEnergyThreshold   float64 `yaml:"medium_energy_threshold"`
	RhythmVarianceThreshold float64 `yaml:"rhythm_variance_threshold"`

	ColorDistanceThreshold  float64 `yaml:"color_distance_threshold"`
	BrightnessJumpThreshold float64 `yaml:"brightness_jump_threshold"`
	MotionConflictThreshold float64 `yaml:"motion_conflict_threshold"`

	EnergyDropThreshold     float64 `yaml:"energy_drop_threshold"`
	CurveDeviationThreshold float64 `yaml:"curve_deviation_threshold"`
	ClimaxMinDuration       float64 `yaml:"climax_min_duration"`
	ClimaxEnergyThreshold   float64 `yaml:"climax_energy_threshold"`

	TagOverlapThreshold   float64 `yaml:"tag_overlap_threshold"`
	MoodMismatchThreshold float64 `yaml:"mood_mismatch_threshold"`

	StyleTags []string `yaml:"style_tags"`
}

func DefaultTuning() Tuning {
	return Tuning{
		FastEnergyThreshold:     0.7,
		MediumEnergyThreshold:   0.4,
		RhythmVarianceThreshold: 4.0,
		ColorDistanceThreshold:  150,
		BrightnessJumpThreshold: 0.5,
		MotionConflictThreshold: 0.6,
		EnergyDropThreshold:     0.4,
		CurveDeviationThreshold: 0.3,
		ClimaxMinDuration:       30,
		ClimaxEnergyThreshold:   0.7,
		TagOverlapThreshold:     0.8,
		MoodMismatchThreshold:   1.0,
		StyleTags: []string{
			"cinematic", "vintage", "modern", "minimalist",
			"vibrant", "documentary", "retro", "noir",
		},
	}
}

// LoadTuning reads a YAML tuning file over the defaults. A missing file is
// not an error; the defaults are returned.
func LoadTuning(path string) (Tuning, error) {
	tuning := DefaultTuning()
	if path == "" {
		return tuning, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return tuning, nil
		}
		return tuning, fmt.Errorf("read tuning file: %w", err)
	}
	if err := yaml.Unmarshal(data, &tuning); err != nil {
		return DefaultTuning(), fmt.Errorf("parse tuning file: %w", err)
	}
	return tuning, nil
}

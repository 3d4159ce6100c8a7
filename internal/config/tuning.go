package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// Every field is optional; nil fields fall back to the defaults returned by
// the Get* accessors, so partial config files are safe.
type TuningConfig struct {
	// Lens model
	LensK1       *float64 `json:"lens_k1,omitempty"`
	LensCenterX  *float64 `json:"lens_center_x,omitempty"`
	LensCenterY  *float64 `json:"lens_center_y,omitempty"`
	LensDiagonal *float64 `json:"lens_diagonal,omitempty"`

	// Optimizer params
	OptimizerIterations    *int     `json:"optimizer_iterations,omitempty"`
	OptimizerBaseStep      *float64 `json:"optimizer_base_step,omitempty"`
	OptimizerMaxStep       *float64 `json:"optimizer_max_step,omitempty"`
	OptimizerDecayFactor   *float64 `json:"optimizer_decay_factor,omitempty"`
	OptimizerDecayInterval *int     `json:"optimizer_decay_interval,omitempty"`
	GradientEpsilon        *float64 `json:"gradient_epsilon,omitempty"`
	FirstLineWeight        *float64 `json:"first_line_weight,omitempty"`
	IsotropyWeight         *float64 `json:"isotropy_weight,omitempty"`
	IsotropyFloor          *float64 `json:"isotropy_floor,omitempty"`
	OrthogonalityWeight    *float64 `json:"orthogonality_weight,omitempty"`
	OrthogonalityTolerance *float64 `json:"orthogonality_tolerance_deg,omitempty"`

	// Monte Carlo params
	MonteCarloSeeds      *int     `json:"monte_carlo_seeds,omitempty"`
	MonteCarloIterations *int     `json:"monte_carlo_iterations,omitempty"`
	MonteCarloSigma      *float64 `json:"monte_carlo_sigma_px,omitempty"`

	// Bias model params
	BiasKernelSigma   *float64 `json:"bias_kernel_sigma_px,omitempty"`
	BiasMinWeight     *float64 `json:"bias_min_weight,omitempty"`
	BiasBaselineSigma *float64 `json:"bias_baseline_sigma,omitempty"`
	BiasFloorSigma    *float64 `json:"bias_floor_sigma,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath. It searches for the file in the current directory and
// common parent directories. Panics if the file cannot be loaded, intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.OptimizerIterations != nil && *c.OptimizerIterations <= 0 {
		return fmt.Errorf("optimizer_iterations must be positive, got %d", *c.OptimizerIterations)
	}
	if c.OptimizerDecayInterval != nil && *c.OptimizerDecayInterval <= 0 {
		return fmt.Errorf("optimizer_decay_interval must be positive, got %d", *c.OptimizerDecayInterval)
	}
	if c.OptimizerDecayFactor != nil {
		if *c.OptimizerDecayFactor <= 0 || *c.OptimizerDecayFactor > 1 {
			return fmt.Errorf("optimizer_decay_factor must be in (0, 1], got %f", *c.OptimizerDecayFactor)
		}
	}
	if c.OptimizerBaseStep != nil && *c.OptimizerBaseStep <= 0 {
		return fmt.Errorf("optimizer_base_step must be positive, got %f", *c.OptimizerBaseStep)
	}
	if c.OptimizerMaxStep != nil && *c.OptimizerMaxStep <= 0 {
		return fmt.Errorf("optimizer_max_step must be positive, got %f", *c.OptimizerMaxStep)
	}
	if c.GradientEpsilon != nil && *c.GradientEpsilon <= 0 {
		return fmt.Errorf("gradient_epsilon must be positive, got %f", *c.GradientEpsilon)
	}
	if c.IsotropyFloor != nil {
		if *c.IsotropyFloor < 0 || *c.IsotropyFloor >= 1 {
			return fmt.Errorf("isotropy_floor must be in [0, 1), got %f", *c.IsotropyFloor)
		}
	}
	if c.LensDiagonal != nil && *c.LensDiagonal <= 0 {
		return fmt.Errorf("lens_diagonal must be positive, got %f", *c.LensDiagonal)
	}
	if c.MonteCarloSeeds != nil && *c.MonteCarloSeeds <= 0 {
		return fmt.Errorf("monte_carlo_seeds must be positive, got %d", *c.MonteCarloSeeds)
	}
	if c.MonteCarloIterations != nil && *c.MonteCarloIterations <= 0 {
		return fmt.Errorf("monte_carlo_iterations must be positive, got %d", *c.MonteCarloIterations)
	}
	if c.MonteCarloSigma != nil && *c.MonteCarloSigma < 0 {
		return fmt.Errorf("monte_carlo_sigma_px must be non-negative, got %f", *c.MonteCarloSigma)
	}
	if c.BiasKernelSigma != nil && *c.BiasKernelSigma <= 0 {
		return fmt.Errorf("bias_kernel_sigma_px must be positive, got %f", *c.BiasKernelSigma)
	}
	if c.BiasMinWeight != nil {
		if *c.BiasMinWeight < 0 || *c.BiasMinWeight > 1 {
			return fmt.Errorf("bias_min_weight must be in [0, 1], got %f", *c.BiasMinWeight)
		}
	}
	return nil
}

// GetLensK1 returns the lens_k1 value or the default.
func (c *TuningConfig) GetLensK1() float64 {
	if c.LensK1 == nil {
		return 0.0 // default: no radial correction
	}
	return *c.LensK1
}

// GetLensCenterX returns the lens_center_x value or the default.
func (c *TuningConfig) GetLensCenterX() float64 {
	if c.LensCenterX == nil {
		return 0.0
	}
	return *c.LensCenterX
}

// GetLensCenterY returns the lens_center_y value or the default.
func (c *TuningConfig) GetLensCenterY() float64 {
	if c.LensCenterY == nil {
		return 0.0
	}
	return *c.LensCenterY
}

// GetLensDiagonal returns the lens_diagonal value or the default.
func (c *TuningConfig) GetLensDiagonal() float64 {
	if c.LensDiagonal == nil {
		return 1.0
	}
	return *c.LensDiagonal
}

// GetOptimizerIterations returns the optimizer_iterations value or the default.
func (c *TuningConfig) GetOptimizerIterations() int {
	if c.OptimizerIterations == nil {
		return 30000
	}
	return *c.OptimizerIterations
}

// GetOptimizerBaseStep returns the optimizer_base_step value or the default.
func (c *TuningConfig) GetOptimizerBaseStep() float64 {
	if c.OptimizerBaseStep == nil {
		return 0.1
	}
	return *c.OptimizerBaseStep
}

// GetOptimizerMaxStep returns the optimizer_max_step value or the default.
func (c *TuningConfig) GetOptimizerMaxStep() float64 {
	if c.OptimizerMaxStep == nil {
		return 0.1
	}
	return *c.OptimizerMaxStep
}

// GetOptimizerDecayFactor returns the optimizer_decay_factor value or the default.
func (c *TuningConfig) GetOptimizerDecayFactor() float64 {
	if c.OptimizerDecayFactor == nil {
		return 0.5
	}
	return *c.OptimizerDecayFactor
}

// GetOptimizerDecayInterval returns the optimizer_decay_interval value or the default.
func (c *TuningConfig) GetOptimizerDecayInterval() int {
	if c.OptimizerDecayInterval == nil {
		return 3000
	}
	return *c.OptimizerDecayInterval
}

// GetGradientEpsilon returns the gradient_epsilon value or the default.
func (c *TuningConfig) GetGradientEpsilon() float64 {
	if c.GradientEpsilon == nil {
		return 1e-6
	}
	return *c.GradientEpsilon
}

// GetFirstLineWeight returns the first_line_weight value or the default.
func (c *TuningConfig) GetFirstLineWeight() float64 {
	if c.FirstLineWeight == nil {
		return 50.0 // anchors global scale and orientation
	}
	return *c.FirstLineWeight
}

// GetIsotropyWeight returns the isotropy_weight value or the default.
func (c *TuningConfig) GetIsotropyWeight() float64 {
	if c.IsotropyWeight == nil {
		return 1e6
	}
	return *c.IsotropyWeight
}

// GetIsotropyFloor returns the isotropy_floor value or the default.
func (c *TuningConfig) GetIsotropyFloor() float64 {
	if c.IsotropyFloor == nil {
		return 0.2
	}
	return *c.IsotropyFloor
}

// GetOrthogonalityWeight returns the orthogonality_weight value or the default.
func (c *TuningConfig) GetOrthogonalityWeight() float64 {
	if c.OrthogonalityWeight == nil {
		return 1000.0
	}
	return *c.OrthogonalityWeight
}

// GetOrthogonalityTolerance returns the orthogonality_tolerance_deg value or the default.
func (c *TuningConfig) GetOrthogonalityTolerance() float64 {
	if c.OrthogonalityTolerance == nil {
		return 5.0
	}
	return *c.OrthogonalityTolerance
}

// GetMonteCarloSeeds returns the monte_carlo_seeds value or the default.
func (c *TuningConfig) GetMonteCarloSeeds() int {
	if c.MonteCarloSeeds == nil {
		return 30
	}
	return *c.MonteCarloSeeds
}

// GetMonteCarloIterations returns the monte_carlo_iterations value or the default.
func (c *TuningConfig) GetMonteCarloIterations() int {
	if c.MonteCarloIterations == nil {
		return 100
	}
	return *c.MonteCarloIterations
}

// GetMonteCarloSigma returns the monte_carlo_sigma_px value or the default.
func (c *TuningConfig) GetMonteCarloSigma() float64 {
	if c.MonteCarloSigma == nil {
		return 2.0
	}
	return *c.MonteCarloSigma
}

// GetBiasKernelSigma returns the bias_kernel_sigma_px value or the default.
func (c *TuningConfig) GetBiasKernelSigma() float64 {
	if c.BiasKernelSigma == nil {
		return 800.0
	}
	return *c.BiasKernelSigma
}

// GetBiasMinWeight returns the bias_min_weight value or the default.
func (c *TuningConfig) GetBiasMinWeight() float64 {
	if c.BiasMinWeight == nil {
		return 0.1
	}
	return *c.BiasMinWeight
}

// GetBiasBaselineSigma returns the bias_baseline_sigma value or the default.
func (c *TuningConfig) GetBiasBaselineSigma() float64 {
	if c.BiasBaselineSigma == nil {
		return 0.15 // 15% relative error with no validation coverage
	}
	return *c.BiasBaselineSigma
}

// GetBiasFloorSigma returns the bias_floor_sigma value or the default.
func (c *TuningConfig) GetBiasFloorSigma() float64 {
	if c.BiasFloorSigma == nil {
		return 0.02 // 2% empirical floor at full confidence
	}
	return *c.BiasFloorSigma
}

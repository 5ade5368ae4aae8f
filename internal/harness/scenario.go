package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/session"
)

// Scenario defines one acceptance run and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Input is the raw text handed to the session, x,y or GHCN CSV.
	Input string `yaml:"input"`

	Sampler SamplerSpec      `yaml:"sampler"`
	Run     engine.RunConfig `yaml:"run"`

	// StepBudget overrides the session's step budget when set.
	StepBudget *uint64 `yaml:"step_budget,omitempty"`

	// CancelAfterChains cancels the run once this many chains finished.
	// Zero never cancels.
	CancelAfterChains uint64 `yaml:"cancel_after_chains,omitempty"`

	// RunID is the fixed run ID. Empty uses the testutil default.
	RunID string `yaml:"run_id,omitempty"`

	Expect     Expect      `yaml:"expect"`
	Assertions []Assertion `yaml:"assertions"`
}

// SamplerSpec selects the sampler a scenario runs with.
type SamplerSpec struct {
	// Kind is one of hmc, constant, seed_echo.
	Kind string `yaml:"kind"`

	// Position is the sampler-space position of the constant sampler.
	Position []float64 `yaml:"position,omitempty"`

	// FailOnCall makes the n-th sampler call (1-based) fail.
	FailOnCall int `yaml:"fail_on_call,omitempty"`
}

// Sampler kinds.
const (
	SamplerHMC      = "hmc"
	SamplerConstant = "constant"
	SamplerSeedEcho = "seed_echo"
)

// Expect is the outcome the run must report.
type Expect struct {
	Status session.Status `yaml:"status"`

	// ErrorContains must appear in the outcome's error text.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// Assertion validates one property of the run.
type Assertion struct {
	Type string `yaml:"type"`

	// X is the abscissa for predict.
	X *float64 `yaml:"x,omitempty"`

	// Param names the parameter for param_mean.
	Param string `yaml:"param,omitempty"`

	// Want and Tolerance bound predict and param_mean.
	Want      *float64 `yaml:"want,omitempty"`
	Tolerance float64  `yaml:"tolerance,omitempty"`

	// Tuning and Sampling are the draw totals for draw_count.
	Tuning   *int `yaml:"tuning,omitempty"`
	Sampling *int `yaml:"sampling,omitempty"`

	// Count is used by chain_count and sampler_calls.
	Count *int `yaml:"count,omitempty"`

	// State is the session state for final_state.
	State session.State `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertDrawCount      = "draw_count"
	AssertChainCount     = "chain_count"
	AssertPredict        = "predict"
	AssertParamMean      = "param_mean"
	AssertBandOrdered    = "band_ordered"
	AssertSamplerCalls   = "sampler_calls"
	AssertDistinctSeeds  = "distinct_seeds"
	AssertFinalState     = "final_state"
	AssertReproducible   = "reproducible"
	AssertStoreRoundTrip = "store_roundtrip"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Input == "" {
		return fmt.Errorf("input is required")
	}

	switch s.Sampler.Kind {
	case SamplerHMC, SamplerSeedEcho:
	case SamplerConstant:
		if n := len(s.Sampler.Position); n != 0 && n != 3 {
			return fmt.Errorf("sampler.position must have 3 values, got %d", n)
		}
	case "":
		return fmt.Errorf("sampler.kind is required")
	default:
		return fmt.Errorf("unknown sampler kind %q", s.Sampler.Kind)
	}
	if s.Sampler.FailOnCall < 0 {
		return fmt.Errorf("sampler.fail_on_call must be non-negative")
	}

	switch s.Expect.Status {
	case session.StatusOK, session.StatusError, session.StatusCancelled:
	case "":
		return fmt.Errorf("expect.status is required")
	default:
		return fmt.Errorf("unknown expect.status %q", s.Expect.Status)
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertDrawCount:
		if a.Tuning == nil && a.Sampling == nil {
			return fmt.Errorf("assertions[%d]: tuning or sampling is required for draw_count", index)
		}
	case AssertChainCount, AssertSamplerCalls:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertPredict:
		if a.X == nil || a.Want == nil {
			return fmt.Errorf("assertions[%d]: x and want are required for predict", index)
		}
	case AssertParamMean:
		switch a.Param {
		case posterior.ParamIntercept, posterior.ParamSlope, posterior.ParamLogNoiseScale:
		default:
			return fmt.Errorf("assertions[%d]: unknown param %q", index, a.Param)
		}
		if a.Want == nil {
			return fmt.Errorf("assertions[%d]: want is required for param_mean", index)
		}
	case AssertFinalState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for final_state", index)
		}
	case AssertBandOrdered, AssertDistinctSeeds, AssertReproducible, AssertStoreRoundTrip:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}
	return nil
}

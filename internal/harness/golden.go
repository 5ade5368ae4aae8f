package harness

import (
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tmaxfit/internal/ident"
	"github.com/roach88/tmaxfit/internal/posterior"
)

// snapshotXs are the abscissae whose predictions a snapshot records.
var snapshotXs = []float64{1, 2.5, 4}

// Snapshot captures the observable outcome of a scenario run.
// Floats are rendered with six decimals so last-bit noise does not
// change the golden text.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// formatFloat renders a snapshot float.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical
// JSON serialization, which only handles strings, integers and nesting.
func (s *Snapshot) toCanonicalMap() map[string]any {
	out := s.Result.Outcome
	m := map[string]any{
		"scenario_name": s.ScenarioName,
		"run_id":        out.RunID,
		"status":        string(out.Status),
		"elapsed_ns":    out.Elapsed.Nanoseconds(),
		"final_state":   string(s.Result.FinalState),
	}
	if out.Error != "" {
		m["error"] = out.Error
	}
	if out.RenderError != "" {
		m["render_error"] = out.RenderError
	}

	transitions := make([]any, len(s.Result.Transitions))
	for i, t := range s.Result.Transitions {
		transitions[i] = t
	}
	m["transitions"] = transitions
	m["sampler_calls"] = int64(len(s.Result.Seeds))

	if res := out.Result; res != nil {
		m["draws"] = map[string]any{
			"tuning":    int64(res.TuningCount()),
			"sampling":  int64(res.SamplingCount()),
			"divergent": int64(res.DivergentCount()),
		}
	}

	if summary := out.Summary; summary != nil {
		chains := make([]any, 0, len(summary.Traces))
		for _, c := range summary.Chains() {
			chains = append(chains, c)
		}
		m["chains"] = chains

		params := make([]any, len(summary.Params))
		for i, p := range summary.Params {
			params[i] = map[string]any{
				"name":  p.Name,
				"mean":  formatFloat(p.Mean),
				"sd":    formatFloat(p.SD),
				"lower": formatFloat(p.Lower),
				"upper": formatFloat(p.Upper),
			}
		}
		m["params"] = params

		predict := make([]any, len(snapshotXs))
		for i, x := range snapshotXs {
			predict[i] = fitPointMap(summary.Predict(x))
		}
		m["predict"] = predict
	}
	return m
}

func fitPointMap(p posterior.FitPoint) map[string]any {
	return map[string]any{
		"x":     formatFloat(p.X),
		"mean":  formatFloat(p.Mean),
		"lower": formatFloat(p.Lower),
		"upper": formatFloat(p.Upper),
	}
}

// MarshalSnapshot returns the canonical JSON of a scenario result.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snap := Snapshot{ScenarioName: name, Result: result}
	return ident.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Only scenarios with a deterministic sampler belong in golden files.
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := MarshalSnapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, snapshot)
	return nil
}

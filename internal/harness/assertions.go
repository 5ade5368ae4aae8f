package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/store"
)

// AssertionContext carries what assertions need beyond the result.
type AssertionContext struct {
	Ctx      context.Context
	Scenario *Scenario
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Outcome  string // Status and error of the run
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Outcome != "" {
		fmt.Fprintf(&buf, "  Run: %s\n", e.Outcome)
	}
	return buf.String()
}

func failure(result *Result, typ, expected, actual string) *AssertionError {
	outcome := string(result.Outcome.Status)
	if result.Outcome.Error != "" {
		outcome += ": " + result.Outcome.Error
	}
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Outcome: outcome}
}

// needSummary fails assertions that read the summary of a run without one.
func needSummary(result *Result, typ string) (*posterior.Summary, error) {
	if result.Outcome.Summary == nil {
		return nil, failure(result, typ, "a posterior summary", "run produced none")
	}
	return result.Outcome.Summary, nil
}

func assertDrawCount(result *Result, a Assertion) error {
	res := result.Outcome.Result
	tuning, sampling := 0, 0
	if res != nil {
		tuning, sampling = res.TuningCount(), res.SamplingCount()
	}
	if a.Tuning != nil && *a.Tuning != tuning {
		return failure(result, AssertDrawCount, fmt.Sprintf("%d tuning draws", *a.Tuning), fmt.Sprintf("%d", tuning))
	}
	if a.Sampling != nil && *a.Sampling != sampling {
		return failure(result, AssertDrawCount, fmt.Sprintf("%d sampling draws", *a.Sampling), fmt.Sprintf("%d", sampling))
	}
	return nil
}

func assertChainCount(result *Result, a Assertion) error {
	summary, err := needSummary(result, AssertChainCount)
	if err != nil {
		return err
	}
	if got := len(summary.Chains()); got != *a.Count {
		return failure(result, AssertChainCount, fmt.Sprintf("%d chains", *a.Count), fmt.Sprintf("%d", got))
	}
	return nil
}

func assertPredict(result *Result, a Assertion) error {
	summary, err := needSummary(result, AssertPredict)
	if err != nil {
		return err
	}
	p := summary.Predict(*a.X)
	if math.Abs(p.Mean-*a.Want) > a.Tolerance {
		return failure(result, AssertPredict,
			fmt.Sprintf("mean at x=%g within %g of %g", *a.X, a.Tolerance, *a.Want),
			fmt.Sprintf("%g (band %g..%g)", p.Mean, p.Lower, p.Upper))
	}
	return nil
}

func assertParamMean(result *Result, a Assertion) error {
	summary, err := needSummary(result, AssertParamMean)
	if err != nil {
		return err
	}
	ps, ok := summary.Param(a.Param)
	if !ok {
		return failure(result, AssertParamMean, "summary of "+a.Param, "missing")
	}
	if math.Abs(ps.Mean-*a.Want) > a.Tolerance {
		return failure(result, AssertParamMean,
			fmt.Sprintf("%s mean within %g of %g", a.Param, a.Tolerance, *a.Want),
			fmt.Sprintf("%g (sd %g)", ps.Mean, ps.SD))
	}
	return nil
}

func assertBandOrdered(result *Result) error {
	summary, err := needSummary(result, AssertBandOrdered)
	if err != nil {
		return err
	}
	for i, p := range summary.Fit {
		if p.Lower > p.Mean || p.Mean > p.Upper {
			return failure(result, AssertBandOrdered, "lower <= mean <= upper",
				fmt.Sprintf("fit[%d] at x=%g: %g, %g, %g", i, p.X, p.Lower, p.Mean, p.Upper))
		}
	}
	return nil
}

func assertSamplerCalls(result *Result, a Assertion) error {
	if got := len(result.Seeds); got != *a.Count {
		return failure(result, AssertSamplerCalls, fmt.Sprintf("%d sampler calls", *a.Count), fmt.Sprintf("%d", got))
	}
	return nil
}

func assertDistinctSeeds(result *Result) error {
	seen := make(map[uint64]int, len(result.Seeds))
	for i, seed := range result.Seeds {
		if prev, dup := seen[seed]; dup {
			return failure(result, AssertDistinctSeeds, "a distinct seed per chain",
				fmt.Sprintf("chains %d and %d share seed %d", prev, i, seed))
		}
		seen[seed] = i
	}
	return nil
}

func assertFinalState(result *Result, a Assertion) error {
	if result.FinalState != a.State {
		return failure(result, AssertFinalState, string(a.State), string(result.FinalState))
	}
	return nil
}

// assertReproducible runs the scenario a second time and compares draws
// bit for bit.
func assertReproducible(result *Result, actx *AssertionContext) error {
	if actx == nil || actx.Scenario == nil {
		return fmt.Errorf("%s requires the scenario", AssertReproducible)
	}
	if result.Outcome.Result == nil {
		return failure(result, AssertReproducible, "raw draws", "run produced none")
	}
	again, err := execute(actx.Scenario)
	if err != nil {
		return err
	}
	if again.Outcome.Result == nil {
		return failure(result, AssertReproducible, "raw draws on rerun", string(again.Outcome.Status))
	}
	if a, b := result.Outcome.Result.Digest(), again.Outcome.Result.Digest(); a != b {
		return failure(result, AssertReproducible, "identical draws digest", fmt.Sprintf("%s then %s", a, b))
	}
	return nil
}

// assertStoreRoundTrip writes the run to an in-memory store and reads its
// draws and dataset back.
func assertStoreRoundTrip(result *Result, actx *AssertionContext) error {
	out := result.Outcome
	if out.Result == nil || out.Dataset == nil {
		return failure(result, AssertStoreRoundTrip, "raw draws and dataset", "run produced none")
	}
	ctx := context.Background()
	if actx != nil && actx.Ctx != nil {
		ctx = actx.Ctx
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	digest, err := st.WriteDataset(ctx, out.Dataset)
	if err != nil {
		return err
	}
	rec := store.RunRecord{
		ID:            out.RunID,
		DatasetDigest: digest,
		Config:        out.Result.Config,
		Sampler:       "harness",
		Status:        string(out.Status),
		Elapsed:       out.Elapsed,
	}
	var fit []posterior.FitPoint
	if out.Summary != nil {
		fit = out.Summary.Fit
		rec.Params = out.Summary.Params
	}
	if _, _, err := st.WriteRun(ctx, rec, out.Result, fit); err != nil {
		return err
	}

	back, err := st.ReadDraws(ctx, out.RunID)
	if err != nil {
		return err
	}
	if a, b := out.Result.Digest(), back.Digest(); a != b {
		return failure(result, AssertStoreRoundTrip, "draws digest "+a, b)
	}
	ds, err := st.ReadDataset(ctx, digest)
	if err != nil {
		return err
	}
	if ds.Len() != out.Dataset.Len() {
		return failure(result, AssertStoreRoundTrip,
			fmt.Sprintf("%d observations", out.Dataset.Len()), fmt.Sprintf("%d", ds.Len()))
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failures.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertDrawCount:
			err = assertDrawCount(result, assertion)
		case AssertChainCount:
			err = assertChainCount(result, assertion)
		case AssertPredict:
			err = assertPredict(result, assertion)
		case AssertParamMean:
			err = assertParamMean(result, assertion)
		case AssertBandOrdered:
			err = assertBandOrdered(result)
		case AssertSamplerCalls:
			err = assertSamplerCalls(result, assertion)
		case AssertDistinctSeeds:
			err = assertDistinctSeeds(result)
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertReproducible:
			err = assertReproducible(result, actx)
		case AssertStoreRoundTrip:
			err = assertStoreRoundTrip(result, actx)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

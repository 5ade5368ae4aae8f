package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE string

// runFile mirrors #Run. Pointers distinguish absent fields from zero.
type runFile struct {
	Seed         *uint64  `json:"seed"`
	Chains       *uint64  `json:"chains"`
	Tuning       *uint64  `json:"tuning"`
	Samples      *uint64  `json:"samples"`
	StepBudget   *uint64  `json:"step_budget"`
	Grid         *int     `json:"grid"`
	CredibleMass *float64 `json:"credible_mass"`
	DB           *string  `json:"db"`
	Plot         *struct {
		Width  *int `json:"width"`
		Height *int `json:"height"`
	} `json:"plot"`
}

// ApplyFile overlays the CUE run file at path. The file is unified with
// the embedded #Run schema, so unknown fields and out-of-range values
// are rejected with their file position.
func (c *Config) ApplyFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return &Error{Code: ErrCodeRead, Message: err.Error()}
	}
	rf, err := decodeRunFile(src, path)
	if err != nil {
		return err
	}
	c.apply(rf)
	return nil
}

func decodeRunFile(src []byte, filename string) (*runFile, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile run schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Run"))

	value := ctx.CompileBytes(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, schemaError(err, filename)
	}

	unified := def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, schemaError(err, filename)
	}

	var rf runFile
	if err := unified.Decode(&rf); err != nil {
		return nil, schemaError(err, filename)
	}
	return &rf, nil
}

// schemaError converts a CUE error. It prefers a position inside the run
// file over one inside the schema.
func schemaError(err error, filename string) *Error {
	ce := &Error{Code: ErrCodeSchema, Message: err.Error()}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return ce
	}
	ce.Message = errs[0].Error()
	for _, pos := range append([]token.Pos{errs[0].Position()}, errs[0].InputPositions()...) {
		if !pos.IsValid() {
			continue
		}
		if !ce.Pos.IsValid() || pos.Filename() == filename {
			ce.Pos = pos
		}
		if pos.Filename() == filename {
			break
		}
	}
	return ce
}

func (c *Config) apply(rf *runFile) {
	setIf(&c.Seed, rf.Seed)
	setIf(&c.Chains, rf.Chains)
	setIf(&c.Tuning, rf.Tuning)
	setIf(&c.Samples, rf.Samples)
	setIf(&c.StepBudget, rf.StepBudget)
	setIf(&c.Grid, rf.Grid)
	setIf(&c.CredibleMass, rf.CredibleMass)
	setIf(&c.DBPath, rf.DB)
	if rf.Plot != nil {
		setIf(&c.PlotWidth, rf.Plot.Width)
		setIf(&c.PlotHeight, rf.Plot.Height)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tmaxfit/internal/config"
	"github.com/roach88/tmaxfit/internal/dataset"
	"github.com/roach88/tmaxfit/internal/engine"
	"github.com/roach88/tmaxfit/internal/model"
	"github.com/roach88/tmaxfit/internal/posterior"
	"github.com/roach88/tmaxfit/internal/render"
	"github.com/roach88/tmaxfit/internal/session"
)

func TestOutputFormatter_JSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	data := map[string]string{"result": "success"}
	err := formatter.Success(data)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	assert.NotNil(t, resp.Data)
}

func TestOutputFormatter_JSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	err := formatter.Error("TOO_FEW_OBSERVATIONS", "need at least 2 observations", nil)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.Equal(t, "TOO_FEW_OBSERVATIONS", resp.Error.Code)
	assert.Equal(t, "need at least 2 observations", resp.Error.Message)
}

func TestOutputFormatter_JSONErrorWithDetails(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "json",
		Writer: buf,
	}

	details := map[string]string{"file": "run.cue", "line": "3"}
	err := formatter.Error("CONFIG_SCHEMA", "chains: invalid value", details)
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "error", resp.Status)
	assert.NotNil(t, resp.Error)
	assert.NotNil(t, resp.Error.Details)
}

func TestOutputFormatter_TextSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format: "text",
		Writer: buf,
	}

	err := formatter.Success("All scenarios passed")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "All scenarios passed")
}

func TestOutputFormatter_TextError(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: false,
	}

	err := formatter.Error("TOO_FEW_OBSERVATIONS", "need at least 2 observations", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [TOO_FEW_OBSERVATIONS]")
	assert.Contains(t, buf.String(), "need at least 2 observations")
}

func TestOutputFormatter_TextErrorVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	formatter := &OutputFormatter{
		Format:  "text",
		Writer:  buf,
		Verbose: true,
	}

	details := map[string]string{"file": "run.cue"}
	err := formatter.Error("TOO_FEW_OBSERVATIONS", "need at least 2 observations", details)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Error [TOO_FEW_OBSERVATIONS]")
	assert.Contains(t, buf.String(), "Details:")
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		wantLog  bool
	}{
		{"verbose_enabled", true, true},
		{"verbose_disabled", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			formatter := &OutputFormatter{
				Format:  "text",
				Writer:  buf,
				Verbose: tt.verbose,
			}

			formatter.VerboseLog("Validating %s", "run.cue")

			if tt.wantLog {
				assert.Contains(t, buf.String(), "Validating run.cue")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestCLIResponse_JSON(t *testing.T) {
	resp := CLIResponse{
		Status: "ok",
		Data:   map[string]int{"count": 42},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded CLIResponse
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "ok", decoded.Status)
}

func TestCLIError_JSON(t *testing.T) {
	cliErr := CLIError{
		Code:    "CONFIG_INVALID",
		Message: "validation failed",
		Details: []string{"grid must be at least 2"},
	}

	data, err := json.Marshal(cliErr)
	require.NoError(t, err)

	var decoded CLIError
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)
	assert.Equal(t, "CONFIG_INVALID", decoded.Code)
	assert.Equal(t, "validation failed", decoded.Message)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"parse", &dataset.ParseError{Code: dataset.ErrCodeEmptyInput}, "EMPTY_INPUT"},
		{"model", &model.ModelError{Code: model.ErrCodeDegenerateX}, "DEGENERATE_X"},
		{"config wrapped", WrapExitError(ExitCommandError, "failed to load config", &config.Error{Code: config.ErrCodeSchema}), "CONFIG_SCHEMA"},
		{"engine", engine.NewConfigError("chain count must be at least 1"), "INVALID_CONFIG"},
		{"sampler", &engine.SamplerError{Chain: 1, Err: errors.New("boom")}, ErrCodeSampler},
		{"render", &render.RenderError{Code: render.CodeBadSurface}, "BAD_SURFACE"},
		{"no draws", fmt.Errorf("summarize: %w", posterior.ErrNoDraws), ErrCodeNoDraws},
		{"busy", session.ErrBusy, ErrCodeBusy},
		{"other", errors.New("disk full"), ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCode(tt.err))
		})
	}
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitFailure, "run failed"))))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	err := WrapExitError(ExitFailure, "run failed", posterior.ErrNoDraws)
	assert.Equal(t, "run failed: posterior: no post-tuning draws to summarize", err.Error())
	assert.ErrorIs(t, err, posterior.ErrNoDraws)
}

package modelchain

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triagekit/internal/upstream/genai"
)

type fakeCaller struct {
	responses map[string]string
	errs      map[string]error
	calls     []string
}

func (f *fakeCaller) GenerateContent(_ context.Context, model string, _ genai.GenerationRequest) (string, error) {
	f.calls = append(f.calls, model)
	if err, ok := f.errs[model]; ok {
		return "", err
	}
	return f.responses[model], nil
}

func notFound() error {
	return &genai.Error{Kind: genai.KindNotFound, StatusCode: http.StatusNotFound}
}

func TestGenerateFallsThroughToWorkingCandidate(t *testing.T) {
	caller := &fakeCaller{
		responses: map[string]string{"model-c": "hello from c"},
		errs:      map[string]error{"model-a": notFound(), "model-b": notFound()},
	}
	var fallbacks []string
	chain := New(caller, nil, WithFallbackObserver(func(model string) {
		fallbacks = append(fallbacks, model)
	}))

	text, err := chain.Generate(context.Background(), []string{"model-a", "model-b", "model-c"}, genai.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello from c", text)
	assert.Equal(t, []string{"model-a", "model-b", "model-c"}, caller.calls)
	assert.Equal(t, []string{"model-a", "model-b"}, fallbacks)
}

func TestGenerateExhaustsAllCandidates(t *testing.T) {
	caller := &fakeCaller{
		errs: map[string]error{"a": notFound(), "b": notFound(), "c": notFound()},
	}
	chain := New(caller, nil)

	_, err := chain.Generate(context.Background(), []string{"a", "b", "c"}, genai.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.Len(t, caller.calls, 3)
}

func TestGenerateAbortsOnNonNotFoundFailure(t *testing.T) {
	upErr := &genai.Error{Kind: genai.KindTransient, StatusCode: http.StatusTooManyRequests}
	caller := &fakeCaller{
		errs:      map[string]error{"a": notFound(), "b": upErr},
		responses: map[string]string{"c": "never reached"},
	}
	chain := New(caller, nil)

	_, err := chain.Generate(context.Background(), []string{"a", "b", "c"}, genai.GenerationRequest{Prompt: "hi"})
	var got *genai.Error
	require.ErrorAs(t, err, &got)
	assert.Equal(t, genai.KindTransient, got.Kind)
	assert.Equal(t, []string{"a", "b"}, caller.calls, "candidate after the aborting failure must not be tried")
}

func TestGenerateFirstCandidateWinsWithoutFallback(t *testing.T) {
	caller := &fakeCaller{responses: map[string]string{"a": "from a"}}
	fallbackCount := 0
	chain := New(caller, nil, WithFallbackObserver(func(string) { fallbackCount++ }))

	text, err := chain.Generate(context.Background(), []string{"a", "b", "c"}, genai.GenerationRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "from a", text)
	assert.Equal(t, []string{"a"}, caller.calls)
	assert.Zero(t, fallbackCount)
}

func TestGenerateEmptyCandidateList(t *testing.T) {
	chain := New(&fakeCaller{}, nil)
	_, err := chain.Generate(context.Background(), nil, genai.GenerationRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

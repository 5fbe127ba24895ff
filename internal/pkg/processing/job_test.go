package processing

import (
	"strings"
	"testing"

	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() JobInput {
	return JobInput{
		SourceURL: "https://cdn.example.com/in.mp3",
		Prompt:    "the singer's voice",
		Tier:      entitlements.TierBase,
	}
}

func TestNormalizeDefaults(t *testing.T) {
	in := validInput()
	in.Tier = ""
	in.Prompt = "  vocals  "

	out, err := Normalize(in)
	require.NoError(t, err)
	assert.Equal(t, entitlements.TierLarge, out.Tier)
	assert.Equal(t, DefaultRerankingCandidates, out.RerankingCandidates)
	assert.Equal(t, "vocals", out.Prompt)
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*JobInput)
		msg    string
	}{
		{"missing url", func(in *JobInput) { in.SourceURL = "" }, "audio_url"},
		{"not http", func(in *JobInput) { in.SourceURL = "ftp://example.com/a.wav" }, "audio_url"},
		{"blank prompt", func(in *JobInput) { in.Prompt = "   " }, "description"},
		{"long prompt", func(in *JobInput) { in.Prompt = strings.Repeat("a", 501) }, "description"},
		{"unknown tier", func(in *JobInput) { in.Tier = "huge" }, "model_size"},
		{"too few candidates", func(in *JobInput) { in.RerankingCandidates = 1 }, "reranking_candidates"},
		{"too many candidates", func(in *JobInput) { in.RerankingCandidates = 33 }, "reranking_candidates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := Normalize(in)
			require.Error(t, err)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestBuildRequest(t *testing.T) {
	in := validInput()
	in.Tier = entitlements.TierLargeTV
	in.RerankingCandidates = 16

	req := buildRequest(in)
	assert.Equal(t, "quality", req.Acceleration)
	assert.Equal(t, "wav", req.OutputFormat)
	assert.False(t, req.PredictSpans)
	assert.Zero(t, req.RerankingCandidates)

	in.HighFidelity = true
	req = buildRequest(in)
	assert.True(t, req.PredictSpans)
	assert.Equal(t, 7, req.RerankingCandidates)

	in.RerankingCandidates = 2
	assert.Equal(t, 2, buildRequest(in).RerankingCandidates)
	assert.Equal(t, "fast", buildRequest(JobInput{Tier: entitlements.TierSmall}).Acceleration)
}

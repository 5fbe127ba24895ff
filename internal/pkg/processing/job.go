package processing

import (
	"fmt"
	"strings"

	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultRerankingCandidates = 8
	// upstream accepts at most 7 reranking candidates
	maxUpstreamCandidates = 7
	defaultSampleRate     = 48000
)

// JobInput is one separation request.
type JobInput struct {
	SourceURL           string            `json:"audio_url" validate:"required,http_url"`
	Prompt              string            `json:"description" validate:"required,max=500"`
	Tier                entitlements.Tier `json:"model_size" validate:"required,oneof=small base large large-tv"`
	HighFidelity        bool              `json:"high_quality"`
	RerankingCandidates int               `json:"reranking_candidates" validate:"omitempty,min=2,max=32"`
}

// JobOutput points at the re-hosted outputs.
type JobOutput struct {
	TargetURL   string  `json:"target_url"`
	ResidualURL string  `json:"residual_url"`
	SampleRate  int     `json:"sample_rate"`
	Duration    float64 `json:"duration"`
	Attempts    int     `json:"-"`
}

var validate = validator.New()

// Normalize trims and defaults in, then validates it.
func Normalize(in JobInput) (JobInput, error) {
	in.SourceURL = strings.TrimSpace(in.SourceURL)
	in.Prompt = strings.TrimSpace(in.Prompt)
	if in.Tier == "" {
		in.Tier = entitlements.DefaultTier
	}
	if in.RerankingCandidates == 0 {
		in.RerankingCandidates = DefaultRerankingCandidates
	}
	if err := validate.Struct(in); err != nil {
		return in, &JobError{Kind: KindValidation, Err: describeValidation(err)}
	}
	return in, nil
}

func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	switch fe.Field() {
	case "SourceURL":
		return fmt.Errorf("audio_url must be an http(s) URL")
	case "Prompt":
		if fe.Tag() == "max" {
			return fmt.Errorf("description must be at most %s characters", fe.Param())
		}
		return fmt.Errorf("description is required")
	case "Tier":
		return fmt.Errorf("model_size must be one of small, base, large, large-tv")
	case "RerankingCandidates":
		return fmt.Errorf("reranking_candidates must be between 2 and 32")
	}
	return err
}

// buildRequest maps a validated job to upstream arguments.
func buildRequest(in JobInput) Request {
	req := Request{
		AudioURL:     in.SourceURL,
		Prompt:       in.Prompt,
		Acceleration: entitlements.Acceleration(in.Tier),
		OutputFormat: "wav",
		PredictSpans: in.HighFidelity,
	}
	if in.HighFidelity {
		req.RerankingCandidates = clampCandidates(in.RerankingCandidates)
	}
	return req
}

func clampCandidates(n int) int {
	if n < 1 {
		return 1
	}
	if n > maxUpstreamCandidates {
		return maxUpstreamCandidates
	}
	return n
}

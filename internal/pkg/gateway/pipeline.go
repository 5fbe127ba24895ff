package gateway

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/clearaudio/gateway/app/models"
	"github.com/clearaudio/gateway/internal/pkg/metrics"
	"github.com/clearaudio/gateway/internal/pkg/processing"
	"github.com/clearaudio/gateway/internal/pkg/share"
	"github.com/clearaudio/gateway/internal/pkg/usage"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
)

// MaxLabelLength matches the label columns of usage_entries and share_records.
const MaxLabelLength = 500

var validate = validator.New()

type Admitter interface {
	AdmitAndRecord(ctx context.Context, userID string, p usage.Profile) (*usage.Admission, error)
}

type Processor interface {
	Validate(in processing.JobInput) (processing.JobInput, error)
	RunProcessingJob(ctx context.Context, in processing.JobInput) (*processing.JobOutput, error)
}

type Publisher interface {
	Create(ctx context.Context, entryID, userID string, out share.Outcome) (*models.ShareRecord, error)
}

// Request is one separation request. SizeBytes is the declared input
// size; Label defaults to the prompt.
type Request struct {
	Job       processing.JobInput
	SizeBytes int64
	Label     string
}

// Result carries whatever stages completed. On a failure after admission
// Separate returns both a Result and an error.
type Result struct {
	Admission *usage.Admission
	Output    *processing.JobOutput
	Share     *models.ShareRecord
}

// DeniedError is returned when admission refused the request.
type DeniedError struct {
	Admission *usage.Admission
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("gateway: admission denied (%s): %s", e.Admission.Code, e.Admission.Reason)
}

// Pipeline runs validate, admit, process and share in that order.
type Pipeline struct {
	admitter  Admitter
	processor Processor
	shares    Publisher
}

func NewPipeline(admitter Admitter, processor Processor, shares Publisher) *Pipeline {
	return &Pipeline{admitter: admitter, processor: processor, shares: shares}
}

// Separate consumes one unit of the user's quota and runs the job. Invalid
// input is rejected before admission. A unit consumed by a job that later
// fails stays consumed.
func (p *Pipeline) Separate(ctx context.Context, userID string, req Request) (*Result, error) {
	job, err := p.processor.Validate(req.Job)
	if err != nil {
		return nil, err
	}
	label, err := normalizeLabel(req.Label, job.Prompt)
	if err != nil {
		return nil, err
	}

	adm, err := p.admitter.AdmitAndRecord(ctx, userID, usage.Profile{
		Tier:         job.Tier,
		SizeBytes:    req.SizeBytes,
		HighFidelity: job.HighFidelity,
		Label:        label,
	})
	if err != nil {
		metrics.RecordAdmission("", "error")
		return nil, err
	}
	res := &Result{Admission: adm}
	if !adm.Admitted {
		metrics.RecordAdmission(adm.Plan, string(adm.Code))
		return res, &DeniedError{Admission: adm}
	}
	metrics.RecordAdmission(adm.Plan, "admitted")

	out, err := p.processor.RunProcessingJob(ctx, job)
	if err != nil {
		log.Warnf("[Gateway] job for entry %s failed: %v", adm.Entry.ID, err)
		return res, err
	}
	res.Output = out

	rec, err := p.shares.Create(ctx, adm.Entry.ID, userID, share.Outcome{
		Label:       label,
		SourceURL:   job.SourceURL,
		TargetURL:   out.TargetURL,
		ResidualURL: out.ResidualURL,
		SampleRate:  out.SampleRate,
	})
	if err != nil {
		log.Errorf("[Gateway] share for entry %s failed: %v", adm.Entry.ID, err)
		return res, fmt.Errorf("gateway: publish share: %w", err)
	}
	res.Share = rec
	return res, nil
}

// normalizeLabel defaults an empty label to the prompt and rejects labels
// the store cannot hold.
func normalizeLabel(label, prompt string) (string, error) {
	if label == "" {
		label = prompt
	}
	if !utf8.ValidString(label) {
		return "", &processing.JobError{Kind: processing.KindValidation, Err: errors.New("label must be valid UTF-8")}
	}
	if err := validate.Var(label, fmt.Sprintf("omitempty,max=%d", MaxLabelLength)); err != nil {
		return "", &processing.JobError{
			Kind: processing.KindValidation,
			Err:  fmt.Errorf("label must be at most %d characters", MaxLabelLength),
		}
	}
	return label, nil
}

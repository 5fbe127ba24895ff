package controllers

import (
	"github.com/clearaudio/gateway/internal/pkg/entitlements"
	"github.com/clearaudio/gateway/internal/pkg/gateway"
	"github.com/clearaudio/gateway/internal/pkg/processing"
	"github.com/clearaudio/gateway/internal/pkg/usage"
	"github.com/clearaudio/gateway/internal/pkg/usercontext"
	"github.com/gofiber/fiber/v2"
)

type separationRequest struct {
	processing.JobInput
	FileSizeBytes int64  `json:"file_size_bytes"`
	Label         string `json:"label"`
}

type authorizeRequest struct {
	Tier          entitlements.Tier `json:"model_size"`
	HighFidelity  bool              `json:"high_quality"`
	FileSizeBytes int64             `json:"file_size_bytes"`
}

// HandleAuthorizeSeparation reports whether a separation with the given
// profile would be admitted now. Nothing is recorded.
func (a *API) HandleAuthorizeSeparation(c *fiber.Ctx) error {
	var req authorizeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "VALIDATION_ERROR", "message": "Invalid request body"})
	}
	if req.Tier == "" {
		req.Tier = entitlements.DefaultTier
	}
	if _, ok := entitlements.LookupTier(req.Tier); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "VALIDATION_ERROR", "message": "model_size must be one of small, base, large, large-tv"})
	}
	if req.FileSizeBytes < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "VALIDATION_ERROR", "message": "file_size_bytes must not be negative"})
	}

	adm, err := a.Usage.Check(c.UserContext(), usercontext.GetUserID(c), usage.Profile{
		Tier:         req.Tier,
		SizeBytes:    req.FileSizeBytes,
		HighFidelity: req.HighFidelity,
	})
	if err != nil {
		return writeProblem(c, err, nil)
	}
	if !adm.Admitted {
		extra := fiber.Map{}
		if adm.Code != usage.DenialUnauthenticated {
			extra["usage"] = usageSummary(adm)
		}
		return writeProblem(c, &gateway.DeniedError{Admission: adm}, extra)
	}
	return c.JSON(fiber.Map{
		"allowed": true,
		"usage":   usageSummary(adm),
	})
}

// HandleCreateSeparation runs one separation for the authenticated caller.
func (a *API) HandleCreateSeparation(c *fiber.Ctx) error {
	var req separationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "VALIDATION_ERROR", "message": "Invalid request body"})
	}
	if req.FileSizeBytes < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "VALIDATION_ERROR", "message": "file_size_bytes must not be negative"})
	}

	userID := usercontext.GetUserID(c)
	res, err := a.Pipeline.Separate(c.UserContext(), userID, gateway.Request{
		Job:       req.JobInput,
		SizeBytes: req.FileSizeBytes,
		Label:     req.Label,
	})
	if err != nil {
		extra := fiber.Map{}
		if res != nil && res.Admission != nil && res.Admission.Code != usage.DenialUnauthenticated {
			extra["usage"] = usageSummary(res.Admission)
		}
		if res != nil && res.Output != nil {
			// processed but not published; the outputs are still returned
			extra["target_url"] = res.Output.TargetURL
			extra["residual_url"] = res.Output.ResidualURL
		}
		return writeProblem(c, err, extra)
	}

	return c.JSON(fiber.Map{
		"target_url":   res.Output.TargetURL,
		"residual_url": res.Output.ResidualURL,
		"sample_rate":  res.Output.SampleRate,
		"duration":     res.Output.Duration,
		"share_id":     res.Share.ShareID,
		"usage":        usageSummary(res.Admission),
	})
}

package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyforge/api/internal/middleware"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/pkg/response"
)

type SegmentHandler struct {
	service   *service.SegmentService
	validator *validator.Validate
}

func NewSegmentHandler(svc *service.SegmentService, v *validator.Validate) *SegmentHandler {
	return &SegmentHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/stories/:id/segments
func (h *SegmentHandler) Generate(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	var req model.SegmentsGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	story, err := h.service.Generate(c.Context(), middleware.GetUserID(c), storyID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, story)
}

// List handles GET /api/stories/:id/segments
func (h *SegmentHandler) List(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	segments, err := h.service.List(c.Context(), middleware.GetUserID(c), storyID)
	if err != nil {
		return response.FromError(c, err)
	}

	if segments == nil {
		segments = []*model.Segment{}
	}
	return response.OK(c, segments)
}

// Add handles POST /api/stories/:id/segments/add
func (h *SegmentHandler) Add(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	var req model.SegmentAddRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	segment, err := h.service.Add(c.Context(), middleware.GetUserID(c), storyID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, segment)
}

// RegenerateImage handles POST /api/stories/:id/segments/:segmentId/image
func (h *SegmentHandler) RegenerateImage(c *fiber.Ctx) error {
	storyID := c.Params("id")
	segmentID := c.Params("segmentId")
	if storyID == "" || segmentID == "" {
		return response.ValidationError(c, "Story ID and segment ID are required", nil)
	}

	segment, err := h.service.RegenerateImage(c.Context(), middleware.GetUserID(c), storyID, segmentID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, segment)
}

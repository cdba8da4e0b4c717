package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyforge/api/internal/middleware"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/pkg/response"
)

type VideoHandler struct {
	service   *service.VideoService
	validator *validator.Validate
}

func NewVideoHandler(svc *service.VideoService, v *validator.Validate) *VideoHandler {
	return &VideoHandler{
		service:   svc,
		validator: v,
	}
}

// Generate handles POST /api/stories/:id/video
func (h *VideoHandler) Generate(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	var req model.VideoGenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Generate(c.Context(), middleware.GetUserID(c), storyID, &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, result)
}

// Latest handles GET /api/stories/:id/video
func (h *VideoHandler) Latest(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	video, err := h.service.Latest(c.Context(), middleware.GetUserID(c), storyID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, video)
}

// Get handles GET /api/videos/:id
func (h *VideoHandler) Get(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	video, err := h.service.Get(c.Context(), middleware.GetUserID(c), videoID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, video)
}

// PollTranscription handles GET /api/videos/:id/transcription
func (h *VideoHandler) PollTranscription(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if videoID == "" {
		return response.ValidationError(c, "Video ID is required", nil)
	}

	result, err := h.service.PollTranscription(c.Context(), middleware.GetUserID(c), videoID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, result)
}

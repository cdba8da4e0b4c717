package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyforge/api/internal/middleware"
	"github.com/storyforge/api/internal/model"
	"github.com/storyforge/api/internal/service"
	"github.com/storyforge/api/pkg/response"
)

type StoryHandler struct {
	service   *service.StoryService
	validator *validator.Validate
}

func NewStoryHandler(svc *service.StoryService, v *validator.Validate) *StoryHandler {
	return &StoryHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/stories
func (h *StoryHandler) Create(c *fiber.Ctx) error {
	var req model.StoryCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.CreateGuided(c.Context(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Accepted(c, result)
}

// List handles GET /api/stories
func (h *StoryHandler) List(c *fiber.Ctx) error {
	stories, err := h.service.List(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return response.FromError(c, err)
	}

	if stories == nil {
		stories = []*model.Story{}
	}
	return response.OK(c, stories)
}

// Get handles GET /api/stories/:id
func (h *StoryHandler) Get(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	story, err := h.service.Get(c.Context(), middleware.GetUserID(c), storyID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, story)
}

// UpdateScript handles PUT /api/stories/:id/script
func (h *StoryHandler) UpdateScript(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	var req model.ScriptUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	story, err := h.service.UpdateScript(c.Context(), middleware.GetUserID(c), storyID, req.Script)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, story)
}

// Review handles POST /api/stories/:id/review
func (h *StoryHandler) Review(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	story, err := h.service.Review(c.Context(), middleware.GetUserID(c), storyID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, story)
}

// FixGrammar handles POST /api/stories/:id/grammar
func (h *StoryHandler) FixGrammar(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	story, err := h.service.FixGrammar(c.Context(), middleware.GetUserID(c), storyID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.OK(c, story)
}

// Clone handles POST /api/stories/:id/clone
func (h *StoryHandler) Clone(c *fiber.Ctx) error {
	storyID := c.Params("id")
	if storyID == "" {
		return response.ValidationError(c, "Story ID is required", nil)
	}

	result, err := h.service.Clone(c.Context(), middleware.GetUserID(c), storyID)
	if err != nil {
		return response.FromError(c, err)
	}

	return response.Created(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}

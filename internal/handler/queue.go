package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/marketsci/robynq/internal/model"
	"github.com/marketsci/robynq/internal/service"
	"github.com/marketsci/robynq/pkg/response"
)

type QueueHandler struct {
	service   *service.QueueService
	validator *validator.Validate
}

func NewQueueHandler(svc *service.QueueService, v *validator.Validate) *QueueHandler {
	return &QueueHandler{
		service:   svc,
		validator: v,
	}
}

// Enqueue handles POST /api/queues/:queue/jobs
func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	queueName := c.Params("queue")
	if queueName == "" {
		return response.ValidationError(c, "Queue name is required", nil)
	}

	var req model.EnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	ids, err := h.service.Enqueue(c.Context(), queueName, req.Jobs)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, model.EnqueueResponse{
		Queue: queueName,
		IDs:   ids,
		Count: len(ids),
	})
}

// Get handles GET /api/queues/:queue
func (h *QueueHandler) Get(c *fiber.Ctx) error {
	queueName := c.Params("queue")
	if queueName == "" {
		return response.ValidationError(c, "Queue name is required", nil)
	}

	result, err := h.service.Get(c.Context(), queueName)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Pause handles POST /api/queues/:queue/pause
func (h *QueueHandler) Pause(c *fiber.Ctx) error {
	queueName := c.Params("queue")
	if queueName == "" {
		return response.ValidationError(c, "Queue name is required", nil)
	}

	result, err := h.service.Pause(c.Context(), queueName)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Resume handles POST /api/queues/:queue/resume
func (h *QueueHandler) Resume(c *fiber.Ctx) error {
	queueName := c.Params("queue")
	if queueName == "" {
		return response.ValidationError(c, "Queue name is required", nil)
	}

	result, err := h.service.Resume(c.Context(), queueName)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Tick handles POST /api/queues/:queue/tick
func (h *QueueHandler) Tick(c *fiber.Ctx) error {
	queueName := c.Params("queue")
	if queueName == "" {
		return response.ValidationError(c, "Queue name is required", nil)
	}

	result, err := h.service.Tick(c.Context(), queueName)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
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

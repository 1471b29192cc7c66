package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
	"tracker_server/core/service/ingest"
	"tracker_server/pkg/logger"
)

// MessageHandler exposes mailbox ingestion and the stored message views.
type MessageHandler struct {
	ingest   *ingest.Service
	messages out.MessageRepository
	links    out.LinkRepository
	queue    out.LabelSyncQueue

	defaultDaysBack   int
	defaultMaxResults int64
	keywords          []string
	labelName         string
}

// MessageHandlerConfig wires a MessageHandler.
type MessageHandlerConfig struct {
	Ingest   *ingest.Service
	Messages out.MessageRepository
	Links    out.LinkRepository
	Queue    out.LabelSyncQueue

	DefaultDaysBack   int
	DefaultMaxResults int64
	Keywords          []string
	LabelName         string
}

func NewMessageHandler(cfg MessageHandlerConfig) *MessageHandler {
	return &MessageHandler{
		ingest:            cfg.Ingest,
		messages:          cfg.Messages,
		links:             cfg.Links,
		queue:             cfg.Queue,
		defaultDaysBack:   cfg.DefaultDaysBack,
		defaultMaxResults: cfg.DefaultMaxResults,
		keywords:          cfg.Keywords,
		labelName:         cfg.LabelName,
	}
}

func (h *MessageHandler) Register(router fiber.Router) {
	group := router.Group("/emails")
	group.Post("/fetch", h.Fetch)
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Post("/:id/process", h.Process)
	group.Get("/:id/links", h.Links)
}

type fetchRequest struct {
	DaysBack   int   `json:"days_back"`
	MaxResults int64 `json:"max_results"`
}

// Fetch runs one ingestion pass over the connected mailbox.
func (h *MessageHandler) Fetch(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	var req fetchRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
	}
	if req.DaysBack <= 0 {
		req.DaysBack = h.defaultDaysBack
	}
	if req.MaxResults <= 0 {
		req.MaxResults = h.defaultMaxResults
	}

	result, err := h.ingest.Run(c.Context(), userID, ingest.Options{
		DaysBack:   req.DaysBack,
		MaxResults: req.MaxResults,
		Keywords:   h.keywords,
	})
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, result)
}

// List returns stored messages matching the query filters.
func (h *MessageHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	page := GetPaginationParams(c, 50)
	filter := &domain.MessageFilter{
		UserID:    userID,
		Processed: QueryBool(c, "processed"),
		Search:    c.Query("search"),
		Limit:     page.Limit,
		Offset:    page.Offset,
	}
	if v := c.Query("category"); v != "" {
		category := domain.MessageCategory(v)
		filter.Category = &category
	}
	if v := c.Query("sub_category"); v != "" {
		sub := domain.MessageSubCategory(v)
		filter.SubCategory = &sub
	}

	items, err := h.messages.List(c.Context(), filter)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"emails": items,
		"count":  len(items),
	})
}

// Get returns one stored message with both body variants.
func (h *MessageHandler) Get(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid message id")
	}

	msg, err := h.messages.GetByID(c.Context(), userID, id)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "message not found")
		}
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, msg)
}

type processRequest struct {
	ApplicationID *int64 `json:"application_id"`
}

// Process links a message to a tracked application and schedules the
// mailbox read marker in the background.
func (h *MessageHandler) Process(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid message id")
	}

	var req processRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		}
	}

	msg, err := h.messages.GetByID(c.Context(), userID, id)
	if err != nil {
		if errors.Is(err, out.ErrNotFound) {
			return ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", "message not found")
		}
		return AppErrorResponse(c, err)
	}

	if err := h.messages.MarkProcessed(c.Context(), userID, id, req.ApplicationID); err != nil {
		return AppErrorResponse(c, err)
	}

	// Best effort: the read marker in the mailbox is cosmetic
	if err := h.queue.Enqueue(c.Context(), &out.LabelSyncJob{
		UserID:     userID,
		ProviderID: msg.ProviderID,
		LabelName:  h.labelName,
		MarkRead:   true,
	}); err != nil {
		logger.WithError(err).Warn("failed to enqueue read marker")
	}

	return SuccessResponse(c, fiber.Map{"processed": true})
}

// Links returns the job posting links discovered in one message.
func (h *MessageHandler) Links(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid message id")
	}

	links, err := h.links.ListByMessage(c.Context(), userID, id)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"links": links,
		"count": len(links),
	})
}

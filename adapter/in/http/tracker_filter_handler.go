package http

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"tracker_server/core/domain"
	"tracker_server/core/port/out"
)

// FilterHandler manages per-user sender domain rules.
type FilterHandler struct {
	filters out.DomainFilterRepository
}

func NewFilterHandler(filters out.DomainFilterRepository) *FilterHandler {
	return &FilterHandler{filters: filters}
}

func (h *FilterHandler) Register(router fiber.Router) {
	group := router.Group("/filters")
	group.Get("/", h.List)
	group.Post("/", h.Create)
	group.Delete("/:id", h.Delete)
}

func (h *FilterHandler) List(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	filters, err := h.filters.ListByUser(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"filters": filters})
}

type createFilterRequest struct {
	Domain string `json:"domain"`
	Allow  bool   `json:"allow"`
}

func (h *FilterHandler) Create(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	var req createFilterRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid request body")
	}

	domainName := strings.ToLower(strings.TrimSpace(req.Domain))
	if domainName == "" || !strings.Contains(domainName, ".") {
		return ErrorResponse(c, fiber.StatusBadRequest, "INVALID_INPUT", "domain must be a hostname")
	}

	filter := &domain.DomainFilter{
		UserID: userID,
		Domain: domainName,
		Allow:  req.Allow,
	}
	if err := h.filters.Create(c.Context(), filter); err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, filter)
}

func (h *FilterHandler) Delete(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid filter id")
	}

	if err := h.filters.Delete(c.Context(), userID, id); err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"deleted": true})
}

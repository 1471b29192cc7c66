package http

import (
	"github.com/gofiber/fiber/v2"

	"tracker_server/core/service/auth"
	"tracker_server/pkg/logger"
)

// AuthHandler exposes the mailbox connect and disconnect flow.
type AuthHandler struct {
	oauth *auth.OAuthService
}

func NewAuthHandler(oauth *auth.OAuthService) *AuthHandler {
	return &AuthHandler{oauth: oauth}
}

// Register mounts the authenticated routes. The callback is mounted
// separately because the provider redirects there without our token.
func (h *AuthHandler) Register(router fiber.Router) {
	group := router.Group("/auth/google")
	group.Get("/init", h.Init)
	group.Get("/status", h.Status)
	group.Delete("/", h.Disconnect)
}

// Init issues the consent URL for the authenticated user.
func (h *AuthHandler) Init(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	authURL, err := h.oauth.StartAuth(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"auth_url": authURL})
}

// Callback handles the provider redirect and stores the credential.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		logger.Warn("oauth consent denied: %s", errParam)
		return ErrorResponse(c, fiber.StatusBadRequest, "OAUTH_FAILED", "consent was denied")
	}

	cred, err := h.oauth.CompleteAuth(c.Context(), c.Query("state"), c.Query("code"))
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"connected": true,
		"email":     cred.Email,
	})
}

// Status reports whether a mailbox is connected.
func (h *AuthHandler) Status(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	cred, err := h.oauth.Status(c.Context(), userID)
	if err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{
		"connected":  cred.IsConnected,
		"email":      cred.Email,
		"expires_at": cred.ExpiresAt,
	})
}

// Disconnect revokes the stored credential.
func (h *AuthHandler) Disconnect(c *fiber.Ctx) error {
	userID, err := GetUserID(c)
	if err != nil {
		return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	}

	if err := h.oauth.Disconnect(c.Context(), userID); err != nil {
		return AppErrorResponse(c, err)
	}

	return SuccessResponse(c, fiber.Map{"connected": false})
}

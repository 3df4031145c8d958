package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"campusnotes/internal/auth"
	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/model"
	"campusnotes/internal/service"
)

// UserHandler serves the signed-in user's profile.
type UserHandler struct {
	svc    service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a handler layer.
func NewUserHandler(svc service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, logger: logger}
}

// UserResponse wraps a public user.
type UserResponse struct {
	User model.PublicUser `json:"user"`
}

// Me godoc
// @Summary Get the current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/me [get]
func (h *UserHandler) Me(c echo.Context) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return errorResponse(c, h.logger, apperrors.ErrUserNotFound)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return errorResponse(c, h.logger, apperrors.ErrUserNotFound)
	}

	user, err := h.svc.GetUser(c.Request().Context(), id)
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	return c.JSON(http.StatusOK, UserResponse{User: user.Public()})
}

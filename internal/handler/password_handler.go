package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "campusnotes/internal/errors"
	"campusnotes/internal/service"
)

// ForgotPasswordMessage is returned for every accepted forgot-password request.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

// ResetQueue accepts forgot-password requests for background processing.
// Enqueue must return without doing account-dependent work.
type ResetQueue interface {
	Enqueue(ctx context.Context, email string) bool
}

// PasswordHandler handles the forgot/reset password endpoints.
type PasswordHandler struct {
	passwords service.PasswordService
	queue     ResetQueue
	logger    *slog.Logger
}

// NewPasswordHandler creates a new password handler.
func NewPasswordHandler(passwords service.PasswordService, queue ResetQueue, logger *slog.Logger) *PasswordHandler {
	return &PasswordHandler{passwords: passwords, queue: queue, logger: logger}
}

// ForgotPasswordRequest represents a forgot-password request.
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetPasswordRequest represents a reset-password request.
type ResetPasswordRequest struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=72,bcrypt_len"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

// VerifyResetTokenResponse reports whether a reset token is usable.
type VerifyResetTokenResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// ForgotPassword godoc
// @Summary Request a password reset email
// @Description Always answers with the same message whether or not the account exists.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Account email"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.RateLimitResponse
// @Router /auth/forgot-password [post]
func (h *PasswordHandler) ForgotPassword(c echo.Context) error {
	var req ForgotPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	h.queue.Enqueue(c.Request().Context(), req.Email)

	return c.JSON(http.StatusOK, MessageResponse{Message: ForgotPasswordMessage})
}

// ResetPassword godoc
// @Summary Set a new password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Token and new password"
// @Success 200 {object} MessageResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/reset-password [post]
func (h *PasswordHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.passwords.ResetPassword(c.Request().Context(), req.Token, req.Password); err != nil {
		return errorResponse(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, MessageResponse{
		Message: "Password has been reset successfully. Please log in with your new password.",
	})
}

// VerifyResetToken godoc
// @Summary Check whether a reset token can still be used
// @Tags auth
// @Produce json
// @Param token path string true "Reset token"
// @Success 200 {object} VerifyResetTokenResponse
// @Failure 400 {object} VerifyResetTokenResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /auth/verify-reset-token/{token} [get]
func (h *PasswordHandler) VerifyResetToken(c echo.Context) error {
	valid, err := h.passwords.VerifyResetToken(c.Request().Context(), c.Param("token"))
	if err != nil {
		return errorResponse(c, h.logger, err)
	}
	if !valid {
		return c.JSON(http.StatusBadRequest, VerifyResetTokenResponse{
			Valid: false,
			Error: apperrors.ErrInvalidResetToken.Error(),
		})
	}
	return c.JSON(http.StatusOK, VerifyResetTokenResponse{Valid: true})
}

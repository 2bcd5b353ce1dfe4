package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	pkgerrors "github.com/peakform/peakform-backend/internal/pkg/errors"
	"github.com/peakform/peakform-backend/internal/services"
)

type AuthHandler struct {
	auth services.AuthService
}

func NewAuthHandler(auth services.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	user, err := h.auth.RegisterUser(c.Request.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidArgument) {
			RespondError(c, http.StatusBadRequest, "invalid_input", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "register_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// POST /api/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	token, err := h.auth.LoginUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		RespondError(c, http.StatusUnauthorized, "invalid_credentials", err)
		return
	}
	RespondOK(c, gin.H{
		"access_token": token,
		"expires_in":   int(h.auth.GetAccessTTL().Seconds()),
	})
}

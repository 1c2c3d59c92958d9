package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aethra/compass/internal/auth"
	"github.com/aethra/compass/internal/errors"
	"github.com/aethra/compass/internal/models"
	"github.com/aethra/compass/internal/subscription"
)

type registerRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	FullName    string `json:"full_name"`
	CompanyName string `json:"company_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Register creates a user with a free-plan subscription record
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, err)
		return
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		CompanyName:  req.CompanyName,
		IsActive:     true,
	}
	if err := h.store.InsertUser(c.Request.Context(), &user); err != nil {
		respondError(c, err)
		return
	}

	profile := models.Profile{
		UserID:             user.ID,
		PlanID:             subscription.PlanFree,
		SubscriptionStatus: "active",
	}
	if err := h.store.InsertProfile(c.Request.Context(), &profile); err != nil {
		respondError(c, err)
		return
	}

	tokens, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "tokens": tokens})
}

// Login authenticates with email and password
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}

	user, err := h.store.GetUserByEmail(c.Request.Context(), req.Email)
	if err != nil || !user.IsActive || !auth.CheckPassword(req.Password, user.PasswordHash) {
		respondError(c, errors.NewUnauthorizedError("invalid email or password"))
		return
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := h.store.UpdateUser(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}

	tokens, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "tokens": tokens})
}

// RefreshToken exchanges a refresh token for a new token pair
func (h *Handler) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.NewValidationError("", err.Error()))
		return
	}

	claims, err := h.jwt.ValidateToken(req.RefreshToken)
	if err != nil {
		respondError(c, errors.NewUnauthorizedError("invalid refresh token"))
		return
	}
	user, err := h.store.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		respondError(c, errors.NewUnauthorizedError("invalid refresh token"))
		return
	}

	tokens, err := h.jwt.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tokens": tokens})
}

// Me returns the authenticated user
func (h *Handler) Me(c *gin.Context) {
	user, err := h.store.GetUser(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

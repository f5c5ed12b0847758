package user

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SubjectParam is the route parameter holding either a username
// (/:subject/update-cards) or a whole "<user>-subscribed-to-<url>" segment.
const SubjectParam = "subject"

type UserController struct {
	userService UserServiceInterface
}

func NewUserController(userService UserServiceInterface) *UserController {
	return &UserController{
		userService: userService,
	}
}

// SetupRoutes registers the directory endpoints on r.
func (uc *UserController) SetupRoutes(r gin.IRoutes) {
	r.POST("/setup-user/:username", uc.SetupUser)
	r.POST("/add-user", uc.AddUser)
	r.GET("/get-users", uc.GetUsers)
	r.POST("/:"+SubjectParam, uc.RecordSubscription)
	r.POST("/:"+SubjectParam+"/update-cards", uc.UpdateCards)
}

// SetupUser handles POST /setup-user/:username
func (uc *UserController) SetupUser(c *gin.Context) {
	if err := uc.userService.SetupUser(c.Request.Context(), c.Param("username")); err != nil {
		logrus.WithError(err).Error("Failed to set up user cards")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set up user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// AddUser handles POST /add-user
func (uc *UserController) AddUser(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		URL      string `json:"url" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := uc.userService.CreateUser(c.Request.Context(), req.Username, req.URL)
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			c.JSON(http.StatusConflict, gin.H{"detail": "User already exists"})
			return
		}
		logrus.WithError(err).WithField("username", req.Username).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status":  "created",
		"user_id": userID,
	})
}

// GetUsers handles GET /get-users
func (uc *UserController) GetUsers(c *gin.Context) {
	users, err := uc.userService.ListUsers(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get users"})
		return
	}
	if users == nil {
		users = []*User{}
	}

	c.JSON(http.StatusOK, users)
}

// RecordSubscription handles POST /:user1-subscribed-to-:user2
func (uc *UserController) RecordSubscription(c *gin.Context) {
	subscriber, targetURL, ok := ParseSubscription(c.Param(SubjectParam))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	err := uc.userService.RecordSubscription(c.Request.Context(), subscriber, targetURL)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logrus.WithError(err).Error("Failed to record subscription")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

// UpdateCards handles POST /:username/update-cards. Success has no body.
func (uc *UserController) UpdateCards(c *gin.Context) {
	_, err := uc.userService.RotateCards(c.Request.Context(), c.Param(SubjectParam))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logrus.WithError(err).Error("Failed to rotate cards")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update cards"})
		return
	}

	c.Status(http.StatusOK)
}

// routes_auth.go
package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"academy/internal/apierr"
	"academy/internal/models"
)

const minPasswordLen = 8

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required"`
	Password2 string `json:"password2" binding:"required"`
	FullName  string `json:"full_name"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// userView is the public shape of a user.
type userView struct {
	ID        uint      `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func viewUser(u *models.User) userView {
	return userView{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role, CreatedAt: u.CreatedAt}
}

func (s *server) registerAuthRoutes(api *gin.RouterGroup) {
	auth := api.Group("/auth")
	{
		auth.POST("/register", s.registerHandler)
		auth.POST("/login", s.loginHandler)
		auth.POST("/logout", s.logoutHandler)
		auth.GET("/me", s.authRequired(), s.meHandler)
	}
}

// Self-registration always creates a student account.
func (s *server) registerHandler(c *gin.Context) {
	var req registerRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if req.Password != req.Password2 {
		s.respondError(c, apierr.Invalid("passwords do not match"))
		return
	}
	if len(req.Password) < minPasswordLen {
		s.respondError(c, apierr.Invalid("password must be at least %d characters", minPasswordLen))
		return
	}

	user, err := s.createUser(c, strings.TrimSpace(req.Email), req.Password, strings.TrimSpace(req.FullName), models.RoleStudent)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.login(c, user); err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("user registered", "user_id", user.ID)
	c.JSON(http.StatusCreated, viewUser(user))
}

func (s *server) loginHandler(c *gin.Context) {
	var req loginRequest
	if !s.bindJSON(c, &req) {
		return
	}

	var user models.User
	err := s.db.WithContext(c.Request.Context()).Where("email = ?", strings.TrimSpace(req.Email)).First(&user).Error
	if err != nil && !isNotFound(err) {
		s.respondError(c, err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		s.respondError(c, apierr.Unauthorized("wrong email or password"))
		return
	}

	if err := s.login(c, &user); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewUser(&user))
}

func (s *server) logoutHandler(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := sess.Save(); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *server) meHandler(c *gin.Context) {
	c.JSON(http.StatusOK, viewUser(actor(c)))
}

// createUser hashes the password and inserts the user; a taken email is a Conflict.
func (s *server) createUser(c *gin.Context, email, password, fullName, role string) (*models.User, error) {
	tx := s.db.WithContext(c.Request.Context())
	var count int64
	if err := tx.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, apierr.Conflict("user %s already exists", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		FullName:     fullName,
		CreatedAt:    time.Now(),
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

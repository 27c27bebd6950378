// routes_admin.go
package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"academy/internal/apierr"
	"academy/internal/models"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type createUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
	Role     string `json:"role" binding:"required"`
}

type updateUserRequest struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
	Password *string `json:"password"`
}

func (s *server) registerAdminRoutes(api *gin.RouterGroup) {
	// USERS
	users := api.Group("/admin/users", s.roleRequired(models.User.IsSuperuser))
	{
		users.GET("", s.adminUsersListHandler)
		users.POST("", s.adminUserCreateHandler)
		users.GET("/:id", s.adminUserGetHandler)
		users.PATCH("/:id", s.adminUserUpdateHandler)
		users.DELETE("/:id", s.adminUserDeleteHandler)
	}

	// REPORTS
	reports := api.Group("/reports", s.roleRequired(models.User.CanModerate))
	{
		reports.GET("/programs", s.reportStudentsPerProgramHandler)
		reports.GET("/programs/:id/students", s.reportStudentsOfProgramHandler)
		reports.GET("/passed", s.reportPassedHandler)
	}
}

///////////////////////////////////////////////////////
// USERS
///////////////////////////////////////////////////////

func (s *server) adminUsersListHandler(c *gin.Context) {
	var users []models.User
	q := s.db.WithContext(c.Request.Context()).Order("id")
	if role := c.Query("role"); role != "" {
		q = q.Where("role = ?", role)
	}
	if err := q.Find(&users).Error; err != nil {
		s.respondError(c, err)
		return
	}
	out := make([]userView, 0, len(users))
	for i := range users {
		out = append(out, viewUser(&users[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (s *server) adminUserCreateHandler(c *gin.Context) {
	var req createUserRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if !models.ValidRole(req.Role) {
		s.respondError(c, apierr.Invalid("unknown role %q", req.Role))
		return
	}
	if len(req.Password) < minPasswordLen {
		s.respondError(c, apierr.Invalid("password must be at least %d characters", minPasswordLen))
		return
	}
	user, err := s.createUser(c, strings.TrimSpace(req.Email), req.Password, strings.TrimSpace(req.FullName), req.Role)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("user created", "user_id", user.ID, "role", user.Role, "actor_id", actor(c).ID)
	c.JSON(http.StatusCreated, viewUser(user))
}

func (s *server) adminUserGetHandler(c *gin.Context) {
	user, ok := s.loadUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewUser(user))
}

func (s *server) adminUserUpdateHandler(c *gin.Context) {
	user, ok := s.loadUser(c)
	if !ok {
		return
	}
	var req updateUserRequest
	if !s.bindJSON(c, &req) {
		return
	}

	updates := map[string]any{}
	if req.FullName != nil {
		updates["full_name"] = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		if !models.ValidRole(*req.Role) {
			s.respondError(c, apierr.Invalid("unknown role %q", *req.Role))
			return
		}
		if user.ID == actor(c).ID && *req.Role != models.RoleSuperuser {
			s.respondError(c, apierr.Invalid("cannot drop your own superuser role"))
			return
		}
		updates["role"] = *req.Role
	}
	if req.Password != nil {
		if len(*req.Password) < minPasswordLen {
			s.respondError(c, apierr.Invalid("password must be at least %d characters", minPasswordLen))
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			s.respondError(c, err)
			return
		}
		updates["password_hash"] = string(hash)
	}
	if len(updates) > 0 {
		tx := s.db.WithContext(c.Request.Context())
		if err := tx.Model(user).Updates(updates).Error; err != nil {
			s.respondError(c, err)
			return
		}
		if err := tx.First(user, user.ID).Error; err != nil {
			s.respondError(c, err)
			return
		}
	}
	s.log.Info("user updated", "user_id", user.ID, "actor_id", actor(c).ID)
	c.JSON(http.StatusOK, viewUser(user))
}

// adminUserDeleteHandler removes a user and their student data. Users that
// authored content or snapshots are kept so the history stays attributable.
func (s *server) adminUserDeleteHandler(c *gin.Context) {
	user, ok := s.loadUser(c)
	if !ok {
		return
	}
	if user.ID == actor(c).ID {
		s.respondError(c, apierr.Invalid("cannot delete yourself"))
		return
	}

	err := s.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var authored int64
		if err := tx.Model(&models.Snapshot{}).Where("editor_id = ?", user.ID).Count(&authored).Error; err != nil {
			return err
		}
		if authored > 0 {
			return apierr.Conflict("user %d authored %d versions", user.ID, authored)
		}

		var studentIDs []uint
		if err := tx.Model(&models.Student{}).Where("user_id = ?", user.ID).Pluck("id", &studentIDs).Error; err != nil {
			return err
		}
		if len(studentIDs) > 0 {
			if err := tx.Where("student_id IN ?", studentIDs).Delete(&models.Studying{}).Error; err != nil {
				return err
			}
			for _, table := range []string{"student_open_programs", "student_wish_programs"} {
				if err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE student_id IN ?", table), studentIDs).Error; err != nil {
					return err
				}
			}
			if err := tx.Delete(&models.Student{}, studentIDs).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.User{}, user.ID).Error
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("user deleted", "user_id", user.ID, "actor_id", actor(c).ID)
	c.Status(http.StatusNoContent)
}

func (s *server) loadUser(c *gin.Context) (*models.User, bool) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return nil, false
	}
	var user models.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		if isNotFound(err) {
			err = apierr.NotFound("user %d", id)
		}
		s.respondError(c, err)
		return nil, false
	}
	return &user, true
}

///////////////////////////////////////////////////////
// REPORTS
///////////////////////////////////////////////////////

func (s *server) reportStudentsPerProgramHandler(c *gin.Context) {
	rows, err := s.reports.StudentsPerProgram(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *server) reportStudentsOfProgramHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	students, err := s.reports.StudentsOfProgram(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

// reportPassedHandler answers JSON, or a workbook with ?format=xlsx.
func (s *server) reportPassedHandler(c *gin.Context) {
	if c.Query("format") == "xlsx" {
		buf, err := s.reports.PassedPerStudentXLSX(c.Request.Context())
		if err != nil {
			s.respondError(c, err)
			return
		}
		name := fmt.Sprintf("passed-lessons-%s.xlsx", time.Now().Format("2006-01-02"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
		return
	}

	rows, err := s.reports.PassedPerStudent(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

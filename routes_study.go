// routes_study.go
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/models"
)

const ctxStudent = "student"

type answerRequest struct {
	Answer *string `json:"answer" binding:"required"`
}

func (s *server) registerStudyRoutes(api *gin.RouterGroup) {
	me := api.Group("/student", s.authRequired())
	{
		me.POST("", s.createStudentHandler)

		own := me.Group("", s.studentRequired())
		own.GET("", s.getStudentHandler)
		own.POST("/wishes/:program_id", s.addWishHandler)
		own.DELETE("/wishes/:program_id", s.removeWishHandler)
		own.GET("/studyings", s.openStudyingsHandler)
		own.GET("/studyings/:id", s.getStudyingHandler)
		own.PATCH("/studyings/:id", s.submitAnswerHandler)
		own.GET("/programs/:program_id/lessons", s.availableLessonsHandler)
		own.GET("/passed", s.passedCountHandler)
	}

	// "student access": managers open and close programs for students
	access := api.Group("/students", s.roleRequired(models.User.CanModerate))
	{
		access.GET("", s.listStudentsHandler)
		access.GET("/:id", s.studentByIDHandler)
		access.POST("/:id/programs/:program_id", s.enrollHandler)
		access.DELETE("/:id/programs/:program_id", s.unenrollHandler)
	}
}

// studentRequired resolves the student profile of the logged-in user.
func (s *server) studentRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := s.tracker.StudentByUser(c.Request.Context(), actor(c).ID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.Set(ctxStudent, st)
		c.Next()
	}
}

func student(c *gin.Context) *models.Student {
	return c.MustGet(ctxStudent).(*models.Student)
}

///////////////////////////////////////////////////////
// OWN PROFILE
///////////////////////////////////////////////////////

func (s *server) createStudentHandler(c *gin.Context) {
	st, err := s.tracker.CreateStudent(c.Request.Context(), actor(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, st)
}

func (s *server) getStudentHandler(c *gin.Context) {
	c.JSON(http.StatusOK, student(c))
}

func (s *server) addWishHandler(c *gin.Context) {
	programID, ok := s.paramID(c, "program_id")
	if !ok {
		return
	}
	st := student(c)
	if err := s.tracker.AddWish(c.Request.Context(), st.ID, programID); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondStudent(c, st.ID, http.StatusOK)
}

func (s *server) removeWishHandler(c *gin.Context) {
	programID, ok := s.paramID(c, "program_id")
	if !ok {
		return
	}
	st := student(c)
	if err := s.tracker.RemoveWish(c.Request.Context(), st.ID, programID); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondStudent(c, st.ID, http.StatusOK)
}

func (s *server) openStudyingsHandler(c *gin.Context) {
	rows, err := s.tracker.OpenStudyings(c.Request.Context(), student(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func (s *server) getStudyingHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	st, err := s.tracker.GetStudying(c.Request.Context(), student(c).ID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) submitAnswerHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var req answerRequest
	if !s.bindJSON(c, &req) {
		return
	}
	st, err := s.tracker.SubmitAnswer(c.Request.Context(), student(c).ID, id, *req.Answer)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *server) availableLessonsHandler(c *gin.Context) {
	programID, ok := s.paramID(c, "program_id")
	if !ok {
		return
	}
	lessons, err := s.tracker.AvailableLessons(c.Request.Context(), student(c).ID, programID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (s *server) passedCountHandler(c *gin.Context) {
	n, err := s.tracker.PassedCount(c.Request.Context(), student(c).ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount_passed_lesson": n})
}

///////////////////////////////////////////////////////
// STUDENT ACCESS
///////////////////////////////////////////////////////

func (s *server) listStudentsHandler(c *gin.Context) {
	students, err := s.tracker.ListStudents(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (s *server) studentByIDHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	s.respondStudent(c, id, http.StatusOK)
}

func (s *server) enrollHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	programID, ok := s.paramID(c, "program_id")
	if !ok {
		return
	}
	if err := s.tracker.Enroll(c.Request.Context(), actor(c), id, programID); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondStudent(c, id, http.StatusOK)
}

func (s *server) unenrollHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	programID, ok := s.paramID(c, "program_id")
	if !ok {
		return
	}
	if err := s.tracker.Unenroll(c.Request.Context(), actor(c), id, programID); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondStudent(c, id, http.StatusOK)
}

// respondStudent answers with the fresh state of one student.
func (s *server) respondStudent(c *gin.Context, id uint, status int) {
	st, err := s.tracker.GetStudent(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(status, st)
}

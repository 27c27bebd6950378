// routes_content.go
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"academy/internal/curriculum"
	"academy/internal/models"
)

// decideRequest approves or rejects one pending version.
type decideRequest struct {
	VersionID *uint `json:"version_id" binding:"required"`
	Approved  *bool `json:"approved" binding:"required"`
}

type rollbackRequest struct {
	VersionID *uint `json:"version_id" binding:"required"`
}

func (s *server) registerContentRoutes(api *gin.RouterGroup) {
	// published read side, any logged-in user
	read := api.Group("/catalog", s.authRequired())
	{
		read.GET("", s.catalogHandler)
		read.GET("/:id/lessons", s.lessonsByThemeHandler)
	}

	staff := api.Group("", s.roleRequired(models.User.CanEditContent))
	{
		// PROGRAMS
		staff.GET("/programs", s.listProgramsHandler)
		staff.POST("/programs", s.createProgramHandler)
		staff.GET("/programs/:id", s.getProgramHandler)
		staff.PATCH("/programs/:id", s.updateProgramHandler)

		// THEMES
		staff.GET("/programs/:id/themes", s.listThemesHandler)
		staff.POST("/programs/:id/themes", s.createThemeHandler)
		staff.GET("/themes/:id", s.getThemeHandler)
		staff.PATCH("/themes/:id", s.updateThemeHandler)
		staff.DELETE("/themes/:id", s.deleteThemeHandler)

		// LESSONS
		staff.GET("/programs/:id/lessons", s.listLessonsHandler)
		staff.POST("/programs/:id/lessons", s.addLessonHandler)
		staff.GET("/programs/:id/lessons/published", s.publishedLessonsHandler)
		staff.GET("/programs/:id/editors/:editor_id/lessons", s.lessonsByEditorHandler)
		staff.GET("/lessons/pending", s.pendingLessonsHandler)
		staff.GET("/lessons/:id", s.getLessonHandler)
		staff.GET("/lessons/:id/next", s.nextLessonHandler)
		staff.PATCH("/lessons/:id", s.updateLessonHandler)
		staff.DELETE("/lessons/:id", s.deleteLessonHandler)
	}

	moderation := api.Group("", s.roleRequired(models.User.CanModerate))
	{
		moderation.DELETE("/programs/:id", s.deleteProgramHandler)

		for prefix, kind := range map[string]models.Kind{
			"/programs": models.KindProgram,
			"/themes":   models.KindTheme,
			"/lessons":  models.KindLesson,
		} {
			moderation.GET(prefix+"/:id/approve", s.reviewHandler(kind))
			moderation.PUT(prefix+"/:id/approve", s.decideHandler(kind))
			moderation.GET(prefix+"/:id/history", s.historyHandler(kind))
			moderation.PUT(prefix+"/:id/history", s.rollbackHandler(kind))
		}
	}
}

///////////////////////////////////////////////////////
// PUBLISHED
///////////////////////////////////////////////////////

func (s *server) catalogHandler(c *gin.Context) {
	programs, err := s.content.Catalog(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, programs)
}

func (s *server) lessonsByThemeHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	grouped, err := s.content.LessonsByTheme(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grouped)
}

///////////////////////////////////////////////////////
// PROGRAMS
///////////////////////////////////////////////////////

func (s *server) listProgramsHandler(c *gin.Context) {
	programs, err := s.content.ListPrograms(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, programs)
}

func (s *server) createProgramHandler(c *gin.Context) {
	var in curriculum.ProgramInput
	if !s.bindJSON(c, &in) {
		return
	}
	p, err := s.content.CreateProgram(c.Request.Context(), actor(c), in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *server) getProgramHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	p, err := s.content.GetProgram(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) updateProgramHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var patch curriculum.ProgramPatch
	if !s.bindJSON(c, &patch) {
		return
	}
	p, err := s.content.UpdateProgram(c.Request.Context(), actor(c), id, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) deleteProgramHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.content.DeleteProgram(c.Request.Context(), actor(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

///////////////////////////////////////////////////////
// THEMES
///////////////////////////////////////////////////////

func (s *server) listThemesHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	themes, err := s.content.ListThemes(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, themes)
}

func (s *server) createThemeHandler(c *gin.Context) {
	programID, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var in curriculum.ThemeInput
	if !s.bindJSON(c, &in) {
		return
	}
	t, err := s.content.CreateTheme(c.Request.Context(), actor(c), programID, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

func (s *server) getThemeHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	t, err := s.content.GetTheme(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) updateThemeHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var patch curriculum.ThemePatch
	if !s.bindJSON(c, &patch) {
		return
	}
	t, err := s.content.UpdateTheme(c.Request.Context(), actor(c), id, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (s *server) deleteThemeHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.content.DeleteTheme(c.Request.Context(), actor(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

///////////////////////////////////////////////////////
// LESSONS
///////////////////////////////////////////////////////

func (s *server) listLessonsHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	lessons, err := s.content.ListLessons(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (s *server) addLessonHandler(c *gin.Context) {
	programID, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var in curriculum.LessonInput
	if !s.bindJSON(c, &in) {
		return
	}
	l, err := s.content.AddLesson(c.Request.Context(), actor(c), programID, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (s *server) publishedLessonsHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	lessons, err := s.content.PublishedLessons(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (s *server) lessonsByEditorHandler(c *gin.Context) {
	programID, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	editorID, ok := s.paramID(c, "editor_id")
	if !ok {
		return
	}
	lessons, err := s.content.LessonsByEditor(c.Request.Context(), programID, editorID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (s *server) pendingLessonsHandler(c *gin.Context) {
	lessons, err := s.content.PendingLessons(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lessons)
}

func (s *server) getLessonHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	l, err := s.content.GetLesson(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// nextLessonHandler answers null at the end of the chain.
func (s *server) nextLessonHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if _, err := s.content.GetLesson(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	next, err := s.content.NextLesson(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, next)
}

func (s *server) updateLessonHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	var patch curriculum.LessonPatch
	if !s.bindJSON(c, &patch) {
		return
	}
	l, err := s.content.UpdateLesson(c.Request.Context(), actor(c), id, patch)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (s *server) deleteLessonHandler(c *gin.Context) {
	id, ok := s.paramID(c, "id")
	if !ok {
		return
	}
	if err := s.content.DeleteLesson(c.Request.Context(), actor(c), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

///////////////////////////////////////////////////////
// APPROVAL AND HISTORY
///////////////////////////////////////////////////////

func (s *server) reviewHandler(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id")
		if !ok {
			return
		}
		review, err := s.flow.Review(c.Request.Context(), kind, id)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, review)
	}
}

func (s *server) decideHandler(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id")
		if !ok {
			return
		}
		var req decideRequest
		if !s.bindJSON(c, &req) {
			return
		}
		entity, err := s.flow.Decide(c.Request.Context(), actor(c), kind, id, *req.VersionID, *req.Approved)
		if err != nil {
			s.respondError(c, err)
			return
		}
		outcome := "rejected"
		if *req.Approved {
			outcome = "approved"
		}
		s.metrics.Decision(string(kind), outcome)
		c.JSON(http.StatusOK, entity)
	}
}

func (s *server) historyHandler(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id")
		if !ok {
			return
		}
		history, err := s.flow.ApprovedHistory(c.Request.Context(), kind, id)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

func (s *server) rollbackHandler(kind models.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := s.paramID(c, "id")
		if !ok {
			return
		}
		var req rollbackRequest
		if !s.bindJSON(c, &req) {
			return
		}
		entity, err := s.flow.Rollback(c.Request.Context(), actor(c), kind, id, *req.VersionID)
		if err != nil {
			s.respondError(c, err)
			return
		}
		s.metrics.Decision(string(kind), "rolled_back")
		c.JSON(http.StatusOK, entity)
	}
}

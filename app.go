// app.go
package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"academy/internal/apierr"
	"academy/internal/catalog"
	"academy/internal/config"
	"academy/internal/curriculum"
	"academy/internal/database"
	"academy/internal/logger"
	"academy/internal/metrics"
	"academy/internal/models"
	"academy/internal/progress"
	"academy/internal/reports"
	"academy/internal/versioning"
)

const (
	sessionName  = "academy_session"
	sessionUser  = "user_id"
	ctxUser      = "user"
	ctxRequestID = "request_id"
)

// server carries everything the handlers need.
type server struct {
	cfg     *config.Config
	db      *gorm.DB
	log     *logger.Logger
	flow    *versioning.Workflow
	content *curriculum.Service
	tracker *progress.Tracker
	reports *reports.Service
	metrics *metrics.Metrics
}

func newServer(cfg *config.Config, db *gorm.DB, log *logger.Logger) *server {
	flow := versioning.NewWorkflow(db, versioning.NewStore(log), log)
	return &server{
		cfg:     cfg,
		db:      db,
		log:     log,
		flow:    flow,
		content: curriculum.NewService(db, flow, log),
		tracker: progress.NewTracker(db, log, cfg.UnenrollScope),
		reports: reports.NewService(db, log),
		metrics: metrics.New(),
	}
}

// ---------- main ----------

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database open failed", "error", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		log.Fatal("autoMigrate error", "error", err)
	}
	if err := database.SeedAdmin(db, cfg.AdminEmail, cfg.AdminPassword, log); err != nil {
		log.Fatal("seed admin failed", "error", err)
	}

	srv := newServer(cfg, db, log)
	if err := srv.seedCurriculum(context.Background()); err != nil {
		log.Fatal("curriculum seed failed", "error", err)
	}

	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info("listening", "port", cfg.Port, "driver", cfg.DatabaseDriver, "unenroll_scope", cfg.UnenrollScope)
	if err := srv.router().Run(":" + cfg.Port); err != nil {
		log.Fatal("server error", "error", err)
	}
}

// seedCurriculum loads CURRICULUM_SEED_FILE on behalf of the configured admin.
func (s *server) seedCurriculum(ctx context.Context) error {
	if s.cfg.CurriculumSeedFile == "" {
		return nil
	}
	if s.cfg.AdminEmail == "" {
		s.log.Warn("curriculum seed skipped: ADMIN_EMAIL not set")
		return nil
	}
	var admin models.User
	if err := s.db.WithContext(ctx).Where("email = ?", s.cfg.AdminEmail).First(&admin).Error; err != nil {
		return err
	}
	f, err := catalog.Load(s.cfg.CurriculumSeedFile)
	if err != nil {
		return err
	}
	_, err = catalog.NewSeeder(s.content, s.flow, s.log).Apply(ctx, &admin, f)
	return err
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestID())
	r.Use(requestLogger(s.log))
	r.Use(s.metrics.Middleware())
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     s.cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "X-Requested-With", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Disposition"},
			AllowCredentials: true,
		}))
	}

	store := cookie.NewStore([]byte(s.cfg.SessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api")
	s.registerAuthRoutes(api)
	s.registerContentRoutes(api)
	s.registerStudyRoutes(api)
	s.registerAdminRoutes(api)
	return r
}

// ---------- middleware ----------

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(ctxRequestID),
		}
		if u, ok := c.Get(ctxUser); ok {
			fields = append(fields, "user_id", u.(*models.User).ID)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// currentUser resolves the session user once per request.
func (s *server) currentUser(c *gin.Context) *models.User {
	if u, ok := c.Get(ctxUser); ok {
		return u.(*models.User)
	}
	sess := sessions.Default(c)
	idVal := sess.Get(sessionUser)
	if idVal == nil {
		return nil
	}

	var id uint
	switch v := idVal.(type) {
	case uint:
		id = v
	case int:
		id = uint(v)
	case int64:
		id = uint(v)
	case float64:
		id = uint(v)
	default:
		return nil
	}

	var user models.User
	if err := s.db.WithContext(c.Request.Context()).First(&user, id).Error; err != nil {
		return nil
	}
	c.Set(ctxUser, &user)
	return &user
}

func (s *server) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.currentUser(c) == nil {
			s.respondError(c, apierr.Unauthorized("login required"))
			return
		}
		c.Next()
	}
}

// roleRequired gates a group on a predicate over the logged-in user.
func (s *server) roleRequired(allowed func(models.User) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := s.currentUser(c)
		if user == nil {
			s.respondError(c, apierr.Unauthorized("login required"))
			return
		}
		if !allowed(*user) {
			s.respondError(c, apierr.Forbidden("role %s may not do this", user.Role))
			return
		}
		c.Next()
	}
}

// actor is the logged-in user of a gated route.
func actor(c *gin.Context) *models.User {
	return c.MustGet(ctxUser).(*models.User)
}

// ---------- helpers ----------

func (s *server) respondError(c *gin.Context, err error) {
	status, code := apierr.Status(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err, "path", c.Request.URL.Path, "request_id", c.GetString(ctxRequestID))
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"message": msg, "code": code}})
}

// paramID parses a positive numeric path parameter, answering 400 otherwise.
func (s *server) paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		s.respondError(c, apierr.Invalid("invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

func (s *server) bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.respondError(c, apierr.Invalid("malformed payload: %v", err))
		return false
	}
	return true
}

func (s *server) login(c *gin.Context, user *models.User) error {
	sess := sessions.Default(c)
	sess.Set(sessionUser, user.ID)
	if err := sess.Save(); err != nil {
		return err
	}
	c.Set(ctxUser, user)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

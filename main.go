package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"edufinx/config"
	"edufinx/models"
	"edufinx/providers"
	"edufinx/providers/gdelt"
	"edufinx/providers/gentext"
	"edufinx/providers/newsdata"
	"edufinx/services"
	"edufinx/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	casesPublishedCounter    prometheus.Counter
	synthesisRunsCounter     prometheus.Counter
	enrichmentSourcesCounter prometheus.Counter
)

func init() {
	casesPublishedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cases_published_total",
			Help: "Total number of case studies published.",
		},
	)
	synthesisRunsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesis_runs_total",
			Help: "Total number of successful synthesis runs.",
		},
	)
	enrichmentSourcesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrichment_sources_fetched_total",
			Help: "Total number of enrichment sources kept after deduplication.",
		},
	)
	prometheus.MustRegister(casesPublishedCounter, synthesisRunsCounter, enrichmentSourcesCounter)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(
		&models.CaseStudy{},
		&models.QuizQuestion{},
		&models.EnrichmentSource{},
		&models.GenerationLogEntry{},
		&models.IPO{},
		&models.Opinion{},
		&models.QuizAttempt{},
	)

	// Setup Providers
	enabledProviderNames := strings.Split(cfg.EnabledProviders, ",")
	var enabledProviders []providers.SearchProvider
	for _, name := range enabledProviderNames {
		switch strings.TrimSpace(name) {
		case "gdelt":
			enabledProviders = append(enabledProviders, gdelt.NewFetcher(cfg, logging))
		case "newsdata":
			enabledProviders = append(enabledProviders, newsdata.NewFetcher(cfg, logging))
		default:
			logging.Warn("Unknown provider in config", zap.String("provider_name", name))
		}
	}
	if len(enabledProviders) == 0 {
		logging.Fatal("No valid providers enabled. Check ENABLED_PROVIDERS in .env")
	}
	logging.Info("Active providers loaded", zap.Strings("providers", enabledProviderNames))

	genClient, err := gentext.NewClient(cfg, logging)
	if err != nil {
		logging.Fatal("Text generation client creation failed", zap.Error(err))
	}

	// Setup Services
	genLog := services.NewGenerationLog(db, logging)
	enricher := services.NewEnricher(cfg, logging, enabledProviders)
	synthesizer := services.NewSynthesizer(cfg, db, logging, genClient)
	pipeline := services.NewPipeline(cfg, db, logging, enricher, synthesizer, genLog)

	// Snapshot-Export veröffentlichter Cases (best effort)
	if cfg.SnapshotsConfigured() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		pipeline.OnPublished = func(cs *models.CaseStudy) {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				link, err := storage.UploadCaseSnapshot(ctx, s3Client, cfg, cs)
				if err != nil {
					logging.Error("Case snapshot upload failed", zap.Uint("case_study_id", cs.ID), zap.Error(err))
					return
				}
				logging.Info("Case snapshot uploaded", zap.Uint("case_study_id", cs.ID), zap.String("link", link))
			}()
		}
	} else {
		logging.Info("Snapshot export disabled (S3 not configured).")
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupCaseRoutes(router, db, pipeline, logging)
	setupIPORoutes(router, db, logging)
	setupQuizRoutes(router, db, logging)
	setupVoiceRoutes(router, db, logging)

	// Setup Cron: Quellen unveröffentlichter Cases regelmäßig auffrischen
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled enrichment refresh...")
		count, err := pipeline.EnrichAllPending(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("refreshed_cases", count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// parseID liest eine numerische ID aus dem Pfad; bei ungültiger ID wird
// direkt eine 400er-Antwort geschrieben.
func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// respondPipelineError bildet die Fehlertaxonomie auf HTTP-Status und
// Fehler-Envelope ab.
func respondPipelineError(c *gin.Context, log *zap.Logger, err error) {
	var validationErr *services.ValidationError
	var notFoundErr *services.NotFoundError
	var publishErr *services.IncompletePublishError
	var synthesisErr *services.SynthesisError
	var enrichmentErr *services.EnrichmentError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": validationErr.Msg})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundErr.Error()})
	case errors.As(err, &publishErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot publish incomplete case", "details": publishErr.Reason})
	case errors.As(err, &synthesisErr):
		resp := gin.H{"error": "synthesis failed", "code": synthesisErr.Code, "details": synthesisErr.Msg}
		if len(synthesisErr.Meta) > 0 {
			resp["meta"] = synthesisErr.Meta
		}
		c.JSON(http.StatusInternalServerError, resp)
	case errors.As(err, &enrichmentErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrichment failed", "details": enrichmentErr.Error()})
	default:
		log.Error("Unhandled pipeline error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

var slugCleanRegex = regexp.MustCompile(`[^a-z0-9]+`)

// slugify erzeugt einen URL-tauglichen Slug aus einem Titel.
func slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = slugCleanRegex.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

func setupCaseRoutes(router *gin.Engine, db *gorm.DB, pipeline *services.Pipeline, log *zap.Logger) {
	rg := router.Group("/cases")

	// POST - Neuen Case-Entwurf anlegen
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			Title        string     `json:"title" binding:"required"`
			Slug         string     `json:"slug"`
			CompanyName  string     `json:"company_name"`
			Ticker       string     `json:"ticker"`
			ShortSummary string     `json:"short_summary"`
			Narrative    string     `json:"narrative"`
			PeriodStart  *time.Time `json:"period_start"`
			PeriodEnd    *time.Time `json:"period_end"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body. 'title' field is required."})
			return
		}

		slug := req.Slug
		if slug == "" {
			slug = slugify(req.Title)
		}
		// Slug-Kollision: Zähler anhängen
		var count int64
		db.Model(&models.CaseStudy{}).Where("slug = ?", slug).Count(&count)
		if count > 0 {
			slug = fmt.Sprintf("%s-%d", slug, time.Now().Unix())
		}

		cs := models.CaseStudy{
			Title:        req.Title,
			Slug:         slug,
			CompanyName:  req.CompanyName,
			Ticker:       req.Ticker,
			ShortSummary: req.ShortSummary,
			Narrative:    req.Narrative,
			PeriodStart:  req.PeriodStart,
			PeriodEnd:    req.PeriodEnd,
			Status:       models.StatusDraft,
		}
		if err := db.Create(&cs).Error; err != nil {
			log.Error("Failed to create case study", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create case study"})
			return
		}

		log.Info("Case study created", zap.Uint("id", cs.ID), zap.String("slug", cs.Slug))
		c.JSON(http.StatusCreated, gin.H{"ok": true, "case_study": cs})
	})

	// GET - Cases auflisten (filterbar)
	rg.GET("/", func(c *gin.Context) {
		query := db.Model(&models.CaseStudy{})
		if status := c.Query("status"); status != "" {
			if !models.CaseStatus(status).Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
				return
			}
			query = query.Where("status = ?", status)
		}
		if ticker := c.Query("ticker"); ticker != "" {
			query = query.Where("ticker = ?", ticker)
		}

		var cases []models.CaseStudy
		if err := query.Order("created_at desc").Find(&cases).Error; err != nil {
			log.Error("Database query for case studies failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, cases)
	})

	// GET - Einzelnen Case mit geordnetem Quiz abrufen
	rg.GET("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var cs models.CaseStudy
		err := db.Preload("QuizQuestions", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order asc")
		}).Preload("EnrichmentSources").First(&cs, id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case study not found"})
				return
			}
			log.Error("DB error fetching case study", zap.Uint("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, cs)
	})

	// DELETE - Case samt Fragen, Quellen und Logs löschen
	rg.DELETE("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var cs models.CaseStudy
		if err := db.First(&cs, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case study not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("case_study_id = ?", id).Delete(&models.QuizQuestion{}).Error; err != nil {
				return err
			}
			if err := tx.Where("case_study_id = ?", id).Delete(&models.EnrichmentSource{}).Error; err != nil {
				return err
			}
			if err := tx.Where("case_study_id = ?", id).Delete(&models.GenerationLogEntry{}).Error; err != nil {
				return err
			}
			return tx.Delete(&cs).Error
		})
		if err != nil {
			log.Error("Failed to delete case study", zap.Uint("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete case study"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// POST - Anreicherung anstoßen
	rg.POST("/:id/enrich", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		sources, stats, err := pipeline.Enrich(c.Request.Context(), id)
		if err != nil {
			respondPipelineError(c, log, err)
			return
		}
		enrichmentSourcesCounter.Add(float64(stats.Kept))
		c.JSON(http.StatusOK, gin.H{"ok": true, "sources": sources, "stats": stats})
	})

	// POST - Synthese anstoßen
	rg.POST("/:id/synthesize", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		result, err := pipeline.Synthesize(c.Request.Context(), id)
		if err != nil {
			respondPipelineError(c, log, err)
			return
		}
		synthesisRunsCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true, "full_narrative": result.FullNarrative, "quiz": result.Quiz})
	})

	// PATCH - Manueller Admin-Edit
	rg.PATCH("/:id", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var edits services.UpdateRequest
		if err := c.ShouldBindJSON(&edits); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
		cs, err := pipeline.Update(c.Request.Context(), id, edits)
		if err != nil {
			respondPipelineError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "case_study": cs})
	})

	// POST - Veröffentlichen (terminal)
	rg.POST("/:id/publish", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		cs, err := pipeline.Publish(c.Request.Context(), id)
		if err != nil {
			respondPipelineError(c, log, err)
			return
		}
		casesPublishedCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"ok": true, "case_study": cs})
	})

	// GET - Audit-Trail der Pipeline
	rg.GET("/:id/logs", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		logs, err := pipeline.Logs(id)
		if err != nil {
			respondPipelineError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "logs": logs})
	})
}

func setupIPORoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/ipos")

	rg.POST("/", func(c *gin.Context) {
		var ipo models.IPO
		if err := c.ShouldBindJSON(&ipo); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if ipo.CompanyName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "company_name is required"})
			return
		}
		if err := db.Create(&ipo).Error; err != nil {
			log.Error("Failed to create IPO", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ipo"})
			return
		}
		c.JSON(http.StatusCreated, ipo)
	})

	rg.GET("/", func(c *gin.Context) {
		var ipos []models.IPO
		if err := db.Order("open_date desc").Find(&ipos).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, ipos)
	})

	// POST - Meinung zu einem IPO hinzufügen
	rg.POST("/:id/opinions", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		var opinion models.Opinion
		if err := c.ShouldBindJSON(&opinion); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if !opinion.Stance.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stance"})
			return
		}
		var ipo models.IPO
		if err := db.First(&ipo, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ipo not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		opinion.IPOID = ipo.ID
		if err := db.Create(&opinion).Error; err != nil {
			log.Error("Failed to create opinion", zap.Uint("ipo_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create opinion"})
			return
		}
		c.JSON(http.StatusCreated, opinion)
	})

	// GET - Sentiment-Aufschlüsselung pro Stance
	rg.GET("/:id/sentiment", func(c *gin.Context) {
		id, ok := parseID(c)
		if !ok {
			return
		}
		breakdown, err := services.StanceBreakdown(db, id)
		if err != nil {
			respondPipelineError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, breakdown)
	})
}

func setupQuizRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	// POST - Quiz-Versuch für das Leaderboard erfassen
	router.POST("/quiz-attempts", func(c *gin.Context) {
		var attempt models.QuizAttempt
		if err := c.ShouldBindJSON(&attempt); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if attempt.PlayerName == "" || attempt.CaseStudyID == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "player_name and case_study_id are required"})
			return
		}
		var cs models.CaseStudy
		if err := db.First(&cs, attempt.CaseStudyID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "case study not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if err := db.Create(&attempt).Error; err != nil {
			log.Error("Failed to record quiz attempt", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record attempt"})
			return
		}
		c.JSON(http.StatusCreated, attempt)
	})

	// GET - Rangliste nach Gesamtpunktzahl
	router.GET("/leaderboard", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		entries, err := services.Leaderboard(db, limit)
		if err != nil {
			log.Error("Leaderboard query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, entries)
	})
}

// setupVoiceRoutes liefert eine minimale Case-Liste für Voice-Assistants.
func setupVoiceRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	router.GET("/voice/cases", func(c *gin.Context) {
		type voiceCase struct {
			ID           uint   `json:"id"`
			Slug         string `json:"slug"`
			RefinedTitle string `json:"refined_title"`
			ShortSummary string `json:"short_summary"`
		}
		var cases []voiceCase
		err := db.Model(&models.CaseStudy{}).
			Select("id, slug, refined_title, short_summary").
			Where("status = ?", models.StatusPublished).
			Order("published_at desc").
			Scan(&cases).Error
		if err != nil {
			log.Error("Voice index query failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"cases": cases})
	})
}

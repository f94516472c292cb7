package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/givlyn/backupd/internal/config"
	"github.com/givlyn/backupd/internal/server/handlers/api"
	"github.com/givlyn/backupd/internal/server/handlers/backup"
	"github.com/givlyn/backupd/internal/server/middlewares"
	"github.com/givlyn/backupd/internal/version"
)

func SetupRoutes(cfg *config.HTTPConfig, svc *Services) (http.Handler, error) {
	rateLimit, err := middlewares.RateLimiter(cfg.BackupRate)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	var history backup.HistoryStore
	if svc.History != nil {
		history = svc.History
	}
	backupH := backup.New(svc.Backup, history)

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.Metrics(svc.Metrics))
	r.Use(middlewares.Secure(cfg.CertFile != "" && cfg.KeyFile != ""))
	r.Use(middlewares.CORS())
	r.Use(middlewares.GZIP())

	r.GET("/", IndexHandler)
	r.GET("/healthz", HealthHandler)
	r.GET("/metrics", gin.WrapH(svc.Metrics.Handler()))

	v := r.Group("/api")
	v.Use(middlewares.TokenAuth(cfg.AuthToken))
	{
		v.POST("/backup", rateLimit, backupH.Backup)
		v.GET("/backup/runs", backupH.ListRuns)
		v.GET("/backup/runs/:id", backupH.GetRun)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, api.NewAPIError(api.CodeNotFound, "not found", nil))
	})

	return r.Handler(), nil
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}

package router

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"solarbill/internal/handler"
	"solarbill/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	billH *handler.BillHandler,
	healthH *handler.HealthHandler,
	allowedOrigins []string,
	log zerolog.Logger,
) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(allowedOrigins))

	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	bills := v1.Group("/bills")
	bills.POST("/extract", billH.Extract)
	bills.GET("", billH.List)
	bills.GET("/export.csv", billH.ExportCSV)
	bills.GET("/:id", billH.GetByID)
	bills.POST("/:id/reprocess", billH.Reprocess)
	bills.GET("/:id/history.xlsx", billH.HistoryXLSX)

	return r
}

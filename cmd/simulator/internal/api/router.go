package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/api/handler"
	"github.com/shubham-shewale/market-sim/cmd/simulator/internal/api/middleware"
)

// NewRouter wires the read API over the market engine.
func NewRouter(market handler.MarketReader, logger *zap.Logger, timeout time.Duration) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Error())
	r.Use(middleware.Timeout(timeout))

	v1 := r.Group("/api/v1")
	handler.NewHandler(market).Register(v1)

	return r
}

// Package api exposes the candle, growth and portfolio services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quotebroker/internal/growth"
	"quotebroker/internal/logger"
	"quotebroker/internal/metrics"
	"quotebroker/internal/quotes"
	"quotebroker/internal/store"
	"quotebroker/internal/symbol"
)

// NoDataHeader carries the reason of a 204 candles response.
const NoDataHeader = "X-No-Data-Reason"

type CandleService interface {
	Classify(ctx context.Context, raw string) symbol.Canonical
	Candles(ctx context.Context, req quotes.Request) (quotes.Result, error)
}

type CAGRService interface {
	CAGR(ctx context.Context, req growth.Request) (growth.Result, error)
}

// Backend is the part of the store the handlers use directly.
type Backend interface {
	store.PortfolioStore
	Ping(ctx context.Context) error
}

type Options struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	MaxBodyBytes   int64
}

type Server struct {
	candles CandleService
	cagr    CAGRService
	backend Backend
	opts    Options
}

func NewServer(candles CandleService, cagr CAGRService, backend Backend, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{candles: candles, cagr: cagr, backend: backend, opts: opts}
}

// Router builds the gin engine with every route and middleware.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies(nil)

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders: []string{"Content-Length", NoDataHeader, requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(s.opts.CORSOrigins) == 1 && s.opts.CORSOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.opts.CORSOrigins
	}

	r.Use(requestID(), accessLog(), recoverPanic(), cors.New(corsCfg), withGzip(), limitBody(s.opts.MaxBodyBytes))

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	g := r.Group("/api")
	g.GET("/candles", s.getCandles)
	g.GET("/cagr", s.getCAGR)
	g.GET("/symbols/classify", s.classify)
	g.POST("/portfolio", s.savePortfolio)
	g.GET("/portfolio", s.loadPortfolio)
	g.POST("/savePortfolio", s.savePortfolio)
	g.GET("/loadPortfolio", s.loadPortfolio)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody("not found"))
	})
	return r
}

func errorBody(msg string) gin.H {
	return gin.H{"status": "error", "message": msg}
}

func (s *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.backend.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, errorBody("storage unavailable"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getCandles(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.candles.Candles(ctx, quotes.Request{
		Symbol:   c.Query("symbol"),
		Interval: c.DefaultQuery("interval", quotes.DefaultInterval),
		UserKey:  c.Query("user_email"),
		Force:    parseBool(c.Query("force")),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if res.NoData != "" {
		c.Header(NoDataHeader, res.NoData)
		c.Status(http.StatusNoContent)
		return
	}
	if res.Cached {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, res.Candles)
}

func (s *Server) getCAGR(c *gin.Context) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	res, err := s.cagr.CAGR(ctx, growth.Request{
		Symbol:   c.Query("symbol"),
		Interval: c.DefaultQuery("interval", quotes.DefaultInterval),
		UserKey:  c.Query("user_email"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "cached": res.Cached, "cagr": res.CAGR})
}

type classifyResponse struct {
	symbol.Canonical
	CacheKey string `json:"cache_key"`
}

func (s *Server) classify(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("symbol"))
	if raw == "" {
		c.JSON(http.StatusBadRequest, errorBody("Missing symbol"))
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	sym := s.candles.Classify(ctx, raw)
	c.JSON(http.StatusOK, classifyResponse{Canonical: sym, CacheKey: sym.CacheKey()})
}

type portfolioBody struct {
	Email     string          `json:"email"`
	Portfolio []store.Holding `json:"portfolio"`
}

func (s *Server) savePortfolio(c *gin.Context) {
	var body portfolioBody
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Email) == "" || body.Portfolio == nil {
		c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	if err := s.backend.SavePortfolio(ctx, strings.TrimSpace(body.Email), body.Portfolio); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) loadPortfolio(c *gin.Context) {
	email := strings.TrimSpace(c.Query("email"))
	if email == "" {
		c.JSON(http.StatusBadRequest, errorBody("Missing email"))
		return
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	holdings, err := s.backend.LoadPortfolio(ctx, email)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "portfolio": holdings})
}

func (s *Server) fail(c *gin.Context, err error) {
	if errors.Is(err, quotes.ErrMissingSymbol) {
		c.JSON(http.StatusBadRequest, errorBody("Missing symbol"))
		return
	}
	log := logger.GetLogger().WithComponent("http").WithFields(logger.Fields{
		"path":       c.Request.URL.Path,
		"request_id": c.GetString("request_id"),
	}).WithError(err)
	if errors.Is(err, store.ErrUnavailable) {
		log.Error("storage failure")
		c.JSON(http.StatusInternalServerError, errorBody("storage unavailable"))
		return
	}
	log.Error("request failed")
	c.JSON(http.StatusInternalServerError, errorBody("internal error"))
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"quotebroker/internal/logger"
)

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, reusing one supplied by the caller.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one structured line per request.
func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.GetLogger().WithComponent("http").WithFields(logger.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": c.GetString("request_id"),
		})
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			entry.Error("request failed")
		default:
			entry.Debug("request served")
		}
	}
}

// recoverPanic protects handlers from panics.
func recoverPanic() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.GetLogger().WithComponent("http").
					WithFields(logger.Fields{"panic": rec, "path": c.Request.URL.Path}).
					Error("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody("internal server error"))
			}
		}()
		c.Next()
	}
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(maxBody int64) gin.HandlerFunc {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBody)
		}
		c.Next()
	}
}

// withGzip compresses responses when the client supports gzip.
func withGzip() gin.HandlerFunc {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(c.Writer)
		c.Header("Content-Encoding", "gzip")
		c.Writer.Header().Add("Vary", "Accept-Encoding")
		gw := &gzipResponseWriter{ResponseWriter: c.Writer, writer: gz}
		c.Writer = gw
		defer func() {
			c.Writer = gw.ResponseWriter
			if !gw.wrote || gw.Status() == http.StatusNoContent {
				c.Writer.Header().Del("Content-Encoding")
				gz.Reset(io.Discard)
			} else {
				_ = gz.Close()
			}
			gzPool.Put(gz)
		}()
		c.Next()
	}
}

type gzipResponseWriter struct {
	gin.ResponseWriter
	writer *gzip.Writer
	wrote  bool
}

func (g *gzipResponseWriter) Write(b []byte) (int, error) {
	g.wrote = true
	g.Header().Del("Content-Length")
	return g.writer.Write(b)
}

func (g *gzipResponseWriter) WriteString(s string) (int, error) {
	g.wrote = true
	g.Header().Del("Content-Length")
	return g.writer.Write([]byte(s))
}

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/joescharf/tagger/internal/llm"
	"github.com/joescharf/tagger/internal/logger"
	"github.com/joescharf/tagger/internal/tagging"
)

// Options tunes the HTTP server.
type Options struct {
	// RateLimit is the sustained request rate per second. Zero disables limiting.
	RateLimit float64
	Burst     int
}

// Server provides the REST API handlers.
type Server struct {
	svc     *tagging.Service
	llm     *llm.Client
	limiter *rate.Limiter
	log     *zap.SugaredLogger
}

// NewServer creates a new API server.
// The llmClient may be nil if no API key is configured.
func NewServer(svc *tagging.Service, llmClient *llm.Client, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		svc: svc,
		llm: llmClient,
		log: logger.ComponentLogger("api"),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = max(1, int(opts.RateLimit))
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	r := gin.New()
	r.Use(requestID(), accessLog(s.log), gin.Recovery(), cors())
	if s.limiter != nil {
		r.Use(rateLimit(s.limiter))
	}

	r.GET("/api/v1/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tags", s.listTags)
		v1.POST("/tags", s.createTag)
		v1.POST("/tags/suggest", s.suggestTags)
		v1.PUT("/tags/:ref", s.updateTag)
		v1.DELETE("/tags/:ref", s.removeTag)

		v1.GET("/instances", s.listInstances)
		v1.GET("/instances/:id/tags", s.listInstanceTags)
		v1.POST("/instances/:id/tags", s.bindTags)
		v1.DELETE("/instances/:id/tags", s.unbindTags)
	}
	return r
}

func writeError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

// writeResult maps a Result onto an HTTP status and writes it as the body.
func writeResult(c *gin.Context, okStatus int, r tagging.Result, err error) {
	if err != nil {
		logger.FromContext(c.Request.Context(), logger.Logger).Errorw("tag operation failed", logger.FieldError, err)
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(resultStatus(r, okStatus), r)
}

func resultStatus(r tagging.Result, okStatus int) int {
	if r.Success {
		return okStatus
	}
	switch r.Message {
	case tagging.ExistsKind:
		return http.StatusConflict
	case tagging.NotExistsKind:
		return http.StatusNotFound
	case tagging.MissingParamsKind:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// parsePagination reads page, pageSize and count from the query string.
// pageSize=all lifts the page size limit.
func parsePagination(c *gin.Context) (tagging.Pagination, bool) {
	var p tagging.Pagination
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(c, http.StatusBadRequest, "page must be a positive integer")
			return p, false
		}
		p.Page = n
	}
	if v := c.Query("pageSize"); v != "" {
		if strings.EqualFold(v, "all") {
			p.PageSize = tagging.All
		} else {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(c, http.StatusBadRequest, "pageSize must be a positive integer or \"all\"")
				return p, false
			}
			p.PageSize = n
		}
	}
	if v := c.Query("count"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "count must be a boolean")
			return p, false
		}
		p.Count = b
	}
	return p, true
}

func parseInstanceID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "instance id must be a non-negative integer")
		return 0, false
	}
	return id, true
}

// --- Tags ---

func (s *Server) listTags(c *gin.Context) {
	p, ok := parsePagination(c)
	if !ok {
		return
	}
	res, err := s.svc.List(c.Request.Context(), tagging.ListOptions{
		Pagination: p,
		Match:      tagging.ParseRefs(c.QueryArray("match")),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) createTag(c *gin.Context) {
	var def tagging.TagDefine
	if err := c.ShouldBindJSON(&def); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if def.Name == "" {
		c.JSON(http.StatusBadRequest, tagging.MissingParameters("name"))
		return
	}
	r, err := s.svc.New(c.Request.Context(), def)
	writeResult(c, http.StatusCreated, r, err)
}

func (s *Server) updateTag(c *gin.Context) {
	var patch tagging.TagPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	if patch.Name != nil && *patch.Name == "" {
		writeError(c, http.StatusBadRequest, "name must not be empty")
		return
	}
	r, err := s.svc.Update(c.Request.Context(), tagging.ParseRef(c.Param("ref")), patch)
	writeResult(c, http.StatusOK, r, err)
}

func (s *Server) removeTag(c *gin.Context) {
	r, err := s.svc.Remove(c.Request.Context(), tagging.ParseRef(c.Param("ref")))
	writeResult(c, http.StatusOK, r, err)
}

type suggestRequest struct {
	Text  string `json:"text" binding:"required"`
	Limit int    `json:"limit"`
}

func (s *Server) suggestTags(c *gin.Context) {
	if s.llm == nil {
		writeError(c, http.StatusServiceUnavailable, "LLM not configured (set anthropic.api_key in config)")
		return
	}
	var req suggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	known, err := s.svc.List(ctx, tagging.ListOptions{Pagination: tagging.Pagination{PageSize: tagging.All}})
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	names := make([]string, len(known.List))
	for i, t := range known.List {
		names[i] = t.Name
	}

	tags, err := s.llm.SuggestTags(ctx, req.Text, names, req.Limit)
	if err != nil {
		writeError(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

// --- Instances ---

func (s *Server) listInstances(c *gin.Context) {
	p, ok := parsePagination(c)
	if !ok {
		return
	}
	res, err := s.svc.ListInstance(c.Request.Context(), tagging.ListInstanceOptions{
		Pagination: p,
		Tags:       tagging.ParseRefs(c.QueryArray("tag")),
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listInstanceTags(c *gin.Context) {
	id, ok := parseInstanceID(c)
	if !ok {
		return
	}
	p, ok := parsePagination(c)
	if !ok {
		return
	}
	res, err := s.svc.ListInstanceTags(c.Request.Context(), tagging.ListInstanceTagsOptions{
		Pagination: p,
		InstanceID: id,
	})
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

type bindRequest struct {
	Tags          []tagging.Ref `json:"tags"`
	AutoCreateTag bool          `json:"autoCreateTag"`
}

func (s *Server) bindTags(c *gin.Context) {
	id, ok := parseInstanceID(c)
	if !ok {
		return
	}
	var req bindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := s.svc.Bind(c.Request.Context(), tagging.BindOptions{
		InstanceID:    id,
		Tags:          req.Tags,
		AutoCreateTag: req.AutoCreateTag,
	})
	writeResult(c, http.StatusOK, r, err)
}

func (s *Server) unbindTags(c *gin.Context) {
	id, ok := parseInstanceID(c)
	if !ok {
		return
	}
	var req bindRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := s.svc.Unbind(c.Request.Context(), tagging.UnbindOptions{
		InstanceID: id,
		Tags:       req.Tags,
	})
	writeResult(c, http.StatusOK, r, err)
}

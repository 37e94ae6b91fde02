package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/opsdocs/internal/ragerr"
	"github.com/fyrsmithlabs/opsdocs/internal/retriever"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Index  bool   `json:"index"`
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query          string   `json:"query"`
	K              int      `json:"k,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// QueryResult is one retrieved chunk.
type QueryResult struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float32           `json:"score"`
}

// QueryResponse is the response body for POST /api/v1/query.
type QueryResponse struct {
	Results []QueryResult `json:"results"`
}

// IngestRequest is the request body for POST /api/v1/ingest.
type IngestRequest struct {
	Paths []string `json:"paths"`
}

// ErrorBody is the error envelope for every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-checkable kind and a message.
type ErrorDetail struct {
	Kind    ragerr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (s *Server) handleHealth(c echo.Context) error {
	_, err := s.retriever.Stats()
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Index: err == nil})
}

func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", ragerr.ErrConfiguration)
	}
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query field is required", ragerr.ErrConfiguration)
	}
	if req.K > s.config.MaxK {
		return fmt.Errorf("%w: k must be <= %d", ragerr.ErrConfiguration, s.config.MaxK)
	}

	results, err := s.retriever.Query(c.Request().Context(), req.Query, retriever.QueryOptions{
		K:              req.K,
		ScoreThreshold: req.ScoreThreshold,
	})
	if err != nil {
		return err
	}

	resp := QueryResponse{Results: make([]QueryResult, len(results))}
	for i, r := range results {
		resp.Results[i] = QueryResult{
			Content:  r.Chunk.Content,
			Metadata: r.Chunk.Metadata,
			Score:    r.Score,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleIndex(c echo.Context) error {
	stats, err := s.retriever.Stats()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) handleIngest(c echo.Context) error {
	var req IngestRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: invalid request body", ragerr.ErrConfiguration)
	}
	if len(req.Paths) == 0 {
		return fmt.Errorf("%w: paths field is required", ragerr.ErrConfiguration)
	}
	for _, p := range req.Paths {
		if !s.allowed(p) {
			return fmt.Errorf("%w: path %q is outside the corpus", ragerr.ErrConfiguration, p)
		}
	}

	report, err := s.ingester.AddPaths(c.Request().Context(), req.Paths, retriever.IngestOptions{})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

// handleError renders every error as ErrorBody with a status derived from
// its kind.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		detail ErrorDetail
	)
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		detail = ErrorDetail{Kind: kindForStatus(status), Message: fmt.Sprint(he.Message)}
	} else {
		kind := ragerr.KindOf(err)
		status = StatusForKind(kind)
		detail = ErrorDetail{Kind: kind, Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("kind", string(detail.Kind)),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(status)
		return
	}
	_ = c.JSON(status, ErrorBody{Error: detail})
}

// StatusForKind maps an error kind to an HTTP status code.
func StatusForKind(kind ragerr.Kind) int {
	switch kind {
	case ragerr.KindConfiguration, ragerr.KindEmptyCorpus, ragerr.KindEmptyInput:
		return http.StatusBadRequest
	case ragerr.KindNotFound:
		return http.StatusNotFound
	case ragerr.KindEmbeddingService:
		return http.StatusBadGateway
	case ragerr.KindTimeout:
		return http.StatusGatewayTimeout
	case ragerr.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func kindForStatus(status int) ragerr.Kind {
	switch {
	case status == http.StatusNotFound:
		return ragerr.KindNotFound
	case status >= 400 && status < 500:
		return ragerr.KindConfiguration
	default:
		return ragerr.KindUnknown
	}
}

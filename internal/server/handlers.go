package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"minirag/internal/composer"
	"minirag/internal/domain"
)

type ingestRequest struct {
	Text   string `json:"text"`
	Title  string `json:"title"`
	Source string `json:"source"`
}

type ingestResponse struct {
	Message     string         `json:"message"`
	ChunkCount  int            `json:"chunk_count"`
	VectorCount int            `json:"vector_count"`
	DocumentID  string         `json:"document_id"`
	Chunks      []domain.Chunk `json:"chunks"`
}

type queryRequest struct {
	Query string `json:"query"`
	TopK  *int   `json:"top_k"`
}

type citationResponse struct {
	Number   int    `json:"citation_number"`
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"`
	Title    string `json:"title,omitempty"`
	Position int    `json:"position"`
	Cited    bool   `json:"cited"`
}

type queryResponse struct {
	Answer              string             `json:"answer"`
	Citations           []citationResponse `json:"citations"`
	RetrievedChunks     int                `json:"retrieved_chunks"`
	LatencyMS           float64            `json:"latency_ms"`
	UngroundedCitations []int              `json:"ungrounded_citations,omitempty"`
}

func (s *Server) root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "minirag API is running"})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": serviceName,
		"version": Version,
	})
}

func (s *Server) ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Text) == "" {
		return domain.Invalid("text is required")
	}
	res, err := s.pipeline.Ingest(c.Request().Context(), domain.IngestRequest{
		Text:   req.Text,
		Title:  req.Title,
		Source: req.Source,
	})
	if err != nil {
		return err
	}
	chunks := res.Chunks
	if chunks == nil {
		chunks = []domain.Chunk{}
	}
	return c.JSON(http.StatusOK, ingestResponse{
		Message:     "Document ingested successfully",
		ChunkCount:  len(chunks),
		VectorCount: res.VectorCount,
		DocumentID:  res.DocumentID,
		Chunks:      chunks,
	})
}

func (s *Server) query(c echo.Context) error {
	var req queryRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.Invalid("query is required")
	}
	topK := 0
	if req.TopK != nil {
		if *req.TopK < 1 {
			return domain.Invalid("top_k must be at least 1")
		}
		topK = *req.TopK
	}
	res, err := s.pipeline.Query(c.Request().Context(), req.Query, topK)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toQueryResponse(res))
}

func toQueryResponse(res domain.QueryResult) queryResponse {
	cited := map[int]bool{}
	for _, n := range composer.CitedNumbers(res.Answer, len(res.Citations)) {
		cited[n] = true
	}
	citations := make([]citationResponse, len(res.Citations))
	for i, ct := range res.Citations {
		citations[i] = citationResponse{
			Number:   ct.Number,
			Text:     ct.Text,
			Source:   ct.Source,
			Title:    ct.Title,
			Position: ct.Position,
			Cited:    cited[ct.Number],
		}
	}
	return queryResponse{
		Answer:              res.Answer,
		Citations:           citations,
		RetrievedChunks:     res.RetrievedCount,
		LatencyMS:           float64(res.Latency.Microseconds()) / 1000,
		UngroundedCitations: res.Ungrounded,
	}
}

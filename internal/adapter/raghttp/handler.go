package raghttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"news-rag/internal/domain"
	"news-rag/internal/infra/logger"
	"news-rag/internal/usecase"
)

// AskRequest is the request body for the ask endpoints. Option fields
// are pointers so an absent field keeps the server default rather than
// forcing false.
type AskRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversationId,omitempty"`

	Limit               *int     `json:"limit,omitempty"`
	SimilarityThreshold *float64 `json:"similarityThreshold,omitempty"`

	UseRouting               *bool `json:"useRouting,omitempty"`
	UseHybridSearch          *bool `json:"useHybridSearch,omitempty"`
	UseHyDE                  *bool `json:"useHyde,omitempty"`
	UseQueryDecomposition    *bool `json:"useQueryDecomposition,omitempty"`
	UseAdvancedReranking     *bool `json:"useAdvancedReranking,omitempty"`
	UseConversationMemory    *bool `json:"useConversationMemory,omitempty"`
	UseSelfRAG               *bool `json:"useSelfRag,omitempty"`
	UseContextualCompression *bool `json:"useContextualCompression,omitempty"`
	UseAttributedAnswers     *bool `json:"useAttributedAnswers,omitempty"`
	UseConfidenceScoring     *bool `json:"useConfidenceScoring,omitempty"`
	UseSuggestedQuestions    *bool `json:"useSuggestedQuestions,omitempty"`
	UseRelatedArticles       *bool `json:"useRelatedArticles,omitempty"`
	UseCaching               *bool `json:"useCaching,omitempty"`
	UseTracing               *bool `json:"useTracing,omitempty"`
}

// Options resolves the request against the server defaults.
func (r AskRequest) Options() usecase.RAGOptions {
	opts := usecase.DefaultRAGOptions()
	opts.ConversationID = r.ConversationID

	if r.Limit != nil {
		opts.Limit = *r.Limit
	}
	if r.SimilarityThreshold != nil {
		opts.SimilarityThreshold = *r.SimilarityThreshold
	}
	applyFlag(&opts.UseRouting, r.UseRouting)
	applyFlag(&opts.UseHybridSearch, r.UseHybridSearch)
	applyFlag(&opts.UseHyDE, r.UseHyDE)
	applyFlag(&opts.UseQueryDecomposition, r.UseQueryDecomposition)
	applyFlag(&opts.UseAdvancedReranking, r.UseAdvancedReranking)
	applyFlag(&opts.UseConversationMemory, r.UseConversationMemory)
	applyFlag(&opts.UseSelfRAG, r.UseSelfRAG)
	applyFlag(&opts.UseContextualCompression, r.UseContextualCompression)
	applyFlag(&opts.UseAttributedAnswers, r.UseAttributedAnswers)
	applyFlag(&opts.UseConfidenceScoring, r.UseConfidenceScoring)
	applyFlag(&opts.UseSuggestedQuestions, r.UseSuggestedQuestions)
	applyFlag(&opts.UseRelatedArticles, r.UseRelatedArticles)
	applyFlag(&opts.UseCaching, r.UseCaching)
	applyFlag(&opts.UseTracing, r.UseTracing)
	return opts
}

func applyFlag(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

// Handler exposes the pipeline over HTTP.
type Handler struct {
	pipeline *usecase.Pipeline
	feedback *usecase.FeedbackCollector
	limiter  *usecase.RateLimiterStore
	log      *logger.ContextLogger
}

func NewHandler(pipeline *usecase.Pipeline, feedback *usecase.FeedbackCollector, limiter *usecase.RateLimiterStore) *Handler {
	return &Handler{
		pipeline: pipeline,
		feedback: feedback,
		limiter:  limiter,
		log:      logger.NewContextLogger("news-rag-http"),
	}
}

// Register mounts every route on the echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/v1/rag/ask", h.Ask)
	e.POST("/v1/rag/ask-fast", h.AskFast)
	e.POST("/v1/rag/batch", h.AskBatch)
	e.POST("/v1/rag/eval", h.Evaluate)
	e.POST("/v1/rag/feedback", h.RecordFeedback)
	e.GET("/v1/rag/feedback/analytics", h.FeedbackAnalytics)
	e.GET("/v1/rag/feedback/alerts", h.FeedbackAlerts)
	e.POST("/v1/rag/feedback/alerts/ack", h.AcknowledgeAlert)
	e.GET("/v1/rag/feedback/variants", h.CompareVariants)
	e.GET("/v1/rag/feedback/export", h.ExportFeedback)
	e.GET("/v1/rag/traces", h.Traces)
	e.GET("/v1/rag/traces/stats", h.TraceStats)
	e.GET("/v1/rag/cache/stats", h.CacheStats)
	e.DELETE("/v1/rag/cache", h.PurgeCache)
	e.DELETE("/v1/rag/conversations/:id", h.ClearConversation)
}

// Ask answers one query with the full pipeline.
// (POST /v1/rag/ask)
func (h *Handler) Ask(ctx echo.Context) error {
	if !h.allow(ctx) {
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}

	var req AskRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Query == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	reqCtx := ctx.Request().Context()
	if req.ConversationID != "" {
		reqCtx = logger.WithConversationID(reqCtx, req.ConversationID)
	}
	if variant := ctx.Request().Header.Get("X-Experiment-Variant"); variant != "" {
		reqCtx = logger.WithVariant(reqCtx, variant)
	}

	resp, err := h.pipeline.Ask(reqCtx, req.Query, req.Options())
	if err != nil {
		return h.writeError(ctx, err)
	}
	if resp.TraceID != "" {
		reqCtx = logger.WithQueryTraceID(reqCtx, resp.TraceID)
	}
	h.log.WithContext(reqCtx).Info("rag_request_served",
		"strategy", resp.Metadata.Strategy,
		"cache_hit", resp.CacheHit,
		"documents_used", resp.Metadata.DocumentsUsed)
	return ctx.JSON(http.StatusOK, resp)
}

// AskFast answers one query with the speed-biased profile.
// (POST /v1/rag/ask-fast)
func (h *Handler) AskFast(ctx echo.Context) error {
	if !h.allow(ctx) {
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}

	var req AskRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if req.Query == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query is required"})
	}

	resp, err := h.pipeline.AskFast(ctx.Request().Context(), req.Query)
	if err != nil {
		return h.writeError(ctx, err)
	}
	return ctx.JSON(http.StatusOK, resp)
}

// AskBatch answers several queries with bounded parallelism.
// (POST /v1/rag/batch)
func (h *Handler) AskBatch(ctx echo.Context) error {
	if !h.allow(ctx) {
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
	}

	var req usecase.BatchRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	req.Options = usecase.FastRAGOptions()

	result, err := h.pipeline.AskBatch(ctx.Request().Context(), req)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, result)
}

// Evaluate runs a golden-question suite against the live pipeline.
// (POST /v1/rag/eval)
func (h *Handler) Evaluate(ctx echo.Context) error {
	var req usecase.EvalRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	req.Options = usecase.FastRAGOptions()
	// Eval measures the live system, never a cached answer.
	req.Options.UseCaching = false

	report, err := h.pipeline.EvaluateBatch(ctx.Request().Context(), req)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, report)
}

// RecordFeedback stores a user's verdict on an answer.
// (POST /v1/rag/feedback)
func (h *Handler) RecordFeedback(ctx echo.Context) error {
	var entry usecase.FeedbackEntry
	if err := ctx.Bind(&entry); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := h.feedback.Record(entry); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"status": "recorded"})
}

// FeedbackAnalytics reports aggregate feedback rates.
// (GET /v1/rag/feedback/analytics)
func (h *Handler) FeedbackAnalytics(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, h.feedback.Analytics())
}

// FeedbackAlerts reports active quality alerts.
// (GET /v1/rag/feedback/alerts)
func (h *Handler) FeedbackAlerts(ctx echo.Context) error {
	alerts := h.feedback.Alerts()
	if alerts == nil {
		alerts = []usecase.QualityAlert{}
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// AcknowledgeAlert silences an alert kind for the acknowledgment
// window.
// (POST /v1/rag/feedback/alerts/ack)
func (h *Handler) AcknowledgeAlert(ctx echo.Context) error {
	var req struct {
		Kind string `json:"kind"`
	}
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request"})
	}
	if err := h.feedback.Acknowledge(req.Kind); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "acknowledged"})
}

// ExportFeedback dumps stored feedback as training examples.
// (GET /v1/rag/feedback/export?includeNegatives=true&limit=100)
func (h *Handler) ExportFeedback(ctx echo.Context) error {
	includeNegatives := ctx.QueryParam("includeNegatives") == "true"
	limit := 0
	if raw := ctx.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	examples := h.feedback.Export(includeNegatives, limit)
	if examples == nil {
		examples = []usecase.TrainingExample{}
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"examples": examples})
}

// CompareVariants judges an A/B pair by feedback rates.
// (GET /v1/rag/feedback/variants?a=control&b=experiment)
func (h *Handler) CompareVariants(ctx echo.Context) error {
	a := ctx.QueryParam("a")
	b := ctx.QueryParam("b")
	if a == "" || b == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "query params a and b are required"})
	}
	return ctx.JSON(http.StatusOK, h.feedback.CompareVariants(a, b))
}

// Traces returns the most recent query traces.
// (GET /v1/rag/traces?limit=20)
func (h *Handler) Traces(ctx echo.Context) error {
	limit := 20
	if raw := ctx.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	traces := h.pipeline.Tracer().Recent(limit)
	if traces == nil {
		traces = []*usecase.QueryTrace{}
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"traces": traces})
}

// TraceStats aggregates stage timings over recent traces.
// (GET /v1/rag/traces/stats?window=100)
func (h *Handler) TraceStats(ctx echo.Context) error {
	window := 100
	if raw := ctx.QueryParam("window"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			window = parsed
		}
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{"stages": h.pipeline.Tracer().Aggregate(window)})
}

// CacheStats reports cache sizes and hit rate.
// (GET /v1/rag/cache/stats)
func (h *Handler) CacheStats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, h.pipeline.Cache().Stats())
}

// PurgeCache drops both cache tiers.
// (DELETE /v1/rag/cache)
func (h *Handler) PurgeCache(ctx echo.Context) error {
	h.pipeline.Cache().Purge()
	return ctx.JSON(http.StatusOK, map[string]string{"status": "purged"})
}

// ClearConversation drops a conversation session.
// (DELETE /v1/rag/conversations/:id)
func (h *Handler) ClearConversation(ctx echo.Context) error {
	id := ctx.Param("id")
	if id == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "conversation id is required"})
	}
	h.pipeline.Memory().Clear(id)
	return ctx.JSON(http.StatusOK, map[string]string{"status": "cleared"})
}

func (h *Handler) allow(ctx echo.Context) bool {
	if h.limiter == nil {
		return true
	}
	return h.limiter.Allow(ctx.RealIP())
}

// writeError maps pipeline errors onto HTTP statuses: infrastructure
// failures surface as 5xx, upstream throttling as 429, everything else
// as a client error.
func (h *Handler) writeError(ctx echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrStoreEmpty):
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "no documents indexed yet"})
	case errors.Is(err, domain.ErrStoreUnavailable):
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "document store unavailable"})
	case errors.Is(err, domain.ErrUpstreamRateLimited):
		return ctx.JSON(http.StatusTooManyRequests, map[string]string{"error": "upstream model is throttling"})
	case errors.Is(err, domain.ErrSynthesisFailed):
		return ctx.JSON(http.StatusBadGateway, map[string]string{"error": "answer generation failed"})
	case errors.Is(err, domain.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ctx.JSON(http.StatusGatewayTimeout, map[string]string{"error": "request timed out"})
	default:
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

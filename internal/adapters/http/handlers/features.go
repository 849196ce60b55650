package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/flagcontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/flagcontext-service/internal/app"
	"github.com/jsamuelsen/flagcontext-service/internal/domain"
)

// FeaturesHandler handles feature toggle endpoints.
type FeaturesHandler struct {
	service *app.FeatureService
}

// NewFeaturesHandler creates a new features handler.
func NewFeaturesHandler(service *app.FeatureService) *FeaturesHandler {
	return &FeaturesHandler{
		service: service,
	}
}

// ListFeatures handles GET /api/v1/features
// Returns toggle definitions sorted by name, cursor paginated.
//
// @Summary List feature toggles
// @Tags features
// @Produce json
// @Param cursor query string false "Pagination cursor"
// @Param limit query int false "Page size (1-100)"
// @Success 200 {object} dto.PaginatedResponse[dto.FeatureResponse]
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/features [get]
func (h *FeaturesHandler) ListFeatures(c *gin.Context) {
	var page dto.PageRequest
	if err := dto.BindQueryAndValidate(c, &page); err != nil {
		respondWithBindError(c, err)
		return
	}

	after, err := page.After()
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.ErrorCodeBadRequest,
			err.Error(),
		).WithTraceID(dto.GetTraceID(c)))

		return
	}

	toggles, err := h.service.ListToggles(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	listing := dto.Paginate(toggles, func(t *domain.FeatureToggle) string { return t.Name }, after, page.Size())
	items := make([]dto.FeatureResponse, 0, len(listing.Items))

	for _, t := range listing.Items {
		items = append(items, dto.NewFeatureResponse(t))
	}

	c.JSON(http.StatusOK, dto.PaginatedResponse[dto.FeatureResponse]{
		Items:      items,
		NextCursor: listing.NextCursor,
		HasMore:    listing.HasMore,
	})
}

// GetFeature handles GET /api/v1/features/:name
// Evaluates one toggle against the FlagContext built for this request.
//
// @Summary Evaluate a feature toggle
// @Tags features
// @Produce json
// @Param name path string true "Toggle name"
// @Success 200 {object} dto.EvaluationResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/features/{name} [get]
func (h *FeaturesHandler) GetFeature(c *gin.Context) {
	name := c.Param("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
			dto.ErrorCodeBadRequest,
			"toggle name is required",
		).WithTraceID(dto.GetTraceID(c)))

		return
	}

	eval, err := h.service.Evaluate(c.Request.Context(), name)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewEvaluationResponse(eval))
}

// Evaluate handles POST /api/v1/features/evaluate
// Evaluates the requested toggles, or all of them, against an explicit
// context. Unknown toggles are reported disabled with reason "not_found".
//
// @Summary Evaluate toggles for a context
// @Tags features
// @Accept json
// @Produce json
// @Param request body dto.EvaluateRequest true "Context and toggle names"
// @Success 200 {object} dto.EvaluateResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /api/v1/features/evaluate [post]
func (h *FeaturesHandler) Evaluate(c *gin.Context) {
	var req dto.EvaluateRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		respondWithBindError(c, err)
		return
	}

	fc, err := req.Context.ToFlagContext()
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	ctx := c.Request.Context()
	resp := dto.EvaluateResponse{Evaluations: make([]dto.EvaluationResponse, 0, len(req.Flags))}

	if len(req.Flags) == 0 {
		evals, err := h.service.EvaluateAll(ctx, fc)
		if err != nil {
			dto.HandleError(c, err)
			return
		}

		for _, e := range evals {
			resp.Evaluations = append(resp.Evaluations, dto.NewEvaluationResponse(e))
		}

		c.JSON(http.StatusOK, resp)

		return
	}

	for _, flag := range req.Flags {
		eval, err := h.service.EvaluateFor(ctx, flag, fc)
		switch {
		case domain.IsNotFound(err):
			eval = &domain.Evaluation{Flag: flag, Reason: domain.ReasonNotFound}
		case err != nil:
			dto.HandleError(c, err)
			return
		}

		resp.Evaluations = append(resp.Evaluations, dto.NewEvaluationResponse(eval))
	}

	c.JSON(http.StatusOK, resp)
}

// RegisterFeatureRoutes registers feature routes on the given router group.
func (h *FeaturesHandler) RegisterFeatureRoutes(rg *gin.RouterGroup) {
	features := rg.Group("/features")
	features.GET("", h.ListFeatures)
	features.POST("/evaluate", h.Evaluate)
	features.GET("/:name", h.GetFeature)
}

func respondWithBindError(c *gin.Context, err error) {
	if dto.IsValidationError(err) {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponseWithDetails(
			dto.ErrorCodeValidation,
			"request validation failed",
			dto.ValidationErrors(err),
		).WithTraceID(dto.GetTraceID(c)))

		return
	}

	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(
		dto.ErrorCodeBadRequest,
		"malformed request",
	).WithTraceID(dto.GetTraceID(c)))
}

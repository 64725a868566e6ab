package routing

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/swasthyaflow/intake/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/facilities")
	g.GET("", h.ListFacilities)
	g.POST("/suggest", h.Suggest)
	g.GET("/:id", h.GetFacility)
	g.GET("/:id/load", h.GetLoad)
	g.PUT("/:id/load", h.UpdateLoad)
	g.GET("/:id/alternate", h.ShouldSuggestAlternate)
}

type updateLoadRequest struct {
	Department      string `json:"department"`
	CurrentPatients int    `json:"current_patients"`
	MaxCapacity     int    `json:"max_capacity"`
}

func (h *Handler) ListFacilities(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := FacilityFilter{
		State:      c.QueryParam("state"),
		District:   c.QueryParam("district"),
		Type:       c.QueryParam("hospital_type"),
		Department: c.QueryParam("department"),
		ActiveOnly: true,
	}
	facilities, total, err := h.svc.ListFacilities(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(facilities, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetFacility(c echo.Context) error {
	f, err := h.svc.GetFacility(c.Request().Context(), c.Param("id"))
	if err != nil {
		return facilityError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) GetLoad(c echo.Context) error {
	load, err := h.svc.FacilityLoad(c.Request().Context(), c.Param("id"))
	if err != nil {
		return facilityError(err)
	}
	return c.JSON(http.StatusOK, load)
}

func (h *Handler) UpdateLoad(c echo.Context) error {
	var req updateLoadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := h.svc.UpdateLoad(c.Request().Context(), c.Param("id"), req.Department, req.CurrentPatients, req.MaxCapacity)
	if err != nil {
		return facilityError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ShouldSuggestAlternate(c echo.Context) error {
	dept := c.QueryParam("department")
	if dept == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "department is required")
	}
	suggest, load, err := h.svc.ShouldSuggestAlternate(c.Request().Context(), c.Param("id"), dept)
	if err != nil {
		return facilityError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"should_suggest_alternate": suggest,
		"department_load":          load,
	})
}

func (h *Handler) Suggest(c echo.Context) error {
	var req SuggestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	candidates, err := h.svc.Suggest(c.Request().Context(), req)
	if err != nil {
		return facilityError(err)
	}
	return c.JSON(http.StatusOK, candidates)
}

func facilityError(err error) error {
	switch {
	case errors.Is(err, ErrFacilityNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "facility not found")
	case errors.Is(err, ErrInvalidLoad), errors.Is(err, ErrInvalidSuggest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

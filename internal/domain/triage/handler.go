package triage

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/triage", h.SubmitTriage)
	api.GET("/triage/rules", h.ListRules)
}

func (h *Handler) SubmitTriage(c echo.Context) error {
	var req IntakeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Process(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidIntake) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) ListRules(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Rules())
}

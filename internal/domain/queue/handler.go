package queue

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/tokens")
	g.POST("", h.IssueToken)
	g.POST("/call-next", h.CallNext)
	g.GET("/queue/:hospital_id/:department", h.GetQueue)
	g.GET("/stats/:hospital_id/:department", h.GetStats)
	g.GET("/patient/:patient_id", h.GetPatientToken)
	g.GET("/:id", h.GetToken)
	g.POST("/:id/complete", h.CompleteToken)
	g.POST("/:id/cancel", h.CancelToken)
}

type callNextRequest struct {
	FacilityID string `json:"hospital_id"`
	Department string `json:"department"`
	StaffID    string `json:"doctor_id"`
}

func (h *Handler) IssueToken(c echo.Context) error {
	var req IssueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t, err := h.mgr.Issue(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) CallNext(c echo.Context) error {
	var req callNextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.FacilityID == "" || req.Department == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "hospital_id and department are required")
	}
	t, err := h.mgr.DequeueNext(c.Request().Context(), req.FacilityID, req.Department, req.StaffID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if t == nil {
		return c.JSON(http.StatusOK, map[string]string{"message": "No patients in queue"})
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.mgr.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "token not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CompleteToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.mgr.Complete(c.Request().Context(), id)
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CancelToken(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.mgr.Cancel(c.Request().Context(), id)
	if err != nil {
		return transitionError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetQueue(c echo.Context) error {
	facility, department, err := queueParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.mgr.Queue(c.Request().Context(), facility, department))
}

func (h *Handler) GetStats(c echo.Context) error {
	facility, department, err := queueParams(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.mgr.Stats(c.Request().Context(), facility, department))
}

func (h *Handler) GetPatientToken(c echo.Context) error {
	t, err := h.mgr.PatientActiveToken(c.Request().Context(), c.Param("patient_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "no active token")
	}
	return c.JSON(http.StatusOK, t)
}

// queueParams reads the facility and department path segments. Echo matches
// on the raw path when the request escapes reserved characters such as "&",
// leaving params escaped; otherwise they are already decoded.
func queueParams(c echo.Context) (string, string, error) {
	department := c.Param("department")
	if c.Request().URL.RawPath != "" {
		var err error
		department, err = url.PathUnescape(department)
		if err != nil {
			return "", "", echo.NewHTTPError(http.StatusBadRequest, "invalid department")
		}
	}
	return c.Param("hospital_id"), department, nil
}

func transitionError(err error) error {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "token not found")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

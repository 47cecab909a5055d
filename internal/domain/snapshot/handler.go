package snapshot

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc  *Service
	repo Repository
}

func NewHandler(svc *Service, repo Repository) *Handler {
	return &Handler{svc: svc, repo: repo}
}

// RegisterRoutes mounts the public dashboard endpoints on api and the
// operator endpoints on admin.
func (h *Handler) RegisterRoutes(api *echo.Group, admin *echo.Group) {
	api.GET("/availability", h.GetAvailability)
	api.GET("/availability/locations/:id", h.GetLocationAvailability)
	api.GET("/anomalies", h.GetAnomalies)

	admin.POST("/scrape", h.TriggerScrape)
	admin.POST("/configuration/refresh", h.TriggerConfigRefresh)
}

// GetAvailability returns the latest snapshot's location records.
func (h *Handler) GetAvailability(c echo.Context) error {
	snap, err := h.repo.Latest(c.Request().Context())
	if errors.Is(err, ErrNoSnapshot) {
		return echo.NewHTTPError(http.StatusNotFound, "no snapshot available yet")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snap.Locations)
}

// GetLocationAvailability returns one location's record from the latest
// snapshot.
func (h *Handler) GetLocationAvailability(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid location id")
	}

	snap, err := h.repo.Latest(c.Request().Context())
	if errors.Is(err, ErrNoSnapshot) {
		return echo.NewHTTPError(http.StatusNotFound, "no snapshot available yet")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	loc, ok := snap.LocationByID(id)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "location not found in latest snapshot")
	}
	return c.JSON(http.StatusOK, loc)
}

// GetAnomalies returns the overlap anomalies from the most recent cycle.
func (h *Handler) GetAnomalies(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"anomalies":  h.svc.Anomalies(),
		"unresolved": h.svc.Unresolved(),
	})
}

// TriggerScrape runs a scrape cycle immediately.
func (h *Handler) TriggerScrape(c echo.Context) error {
	snap, err := h.svc.Run(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":        snap.ID,
		"taken_at":  snap.TakenAt,
		"locations": len(snap.Locations),
	})
}

// TriggerConfigRefresh re-fetches the provider configuration immediately.
func (h *Handler) TriggerConfigRefresh(c echo.Context) error {
	if err := h.svc.RefreshConfiguration(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

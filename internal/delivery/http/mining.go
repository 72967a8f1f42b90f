package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"quant-research/internal/dto"
	"quant-research/internal/model"
)

func (h *HttpAPIHandler) SetupMining(base *echo.Group) {
	miningGroup := base.Group("/mining")
	miningGroup.POST("", h.runMining)
	miningGroup.GET("/reports", h.getMiningReports)
}

func (h *HttpAPIHandler) runMining(c echo.Context) error {
	ctx := c.Request().Context()

	req := new(dto.MiningRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := h.validator.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	result, err := h.service.MiningService.Run(ctx, *req)
	if err != nil {
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

func (h *HttpAPIHandler) getMiningReports(c echo.Context) error {
	ctx := c.Request().Context()

	param := model.GetMiningReportsParam{
		Symbol:       c.QueryParam("symbol"),
		Significance: c.QueryParam("significance"),
	}
	if limit := c.QueryParam("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		param.Limit = n
	}

	reports, err := h.service.MiningService.GetReports(ctx, param)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to fetch reports"})
	}
	return c.JSON(http.StatusOK, reports)
}

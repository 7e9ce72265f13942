package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/shopit/backend/internal/logging"
	authmw "github.com/shopit/backend/internal/middleware/auth"
	"github.com/shopit/backend/internal/mykafka"
	"github.com/shopit/backend/internal/service/checkout"
)

type OrderHandler struct {
	Engine   *checkout.Engine
	Producer *mykafka.Producer
}

func (h *OrderHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "order_events", fmt.Sprint(event["orderID"]), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}

func (h *OrderHandler) PlaceOrder(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req checkout.OrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	view, err := h.Engine.PlaceOrder(c.Request().Context(), p.UserID, req)
	if err != nil {
		return err
	}

	h.publish(c, map[string]any{
		"type":    "order_created",
		"orderID": view.OrderID,
		"userID":  p.UserID,
		"total":   view.TotalPrice,
		"status":  view.OrderStatus,
	})
	return c.JSON(http.StatusCreated, view)
}

func (h *OrderHandler) GetOrders(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	views, err := h.Engine.OrdersFor(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, views)
}

func (h *OrderHandler) UpdateOrderStatus(c echo.Context) error {
	orderID, err := strconv.Atoi(c.Param("id"))
	if err != nil || orderID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}

	var req struct {
		OrderStatus string `json:"order_status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Engine.UpdateOrderStatus(c.Request().Context(), uint(orderID), req.OrderStatus)
	if err != nil {
		return err
	}

	h.publish(c, map[string]any{
		"type":    "order_status_updated",
		"orderID": order.ID,
		"status":  order.OrderStatus,
	})
	return c.JSON(http.StatusOK, order)
}

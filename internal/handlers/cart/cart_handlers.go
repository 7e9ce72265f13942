package cart

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
	cartsvc "github.com/shopit/backend/internal/service/cart"
)

type CartHandler struct {
	Cart     *cartsvc.Service
	Producer *mykafka.Producer
}

func (h *CartHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "cart_events", fmt.Sprint(event["userID"]), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}

func principal(c echo.Context) (authmw.Principal, error) {
	p, ok := authmw.FromContext(c)
	if !ok {
		return authmw.Principal{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return p, nil
}

func productIDParam(c echo.Context) (uint, error) {
	id, err := strconv.Atoi(c.Param("productId"))
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	return uint(id), nil
}

func (h *CartHandler) GetCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	view, err := h.Cart.Get(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (h *CartHandler) AddToCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req struct {
		ProductID uint `json:"product_id"`
		Quantity  int  `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	view, err := h.Cart.AddItem(c.Request().Context(), p.UserID, req.ProductID, req.Quantity)
	if err != nil {
		return err
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_added",
		"userID":    p.UserID,
		"productID": req.ProductID,
		"quantity":  req.Quantity,
	})
	return c.JSON(http.StatusOK, view)
}

func (h *CartHandler) UpdateQuantity(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	productID, err := productIDParam(c)
	if err != nil {
		return err
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	view, err := h.Cart.UpdateItemQuantity(c.Request().Context(), p.UserID, productID, req.Quantity)
	if err != nil {
		return err
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_updated",
		"userID":    p.UserID,
		"productID": productID,
		"quantity":  req.Quantity,
	})
	return c.JSON(http.StatusOK, view)
}

func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	productID, err := productIDParam(c)
	if err != nil {
		return err
	}

	view, err := h.Cart.RemoveItem(c.Request().Context(), p.UserID, productID)
	if err != nil {
		return err
	}

	h.publish(c, map[string]any{
		"type":      "cart_item_removed",
		"userID":    p.UserID,
		"productID": productID,
	})
	return c.JSON(http.StatusOK, view)
}

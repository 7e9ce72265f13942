package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/es"
	"github.com/shopit/backend/internal/logging"
	"github.com/shopit/backend/internal/models"
	"github.com/shopit/backend/internal/mykafka"
	"github.com/shopit/backend/internal/util"
)

type ProductHandler struct {
	DB       *gorm.DB
	Producer *mykafka.Producer
	Indexer  *es.Indexer
}

type productRequest struct {
	Name            string  `json:"name"`
	Description     string  `json:"description"`
	CategoryID      uint    `json:"category_id"`
	Price           float64 `json:"price"`
	DiscountPercent float64 `json:"discount_percent"`
	Quantity        int     `json:"quantity"`
}

func (r productRequest) validate() error {
	if r.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	if r.Price < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "price must not be negative")
	}
	if r.DiscountPercent < 0 || r.DiscountPercent > 100 {
		return echo.NewHTTPError(http.StatusBadRequest, "discount percent must be between 0 and 100")
	}
	if r.Quantity < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "quantity must not be negative")
	}
	return nil
}

func (h *ProductHandler) publish(c echo.Context, event map[string]any) {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := h.Producer.PublishEvent(ctx, "product_events", fmt.Sprint(event["productID"]), event); err != nil {
		logging.FromContext(ctx).Error("kafka publish error", "error", err)
	}
}

func (h *ProductHandler) index(c echo.Context, p models.Product) {
	if err := h.Indexer.IndexProduct(c.Request().Context(), p); err != nil {
		logging.FromContext(c.Request().Context()).Error("es index error", "error", err)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.DB.WithContext(c.Request().Context()).First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return err
	}
	return c.JSON(http.StatusOK, product)
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	page := parseIntDefault(c.QueryParam("page"), 1)
	size := parseIntDefault(c.QueryParam("size"), 10)
	offset, limit := util.Calculate(page, size)

	q := h.DB.WithContext(ctx).Model(&models.Product{})
	if cat := c.QueryParam("category_id"); cat != "" {
		q = q.Where("category_id = ?", parseIntDefault(cat, 0))
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return err
	}

	var items []models.Product
	if err := q.Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data": items,
		"meta": map[string]any{
			"page":        page,
			"size":        limit,
			"total":       total,
			"total_pages": (total + int64(limit) - 1) / int64(limit),
			"has_prev":    page > 1,
			"has_next":    int64(offset+limit) < total,
		},
	})
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	prod := models.Product{
		Name:            req.Name,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		Price:           req.Price,
		DiscountPercent: req.DiscountPercent,
		Quantity:        req.Quantity,
	}
	if err := h.DB.WithContext(c.Request().Context()).Create(&prod).Error; err != nil {
		return err
	}

	h.index(c, prod)
	h.publish(c, map[string]any{
		"type":      "product_created",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return c.JSON(http.StatusCreated, prod)
}

func (h *ProductHandler) PatchProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req productRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	var prod models.Product
	if err := h.DB.WithContext(c.Request().Context()).First(&prod, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "product not found")
		}
		return err
	}

	prod.Name = req.Name
	prod.Description = req.Description
	prod.CategoryID = req.CategoryID
	prod.Price = req.Price
	prod.DiscountPercent = req.DiscountPercent
	prod.Quantity = req.Quantity

	if err := h.DB.WithContext(c.Request().Context()).Save(&prod).Error; err != nil {
		return err
	}

	h.index(c, prod)
	h.publish(c, map[string]any{
		"type":      "product_updated",
		"productID": prod.ID,
		"name":      prod.Name,
	})
	return c.JSON(http.StatusOK, prod)
}

// DeleteProduct soft-deletes: the row keeps its history but leaves listings
// and can no longer be added to carts or checked out.
func (h *ProductHandler) DeleteProduct(c echo.Context) error {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	res := h.DB.WithContext(c.Request().Context()).Delete(&models.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "product not found")
	}

	if err := h.Indexer.DeleteProduct(c.Request().Context(), uint(id)); err != nil {
		logging.FromContext(c.Request().Context()).Error("es delete error", "error", err)
	}
	h.publish(c, map[string]any{
		"type":      "product_deleted",
		"productID": id,
	})
	return c.NoContent(http.StatusNoContent)
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	authmw "github.com/shopit/backend/internal/middleware/auth"
	"github.com/shopit/backend/internal/models"
)

type AddressHandler struct {
	DB *gorm.DB
}

type addressRequest struct {
	Street   string `json:"street"`
	City     string `json:"city"`
	State    string `json:"state"`
	Country  string `json:"country"`
	Pincode  string `json:"pincode"`
	Building string `json:"building"`
}

func (r addressRequest) validate() error {
	if r.Street == "" || r.City == "" || r.State == "" || r.Country == "" || r.Pincode == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "street, city, state, country and pincode are required")
	}
	return nil
}

func (h *AddressHandler) GetAddresses(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var addresses []models.Address
	if err := h.DB.WithContext(c.Request().Context()).
		Where("user_id = ?", p.UserID).Order("id ASC").Find(&addresses).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, addresses)
}

func (h *AddressHandler) CreateAddress(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	address := models.Address{
		UserID:   p.UserID,
		Street:   req.Street,
		City:     req.City,
		State:    req.State,
		Country:  req.Country,
		Pincode:  req.Pincode,
		Building: req.Building,
	}
	if err := h.DB.WithContext(c.Request().Context()).Create(&address).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, address)
}

func (h *AddressHandler) UpdateAddress(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req addressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if err := req.validate(); err != nil {
		return err
	}

	var address models.Address
	if err := h.DB.WithContext(c.Request().Context()).
		Where("id = ? AND user_id = ?", id, p.UserID).First(&address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "address not found")
		}
		return err
	}

	address.Street = req.Street
	address.City = req.City
	address.State = req.State
	address.Country = req.Country
	address.Pincode = req.Pincode
	address.Building = req.Building

	if err := h.DB.WithContext(c.Request().Context()).Save(&address).Error; err != nil {
		return err
	}
	return c.JSON(http.StatusOK, address)
}

func (h *AddressHandler) DeleteAddress(c echo.Context) error {
	p, ok := authmw.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	res := h.DB.WithContext(c.Request().Context()).
		Where("id = ? AND user_id = ?", id, p.UserID).Delete(&models.Address{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "address not found")
	}
	return c.NoContent(http.StatusNoContent)
}

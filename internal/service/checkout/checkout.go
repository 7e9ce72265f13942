package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/apperrors"
	"github.com/shopit/backend/internal/logging"
	"github.com/shopit/backend/internal/models"
	cartsvc "github.com/shopit/backend/internal/service/cart"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrIllegalTransition = errors.New("illegal order status transition")
)

// Engine converts a non-empty cart into an order with its payment and
// address while decrementing product stock. Every step runs inside one
// database transaction; a failure at any step rolls back stock decrements,
// the payment record and the order together.
type Engine struct {
	DB *gorm.DB
}

type OrderRequest struct {
	AddressID              uint   `json:"address_id"`
	PaymentMethod          string `json:"payment_method"`
	GatewayName            string `json:"gateway_name"`
	TransactionID          string `json:"transaction_id"`
	PaymentStatus          string `json:"payment_status"`
	PaymentResponseMessage string `json:"payment_response_message"`
}

type OrderView struct {
	OrderID     uint               `json:"order_id"`
	OrderItems  []models.OrderItem `json:"order_items"`
	Payment     models.Payment     `json:"payment"`
	Address     models.Address     `json:"address"`
	TotalPrice  float64            `json:"total_price"`
	OrderStatus string             `json:"order_status"`
	OrderDate   time.Time          `json:"order_date"`
}

func (e *Engine) PlaceOrder(ctx context.Context, userID uint, req OrderRequest) (*OrderView, error) {
	l := logging.FromContext(ctx).With("svc", "checkout.place_order", "user_id", userID)

	if req.PaymentMethod == "" {
		return nil, apperrors.Validation("payment method is required")
	}

	var view OrderView
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cart models.Cart
		if err := tx.Where("user_id = ?", userID).First(&cart).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.KindBusinessRule, ErrEmptyCart, "no item has been added to the cart")
			}
			return err
		}

		var items []models.CartItem
		if err := tx.Where("cart_id = ?", cart.ID).Find(&items).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return apperrors.Wrap(apperrors.KindBusinessRule, ErrEmptyCart, "no item has been added to the cart")
		}

		// Compare-and-decrement per product: the quantity guard in the
		// WHERE clause makes concurrent checkouts for the same product
		// serialize on the row instead of overselling, and the enclosing
		// transaction undoes earlier decrements when a later item fails.
		for _, it := range items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND quantity >= ?", it.ProductID, it.Quantity).
				Update("quantity", gorm.Expr("quantity - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var product models.Product
				name := fmt.Sprintf("id %d", it.ProductID)
				available := 0
				if err := tx.Unscoped().First(&product, it.ProductID).Error; err == nil {
					if product.DeletedAt.Valid {
						return apperrors.Wrap(apperrors.KindBusinessRule, cartsvc.ErrProductUnavailable,
							"product %q has been deleted", product.Name)
					}
					name = product.Name
					available = product.Quantity
				}
				return apperrors.Wrap(apperrors.KindBusinessRule, cartsvc.ErrInsufficientStock,
					"stock not available for the product %s for the quantity %d, available stock is %d",
					name, it.Quantity, available)
			}
		}

		// The payment row is persisted before the order it will attach to.
		payment := models.Payment{
			Method:          req.PaymentMethod,
			GatewayName:     req.GatewayName,
			TransactionID:   req.TransactionID,
			Status:          req.PaymentStatus,
			ResponseMessage: req.PaymentResponseMessage,
		}
		if payment.Status == "" {
			payment.Status = models.PaymentStatusPending
		}
		if payment.TransactionID == "" {
			payment.TransactionID = uuid.NewString()
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		var address models.Address
		if err := tx.Where("id = ? AND user_id = ?", req.AddressID, userID).First(&address).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("Address", "Address id", req.AddressID)
			}
			return err
		}

		// A failed payment does not block order creation (the gateway may
		// retry), but the order stays out of fulfilment until its status
		// moves to Processing.
		status := models.OrderStatusProcessing
		if payment.Status == models.PaymentStatusFailed {
			status = models.OrderStatusAwaitingPayment
		}

		order := models.Order{
			UserID:      userID,
			AddressID:   address.ID,
			TotalPrice:  cart.TotalPrice,
			OrderStatus: status,
			OrderDate:   time.Now(),
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		orderItems := make([]models.OrderItem, 0, len(items))
		for _, it := range items {
			oi := models.OrderItem{
				OrderID:         order.ID,
				ProductID:       it.ProductID,
				Quantity:        it.Quantity,
				Price:           it.Price,
				DiscountPercent: it.DiscountPercent,
			}
			if err := tx.Create(&oi).Error; err != nil {
				return err
			}
			orderItems = append(orderItems, oi)
		}

		payment.OrderID = order.ID
		if err := tx.Save(&payment).Error; err != nil {
			return err
		}

		if err := tx.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
			return err
		}
		cart.TotalPrice = 0
		if err := tx.Save(&cart).Error; err != nil {
			return err
		}

		view = OrderView{
			OrderID:     order.ID,
			OrderItems:  orderItems,
			Payment:     payment,
			Address:     address,
			TotalPrice:  order.TotalPrice,
			OrderStatus: order.OrderStatus,
			OrderDate:   order.OrderDate,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Info("order placed", "order_id", view.OrderID, "total", view.TotalPrice, "status", view.OrderStatus)
	return &view, nil
}

// legalTransitions is forward-only; Delivered and Cancelled are terminal.
var legalTransitions = map[string][]string{
	models.OrderStatusAwaitingPayment: {models.OrderStatusProcessing, models.OrderStatusCancelled},
	models.OrderStatusProcessing:      {models.OrderStatusShipped, models.OrderStatusCancelled},
	models.OrderStatusShipped:         {models.OrderStatusDelivered},
}

func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID uint, newStatus string) (*models.Order, error) {
	switch newStatus {
	case models.OrderStatusAwaitingPayment, models.OrderStatusProcessing,
		models.OrderStatusShipped, models.OrderStatusDelivered, models.OrderStatusCancelled:
	default:
		return nil, apperrors.Validation("unknown order status %q", newStatus)
	}

	var order models.Order
	err := e.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&order, orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NotFound("Order", "id", orderID)
			}
			return err
		}

		allowed := false
		for _, next := range legalTransitions[order.OrderStatus] {
			if next == newStatus {
				allowed = true
				break
			}
		}
		if !allowed {
			return apperrors.Wrap(apperrors.KindBusinessRule, ErrIllegalTransition,
				"cannot move order %d from %q to %q", orderID, order.OrderStatus, newStatus)
		}

		order.OrderStatus = newStatus
		return tx.Save(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// OrdersFor lists a user's orders, newest first.
func (e *Engine) OrdersFor(ctx context.Context, userID uint) ([]OrderView, error) {
	var orders []models.Order
	if err := e.DB.WithContext(ctx).Where("user_id = ?", userID).Order("id DESC").Find(&orders).Error; err != nil {
		return nil, err
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		v, err := e.load(ctx, o)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (e *Engine) load(ctx context.Context, order models.Order) (*OrderView, error) {
	var items []models.OrderItem
	if err := e.DB.WithContext(ctx).Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return nil, err
	}
	var payment models.Payment
	if err := e.DB.WithContext(ctx).Where("order_id = ?", order.ID).First(&payment).Error; err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	var address models.Address
	if err := e.DB.WithContext(ctx).First(&address, order.AddressID).Error; err != nil &&
		!errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &OrderView{
		OrderID:     order.ID,
		OrderItems:  items,
		Payment:     payment,
		Address:     address,
		TotalPrice:  order.TotalPrice,
		OrderStatus: order.OrderStatus,
		OrderDate:   order.OrderDate,
	}, nil
}

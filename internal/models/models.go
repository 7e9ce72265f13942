package models

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole resolves a role name once at signup; anything outside the closed
// set is rejected instead of being carried around as a free-form string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(s)) {
	case RoleUser:
		return RoleUser, nil
	case RoleSeller:
		return RoleSeller, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", ErrUnknownRole
}

type User struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string `gorm:"unique;not null"          json:"username"`
	Email        string `gorm:"unique;not null"          json:"email"`
	PasswordHash string `gorm:"not null"                 json:"-"`
	Role         Role   `gorm:"not null;default:user"    json:"role"`
}

type Cart struct {
	ID         uint    `gorm:"primaryKey;autoIncrement" json:"cart_id"`
	UserID     uint    `gorm:"uniqueIndex;not null"     json:"user_id"`
	TotalPrice float64 `gorm:"not null;default:0"       json:"total_price"`
}

// CartItem snapshots price and discount at add-time; it is not live-linked
// to the product row.
type CartItem struct {
	ID              uint    `gorm:"primaryKey;autoIncrement"              json:"id"`
	CartID          uint    `gorm:"uniqueIndex:idx_cart_product;not null" json:"cart_id"`
	ProductID       uint    `gorm:"uniqueIndex:idx_cart_product;not null" json:"product_id"`
	Quantity        int     `gorm:"not null;check:quantity>0"             json:"quantity"`
	Price           float64 `gorm:"not null"                              json:"price"`
	DiscountPercent float64 `gorm:"not null;default:0"                    json:"discount_percent"`
}

// SpecialPrice is the snapshotted unit price after discount.
func (ci CartItem) SpecialPrice() float64 {
	return ci.Price - ci.DiscountPercent/100*ci.Price
}

func (ci CartItem) TotalPrice() float64 {
	return ci.SpecialPrice() * float64(ci.Quantity)
}

type Category struct {
	ID   uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"unique;not null"          json:"name"`
}

type Product struct {
	ID              uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID      uint           `gorm:"index"                    json:"category_id"`
	Name            string         `gorm:"not null"                 json:"name"`
	Description     string         `json:"description"`
	Price           float64        `gorm:"not null"                 json:"price"`
	DiscountPercent float64        `gorm:"not null;default:0"       json:"discount_percent"`
	Quantity        int            `gorm:"not null;default:0"       json:"quantity"`
	DeletedAt       gorm.DeletedAt `gorm:"index"                    json:"-"`
}

func (p Product) SpecialPrice() float64 {
	return p.Price - p.DiscountPercent/100*p.Price
}

type Address struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID   uint   `gorm:"index;not null"           json:"user_id"`
	Street   string `gorm:"not null"                 json:"street"`
	City     string `gorm:"not null"                 json:"city"`
	State    string `gorm:"not null"                 json:"state"`
	Country  string `gorm:"not null"                 json:"country"`
	Pincode  string `gorm:"not null"                 json:"pincode"`
	Building string `json:"building"`
}

const (
	OrderStatusAwaitingPayment = "Awaiting Payment"
	OrderStatusProcessing      = "Processing"
	OrderStatusShipped         = "Shipped"
	OrderStatusDelivered       = "Delivered"
	OrderStatusCancelled       = "Cancelled"
)

// Order is immutable after placement except for OrderStatus.
type Order struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"order_id"`
	UserID      uint      `gorm:"index;not null"           json:"user_id"`
	AddressID   uint      `gorm:"not null"                 json:"address_id"`
	TotalPrice  float64   `gorm:"not null"                 json:"total_price"`
	OrderStatus string    `gorm:"not null"                 json:"order_status"`
	OrderDate   time.Time `gorm:"not null"                 json:"order_date"`
}

type OrderItem struct {
	ID              uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         uint    `gorm:"index;not null"           json:"order_id"`
	ProductID       uint    `gorm:"not null"                 json:"product_id"`
	Quantity        int     `gorm:"not null"                 json:"quantity"`
	Price           float64 `gorm:"not null"                 json:"price"`
	DiscountPercent float64 `gorm:"not null;default:0"       json:"discount_percent"`
}

const (
	PaymentStatusPending = "Pending"
	PaymentStatusSuccess = "Success"
	PaymentStatusFailed  = "Failed"
)

// Payment is created before the order it will attach to; OrderID is filled
// in once the order row exists.
type Payment struct {
	ID              uint   `gorm:"primaryKey;autoIncrement" json:"payment_id"`
	OrderID         uint   `gorm:"index"                    json:"order_id"`
	Method          string `gorm:"not null"                 json:"payment_method"`
	GatewayName     string `json:"gateway_name"`
	TransactionID   string `json:"transaction_id"`
	Status          string `gorm:"not null"                 json:"status"`
	ResponseMessage string `json:"response_message"`
}

// RefreshToken stores only the keyed hash of the opaque token, never the
// plaintext. One record per user, replaced wholesale on rotation.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null"     json:"user_id"`
	TokenHash string    `gorm:"uniqueIndex;not null"     json:"-"`
	CreatedAt time.Time `gorm:"not null"                 json:"created_at"`
	ExpiresAt time.Time `gorm:"not null"                 json:"expires_at"`
}

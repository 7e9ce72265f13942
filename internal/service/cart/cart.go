package cart

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/shopit/backend/internal/apperrors"
	"github.com/shopit/backend/internal/models"
)

var (
	ErrProductUnavailable = errors.New("product unavailable")
	ErrOutOfStock         = errors.New("product out of stock")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrAlreadyInCart      = errors.New("product already in cart")
	ErrItemNotInCart      = errors.New("product not in cart")
)

// Service maintains the authoritative item set and cached running total of
// one user's cart. Invariant on every exit path: the stored total equals
// the sum of item totals and is never negative.
type Service struct {
	DB *gorm.DB
}

type View struct {
	CartID     uint              `json:"cart_id"`
	TotalPrice float64           `json:"total_price"`
	CartItems  []models.CartItem `json:"cart_items"`
}

func (s *Service) AddItem(ctx context.Context, userID, productID uint, quantity int) (*View, error) {
	if quantity < 1 {
		return nil, apperrors.Validation("quantity must be at least 1")
	}

	var cart models.Cart
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := availableProduct(tx, productID)
		if err != nil {
			return err
		}

		c, err := cartFor(tx, userID)
		if err != nil {
			return err
		}

		var existing models.CartItem
		res := tx.Where("cart_id = ? AND product_id = ?", c.ID, productID).First(&existing)
		if res.Error == nil {
			return apperrors.Wrap(apperrors.KindBusinessRule, ErrAlreadyInCart,
				"product %q has already been added to the cart", product.Name)
		}
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return res.Error
		}

		if err := checkStock(product, quantity); err != nil {
			return err
		}

		item := models.CartItem{
			CartID:          c.ID,
			ProductID:       product.ID,
			Quantity:        quantity,
			Price:           product.Price,
			DiscountPercent: product.DiscountPercent,
		}
		if err := tx.Create(&item).Error; err != nil {
			return err
		}

		c.TotalPrice += product.SpecialPrice() * float64(quantity)
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		cart = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, &cart)
}

// UpdateItemQuantity sets the absolute quantity of an existing item. A
// quantity of zero removes the item. The total is adjusted by the delta of
// the one item rather than resummed.
func (s *Service) UpdateItemQuantity(ctx context.Context, userID, productID uint, quantity int) (*View, error) {
	if quantity < 0 {
		return nil, apperrors.Validation("quantity must not be negative")
	}

	var cart models.Cart
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		product, err := availableProduct(tx, productID)
		if err != nil {
			return err
		}

		c, err := cartFor(tx, userID)
		if err != nil {
			return err
		}

		if err := checkStock(product, quantity); err != nil {
			return err
		}

		var item models.CartItem
		if err := tx.Where("cart_id = ? AND product_id = ?", c.ID, productID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.KindBusinessRule, ErrItemNotInCart,
					"product %q is not added to the cart", product.Name)
			}
			return err
		}

		oldTotal := item.TotalPrice()

		if quantity == 0 {
			if err := tx.Delete(&item).Error; err != nil {
				return err
			}
			c.TotalPrice -= oldTotal
		} else {
			item.Quantity = quantity
			if err := tx.Save(&item).Error; err != nil {
				return err
			}
			c.TotalPrice = c.TotalPrice - oldTotal + item.TotalPrice()
		}
		if c.TotalPrice < 0 {
			c.TotalPrice = 0
		}
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		cart = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, &cart)
}

func (s *Service) RemoveItem(ctx context.Context, userID, productID uint) (*View, error) {
	var cart models.Cart
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := cartFor(tx, userID)
		if err != nil {
			return err
		}

		var item models.CartItem
		if err := tx.Where("cart_id = ? AND product_id = ?", c.ID, productID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.Wrap(apperrors.KindBusinessRule, ErrItemNotInCart,
					"product %d is not added to the cart", productID)
			}
			return err
		}

		if err := tx.Delete(&item).Error; err != nil {
			return err
		}

		c.TotalPrice -= item.TotalPrice()
		if c.TotalPrice < 0 {
			c.TotalPrice = 0
		}
		if err := tx.Save(c).Error; err != nil {
			return err
		}
		cart = *c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.view(ctx, &cart)
}

func (s *Service) Get(ctx context.Context, userID uint) (*View, error) {
	cart, err := cartFor(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, cart)
}

func (s *Service) view(ctx context.Context, cart *models.Cart) (*View, error) {
	var items []models.CartItem
	if err := s.DB.WithContext(ctx).Where("cart_id = ?", cart.ID).Find(&items).Error; err != nil {
		return nil, err
	}
	return &View{CartID: cart.ID, TotalPrice: cart.TotalPrice, CartItems: items}, nil
}

// cartFor loads the user's cart. Carts are created at signup; the create
// here covers users that predate that behavior.
func cartFor(tx *gorm.DB, userID uint) (*models.Cart, error) {
	var cart models.Cart
	if err := tx.Where("user_id = ?", userID).FirstOrCreate(&cart, models.Cart{UserID: userID}).Error; err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &cart, nil
}

// availableProduct distinguishes a missing product from a soft-deleted one.
func availableProduct(tx *gorm.DB, productID uint) (*models.Product, error) {
	var product models.Product
	if err := tx.Unscoped().First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("Product", "Product ID", productID)
		}
		return nil, err
	}
	if product.DeletedAt.Valid {
		return nil, apperrors.Wrap(apperrors.KindBusinessRule, ErrProductUnavailable,
			"product %q has been deleted", product.Name)
	}
	return &product, nil
}

func checkStock(product *models.Product, requested int) error {
	if product.Quantity == 0 {
		return apperrors.Wrap(apperrors.KindBusinessRule, ErrOutOfStock,
			"product %q is out of stock", product.Name)
	}
	if product.Quantity < requested {
		return apperrors.Wrap(apperrors.KindBusinessRule, ErrInsufficientStock,
			"product %q is not available for the requested quantity %d, available quantity is %d",
			product.Name, requested, product.Quantity)
	}
	return nil
}

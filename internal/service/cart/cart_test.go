package cart

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/config"
	"github.com/shopit/backend/internal/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	return &Service{DB: db}, db
}

func createProduct(t *testing.T, db *gorm.DB, name string, price, discount float64, quantity int) models.Product {
	t.Helper()
	p := models.Product{Name: name, Price: price, DiscountPercent: discount, Quantity: quantity}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// the ledger invariant: stored total equals the sum of item totals and is
// never negative
func assertCartInvariant(t *testing.T, db *gorm.DB, userID uint) {
	t.Helper()

	var cart models.Cart
	require.NoError(t, db.Where("user_id = ?", userID).First(&cart).Error)

	var items []models.CartItem
	require.NoError(t, db.Where("cart_id = ?", cart.ID).Find(&items).Error)

	sum := 0.0
	for _, it := range items {
		sum += it.TotalPrice()
	}
	assert.InDelta(t, sum, cart.TotalPrice, 1e-9)
	assert.GreaterOrEqual(t, cart.TotalPrice, 0.0)
}

func TestService_AddItem_SnapshotsPriceAndTotals(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	p := createProduct(t, db, "keyboard", 100, 10, 10)

	view, err := svc.AddItem(context.Background(), 1, p.ID, 3)
	require.NoError(t, err)

	require.Len(t, view.CartItems, 1)
	assert.Equal(t, 100.0, view.CartItems[0].Price)
	assert.Equal(t, 10.0, view.CartItems[0].DiscountPercent)
	assert.Equal(t, 3, view.CartItems[0].Quantity)
	assert.InDelta(t, 270.0, view.TotalPrice, 1e-9)
	assertCartInvariant(t, db, 1)

	// snapshot is decoupled from the live product row
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", 500).Error)
	got, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.InDelta(t, 270.0, got.TotalPrice, 1e-9)
}

func TestService_AddItem_Twice(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	p := createProduct(t, db, "keyboard", 100, 0, 10)

	_, err := svc.AddItem(context.Background(), 1, p.ID, 1)
	require.NoError(t, err)

	_, err = svc.AddItem(context.Background(), 1, p.ID, 1)
	assert.ErrorIs(t, err, ErrAlreadyInCart)

	var count int64
	require.NoError(t, db.Model(&models.CartItem{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assertCartInvariant(t, db, 1)
}

func TestService_AddItem_StockChecks(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	outOfStock := createProduct(t, db, "sold out", 10, 0, 0)
	scarce := createProduct(t, db, "scarce", 10, 0, 2)

	_, err := svc.AddItem(ctx, 1, outOfStock.ID, 1)
	assert.ErrorIs(t, err, ErrOutOfStock)

	_, err = svc.AddItem(ctx, 1, scarce.ID, 3)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = svc.AddItem(ctx, 1, 9999, 1)
	require.Error(t, err)

	_, err = svc.AddItem(ctx, 1, scarce.ID, 0)
	require.Error(t, err)
}

func TestService_AddItem_SoftDeletedProduct(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	p := createProduct(t, db, "retired", 10, 0, 5)
	require.NoError(t, db.Delete(&models.Product{}, p.ID).Error)

	_, err := svc.AddItem(context.Background(), 1, p.ID, 1)
	assert.ErrorIs(t, err, ErrProductUnavailable)
}

func TestService_UpdateItemQuantity(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	p := createProduct(t, db, "keyboard", 100, 10, 10)

	_, err := svc.AddItem(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	view, err := svc.UpdateItemQuantity(ctx, 1, p.ID, 5)
	require.NoError(t, err)
	assert.InDelta(t, 450.0, view.TotalPrice, 1e-9)
	assertCartInvariant(t, db, 1)

	_, err = svc.UpdateItemQuantity(ctx, 1, p.ID, 11)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assertCartInvariant(t, db, 1)
}

func TestService_UpdateItemQuantity_ZeroRemovesItem(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	p := createProduct(t, db, "keyboard", 100, 0, 10)

	_, err := svc.AddItem(ctx, 1, p.ID, 2)
	require.NoError(t, err)

	view, err := svc.UpdateItemQuantity(ctx, 1, p.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, view.CartItems)
	assert.InDelta(t, 0.0, view.TotalPrice, 1e-9)
	assertCartInvariant(t, db, 1)
}

func TestService_UpdateItemQuantity_NotInCart(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	p := createProduct(t, db, "keyboard", 100, 0, 10)

	_, err := svc.UpdateItemQuantity(context.Background(), 1, p.ID, 1)
	assert.ErrorIs(t, err, ErrItemNotInCart)
}

func TestService_RemoveItem(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()
	keyboard := createProduct(t, db, "keyboard", 100, 10, 10)
	mouse := createProduct(t, db, "mouse", 50, 0, 10)

	_, err := svc.AddItem(ctx, 1, keyboard.ID, 3)
	require.NoError(t, err)
	_, err = svc.AddItem(ctx, 1, mouse.ID, 2)
	require.NoError(t, err)

	view, err := svc.RemoveItem(ctx, 1, keyboard.ID)
	require.NoError(t, err)
	require.Len(t, view.CartItems, 1)
	assert.Equal(t, mouse.ID, view.CartItems[0].ProductID)
	assert.InDelta(t, 100.0, view.TotalPrice, 1e-9)
	assertCartInvariant(t, db, 1)

	_, err = svc.RemoveItem(ctx, 1, keyboard.ID)
	assert.ErrorIs(t, err, ErrItemNotInCart)
}

// a longer mutation sequence keeps the invariant on every step
func TestService_TotalInvariantAcrossSequence(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	ctx := context.Background()

	a := createProduct(t, db, "a", 19.99, 5, 100)
	b := createProduct(t, db, "b", 7.50, 0, 100)
	c := createProduct(t, db, "c", 120, 25, 100)

	steps := []func() error{
		func() error { _, err := svc.AddItem(ctx, 1, a.ID, 4); return err },
		func() error { _, err := svc.AddItem(ctx, 1, b.ID, 1); return err },
		func() error { _, err := svc.UpdateItemQuantity(ctx, 1, a.ID, 2); return err },
		func() error { _, err := svc.AddItem(ctx, 1, c.ID, 3); return err },
		func() error { _, err := svc.RemoveItem(ctx, 1, b.ID); return err },
		func() error { _, err := svc.UpdateItemQuantity(ctx, 1, c.ID, 0); return err },
		func() error { _, err := svc.AddItem(ctx, 1, b.ID, 7); return err },
		func() error { _, err := svc.UpdateItemQuantity(ctx, 1, b.ID, 6); return err },
	}
	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		assertCartInvariant(t, db, 1)
	}
}

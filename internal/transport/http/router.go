package httpserver

import (
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/shopit/backend/internal/handlers"
	"github.com/shopit/backend/internal/handlers/cart"
	authmw "github.com/shopit/backend/internal/middleware/auth"
	"github.com/shopit/backend/internal/models"
)

// PublicPrefixes lists request paths the session filter must not gate.
var PublicPrefixes = []string{
	"/health",
	"/api/v1/auth/register",
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
	"/api/v1/public",
}

type Deps struct {
	DB              *gorm.DB
	SessionFilter   *authmw.SessionFilter
	AuthHandler     *handlers.AuthHandler
	ProductHandler  *handlers.ProductHandler
	CategoryHandler *handlers.CategoryHandler
	AddressHandler  *handlers.AddressHandler
	CartHandler     *cart.CartHandler
	OrderHandler    *handlers.OrderHandler
	SearchHandler   *handlers.SearchHandler
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = ErrorHandler()

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })

	e.Use(d.SessionFilter.Middleware)

	v1 := e.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", d.AuthHandler.Register)
	auth.POST("/login", d.AuthHandler.Login)
	auth.POST("/refresh", d.AuthHandler.RefreshJWT)
	auth.POST("/logout", d.AuthHandler.LogOut)

	public := v1.Group("/public")
	public.GET("/products", d.ProductHandler.GetProducts)
	public.GET("/products/:id", d.ProductHandler.GetProduct)
	public.GET("/categories", d.CategoryHandler.GetCategories)
	public.GET("/search", d.SearchHandler.Search)

	cartg := v1.Group("/cart")
	cartg.GET("", d.CartHandler.GetCart)
	cartg.POST("", d.CartHandler.AddToCart)
	cartg.PATCH("/:productId", d.CartHandler.UpdateQuantity)
	cartg.DELETE("/:productId", d.CartHandler.RemoveFromCart)

	v1.POST("/order", d.OrderHandler.PlaceOrder)
	v1.GET("/orders", d.OrderHandler.GetOrders)

	addresses := v1.Group("/addresses")
	addresses.GET("", d.AddressHandler.GetAddresses)
	addresses.POST("", d.AddressHandler.CreateAddress)
	addresses.PUT("/:id", d.AddressHandler.UpdateAddress)
	addresses.DELETE("/:id", d.AddressHandler.DeleteAddress)

	seller := v1.Group("/seller", authmw.RequireRole(models.RoleSeller, models.RoleAdmin))
	seller.POST("/products", d.ProductHandler.CreateProduct)
	seller.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	seller.DELETE("/products/:id", d.ProductHandler.DeleteProduct)

	admin := v1.Group("/admin", authmw.RequireRole(models.RoleAdmin))
	admin.POST("/categories", d.CategoryHandler.CreateCategory)
	admin.PUT("/categories/:id", d.CategoryHandler.UpdateCategory)
	admin.DELETE("/categories/:id", d.CategoryHandler.DeleteCategory)
	admin.PUT("/orders/:id/status", d.OrderHandler.UpdateOrderStatus)
}

// Package httpapi exposes the retail REST API on gin.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/retail-desk/internal/convert"
	"github.com/and161185/retail-desk/internal/model"
	"github.com/and161185/retail-desk/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth     service.AuthService
	products service.ProductService
	sellers  service.SellerService
	log      *zap.Logger
	origins  []string
}

// New constructs the HTTP server with injected services.
func New(auth service.AuthService, products service.ProductService, sellers service.SellerService, log *zap.Logger, corsOrigins []string) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, products: products, sellers: sellers, log: log, origins: corsOrigins}
}

// Router builds the gin engine with middleware and the /api routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recover(s.log), Logging(s.log), CORS(s.origins))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/login", s.login)
	auth.POST("/register", s.register)

	products := api.Group("/products", Auth(s.auth))
	products.GET("", s.listProducts)
	products.POST("", s.createProduct)
	products.GET("/categories", s.categories)
	products.GET("/:id", s.getProduct)
	products.PUT("/:id", s.updateProduct)
	products.DELETE("/:id", s.deleteProduct)
	products.PATCH("/:id/status", s.setStatus)

	sellers := api.Group("/local-seller", Auth(s.auth), RequireRole(model.RoleLocalSeller, model.RoleAdmin))
	sellers.GET("/wholesalers", s.activeWholesalers)
	sellers.GET("/wholesalers/:id/products", s.wholesalerProducts)
	sellers.GET("/:sellerId/subscribed-wholesalers", s.subscriptions)
	sellers.GET("/:sellerId/wholesalers/:wholesalerId/products/paged", s.mappedProducts)
	return r
}

// --- Auth ---

func (s *Server) login(c *gin.Context) {
	var req convert.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindFailed(c, err)
		return
	}
	res, err := s.auth.Login(c.Request.Context(), model.LoginRequest{Email: req.Email, Password: req.Password}, c.ClientIP())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToLoginResponse(res))
}

func (s *Server) register(c *gin.Context) {
	var req convert.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.bindFailed(c, err)
		return
	}
	if _, err := s.auth.Register(c.Request.Context(), convert.FromRegisterRequest(req)); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Products ---

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := strings.TrimSpace(c.Query(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, service.FieldErrors{key: {"must be an integer"}}
	}
	return n, nil
}

// wholesalerID reads ?wholesalerId, defaulting to the caller's own profile for wholesalers.
func wholesalerID(c *gin.Context, who model.Claims) (int64, error) {
	v := strings.TrimSpace(c.Query("wholesalerId"))
	if v == "" {
		if who.Role == model.RoleWholesaler {
			return who.ProfileID, nil
		}
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, service.FieldErrors{"wholesalerId": {"must be an integer"}}
	}
	return id, nil
}

func pathID(c *gin.Context) (int64, error) { return paramID(c, "id") }

// parseSort reads "field" or "field,asc|desc".
func parseSort(v string) (string, bool) {
	field, dir, _ := strings.Cut(strings.TrimSpace(v), ",")
	return strings.TrimSpace(field), strings.EqualFold(strings.TrimSpace(dir), "desc")
}

func (s *Server) listProducts(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	wid, err := wholesalerID(c, who)
	if err != nil {
		s.fail(c, err)
		return
	}
	page, err := queryInt(c, "page", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	size, err := queryInt(c, "size", 0)
	if err != nil {
		s.fail(c, err)
		return
	}
	sortBy, desc := parseSort(c.Query("sort"))
	f := model.ProductFilter{
		WholesalerID: wid,
		Search:       c.Query("search"),
		Category:     c.Query("category"),
		SortBy:       sortBy,
		SortDesc:     desc,
	}
	res, err := s.products.List(c.Request.Context(), f, model.PageRequest{Index: page, Size: size})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToPage(res, convert.ToProduct))
}

func (s *Server) getProduct(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	p, err := s.products.Get(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToProduct(*p))
}

// bindProduct decodes the body; ?wholesalerId fills a missing owner.
func (s *Server) bindProduct(c *gin.Context, who model.Claims) (model.Product, *int, bool) {
	var in convert.Product
	if err := c.ShouldBindJSON(&in); err != nil {
		s.bindFailed(c, err)
		return model.Product{}, nil, false
	}
	p, err := convert.FromProduct(in)
	if err != nil {
		s.fail(c, service.FieldErrors{"price": {"must be a number"}})
		return model.Product{}, nil, false
	}
	if p.WholesalerID == 0 {
		wid, err := wholesalerID(c, who)
		if err != nil {
			s.fail(c, err)
			return model.Product{}, nil, false
		}
		p.WholesalerID = wid
	}
	return p, in.Version, true
}

func (s *Server) createProduct(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	p, _, ok := s.bindProduct(c, who)
	if !ok {
		return
	}
	out, err := s.products.Create(c.Request.Context(), who, p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, convert.ToProduct(*out))
}

func (s *Server) updateProduct(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	p, version, ok := s.bindProduct(c, who)
	if !ok {
		return
	}
	out, err := s.products.Update(c.Request.Context(), who, id, p, version)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToProduct(*out))
}

func (s *Server) deleteProduct(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.products.Delete(c.Request.Context(), who, id); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.Message{Message: "Product deleted successfully"})
}

func (s *Server) setStatus(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	id, err := pathID(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	active, err := strconv.ParseBool(c.Query("status"))
	if err != nil {
		s.fail(c, service.FieldErrors{"status": {"must be true or false"}})
		return
	}
	out, err := s.products.SetStatus(c.Request.Context(), who, id, active)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToProduct(*out))
}

func (s *Server) categories(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	wid, err := wholesalerID(c, who)
	if err != nil {
		s.fail(c, err)
		return
	}
	cats, err := s.products.Categories(c.Request.Context(), wid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cats)
}

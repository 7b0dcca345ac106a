package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/and161185/retail-desk/internal/convert"
	"github.com/and161185/retail-desk/internal/errs"
	"github.com/and161185/retail-desk/internal/model"
)

// --- Local sellers ---

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errs.ErrNotFound
	}
	return id, nil
}

func (s *Server) activeWholesalers(c *gin.Context) {
	ws, err := s.sellers.Wholesalers(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToList(ws, convert.ToWholesaler))
}

func (s *Server) wholesalerProducts(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		s.fail(c, err)
		return
	}
	ps, err := s.sellers.WholesalerProducts(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToList(ps, convert.ToProduct))
}

func (s *Server) subscriptions(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	sid, err := paramID(c, "sellerId")
	if err != nil {
		s.fail(c, err)
		return
	}
	ws, err := s.sellers.Subscriptions(c.Request.Context(), who, sid)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToList(ws, convert.ToWholesaler))
}

func (s *Server) mappedProducts(c *gin.Context) {
	who, _ := ClaimsFrom(c)
	sid, err := paramID(c, "sellerId")
	if err != nil {
		s.fail(c, err)
		return
	}
	wid, err := paramID(c, "wholesalerId")
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
	f := model.ProductFilter{WholesalerID: wid, SortBy: sortBy, SortDesc: desc}
	res, err := s.sellers.MappedProducts(c.Request.Context(), who, sid, f, model.PageRequest{Index: page, Size: size})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, convert.ToPage(res, convert.ToProduct))
}

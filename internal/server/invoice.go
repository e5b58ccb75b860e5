package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/cashback/internal/invoice/domain"
)

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	s.updateInvoiceStatus(c, s.invoiceSvc.MarkPaid)
}

func (s *Server) MarkInvoiceFailed(c *gin.Context) {
	s.updateInvoiceStatus(c, s.invoiceSvc.MarkFailed)
}

func (s *Server) VoidInvoice(c *gin.Context) {
	s.updateInvoiceStatus(c, s.invoiceSvc.Void)
}

func (s *Server) updateInvoiceStatus(c *gin.Context, fn func(context.Context, snowflake.ID, time.Time) (invoicedomain.Invoice, error)) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := fn(c.Request.Context(), id, time.Time{})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

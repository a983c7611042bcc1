package room

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/now", h.getNow)
	r.GET("/history", h.getHistory)
}

func (h *Handler) getNow(c *gin.Context) {
	now, err := h.service.Now(c.Request.Context())
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, now)
}

type HistoryQuery struct {
	Limit int `form:"limit"`
}

func (q HistoryQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Limit, validation.Min(0), validation.Max(MaxHistory)),
	)
}

func (h *Handler) getHistory(c *gin.Context) {
	var q HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := q.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.service.History(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

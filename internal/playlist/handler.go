package playlist

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
	"github.com/u-wave/u-wave-core-sub000/pkg/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	playlists := r.Group("/playlists")
	{
		playlists.POST("", h.create)
		playlists.GET("/:id", h.get)
		playlists.PUT("/:id/activate", h.activate)
		playlists.POST("/:id/media", h.addMedia)
	}
}

type CreatePlaylistRequest struct {
	Name string `json:"name"`
}

func (r CreatePlaylistRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 128)),
	)
}

func (h *Handler) create(c *gin.Context) {
	var req CreatePlaylistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	playlist, err := h.service.Create(c.Request.Context(), c.GetString("user_id"), req.Name)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, playlist)
}

func (h *Handler) get(c *gin.Context) {
	playlist, err := h.service.Owned(c.Request.Context(), c.GetString("user_id"), c.Param("id"))
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, playlist)
}

func (h *Handler) activate(c *gin.Context) {
	if err := h.service.Activate(c.Request.Context(), c.GetString("user_id"), c.Param("id")); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type AddMediaRequest struct {
	SourceType string          `json:"sourceType"`
	SourceID   string          `json:"sourceID"`
	SourceData json.RawMessage `json:"sourceData"`
	Artist     string          `json:"artist"`
	Title      string          `json:"title"`
	Start      int             `json:"start"`
	End        int             `json:"end"`
}

func (r AddMediaRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SourceType, validation.Required, validation.Length(1, 32)),
		validation.Field(&r.SourceID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Artist, validation.Required),
		validation.Field(&r.Title, validation.Required),
		validation.Field(&r.Start, validation.Min(0)),
		validation.Field(&r.End, validation.Required, validation.Min(r.Start+1)),
	)
}

func (h *Handler) addMedia(c *gin.Context) {
	var req AddMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.service.AppendTrack(c.Request.Context(), c.GetString("user_id"), c.Param("id"), models.MediaSnapshot{
		Artist:     req.Artist,
		Title:      req.Title,
		Start:      req.Start,
		End:        req.End,
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		SourceData: req.SourceData,
	})
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

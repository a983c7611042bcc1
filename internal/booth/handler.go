package booth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/u-wave/u-wave-core-sub000/pkg/errs"
)

type Handler struct {
	booth *Booth
}

func NewHandler(booth *Booth) *Handler {
	return &Handler{booth: booth}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	booth := r.Group("/booth")
	{
		booth.GET("", h.getBooth)
		booth.POST("/skip", h.skip)
		booth.POST("/replace", h.replace)
		booth.PUT("/leave", h.leave)
		booth.PUT("/:historyID/vote", h.vote)
		booth.POST("/favorite", h.favorite)
	}
}

func (h *Handler) getBooth(c *gin.Context) {
	ctx := c.Request.Context()
	play, err := h.booth.CurrentEntry(ctx)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	if play == nil {
		c.JSON(http.StatusOK, gin.H{"booth": nil})
		return
	}

	stats, err := h.booth.CurrentVoteStats(ctx)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booth": play, "stats": stats})
}

type SkipRequest struct {
	UserID string `json:"userID"`
	Reason string `json:"reason"`
	Remove bool   `json:"remove"`
}

func (r SkipRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Reason, validation.Length(0, 256)),
	)
}

func (h *Handler) skip(c *gin.Context) {
	var req SkipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actorID := c.GetString("user_id")
	userID := req.UserID
	if userID == "" {
		userID = actorID
	}

	if err := h.booth.Skip(c.Request.Context(), actorID, userID, req.Reason, req.Remove); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type ReplaceRequest struct {
	UserID string `json:"userID"`
}

func (r ReplaceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
	)
}

func (h *Handler) replace(c *gin.Context) {
	var req ReplaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.booth.Replace(c.Request.Context(), c.GetString("user_id"), req.UserID); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type LeaveRequest struct {
	UserID    string `json:"userID"`
	AutoLeave bool   `json:"autoLeave"`
}

func (h *Handler) leave(c *gin.Context) {
	var req LeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actorID := c.GetString("user_id")
	userID := req.UserID
	if userID == "" {
		userID = actorID
	}

	set, err := h.booth.SetRemoveAfterCurrentPlay(c.Request.Context(), actorID, userID, req.AutoLeave)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"autoLeave": set})
}

type VoteRequest struct {
	Direction int `json:"direction"`
}

func (r VoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Direction, validation.Required, validation.In(1, -1)),
	)
}

func (h *Handler) vote(c *gin.Context) {
	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.booth.Vote(c.Request.Context(), c.GetString("user_id"), c.Param("historyID"), req.Direction); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type FavoriteRequest struct {
	HistoryID  string `json:"historyID"`
	PlaylistID string `json:"playlistID"`
}

func (r FavoriteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.HistoryID, validation.Required),
		validation.Field(&r.PlaylistID, validation.Required),
	)
}

func (h *Handler) favorite(c *gin.Context) {
	var req FavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.booth.Favorite(c.Request.Context(), c.GetString("user_id"), req.HistoryID, req.PlaylistID)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": []interface{}{item}, "playlistID": req.PlaylistID})
}

package waitlist

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
	waitlist := r.Group("/waitlist")
	{
		waitlist.GET("", h.getWaitlist)
		waitlist.POST("", h.addUser)
		waitlist.DELETE("", h.clear)
		waitlist.DELETE("/:id", h.removeUser)
		waitlist.PUT("/move", h.moveUser)
		waitlist.PUT("/lock", h.lock)
		waitlist.PUT("/cycle", h.cycle)
	}
}

func (h *Handler) getWaitlist(c *gin.Context) {
	ctx := c.Request.Context()
	ids, err := h.service.UserIDs(ctx)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	locked, err := h.service.IsLocked(ctx)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	cycle, err := h.service.IsCycleEnabled(ctx)
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"waitlist": ids, "locked": locked, "cycle": cycle})
}

type AddUserRequest struct {
	UserID   string `json:"userID"`
	Position *int   `json:"position"`
}

func (r AddUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Position, validation.Min(0)),
	)
}

func (h *Handler) addUser(c *gin.Context) {
	var req AddUserRequest
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

	err := h.service.AddUser(c.Request.Context(), userID, AddOptions{
		ModeratorID: actorID,
		Position:    req.Position,
	})
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWaitlist(c)
}

func (h *Handler) removeUser(c *gin.Context) {
	if err := h.service.RemoveUser(c.Request.Context(), c.Param("id"), c.GetString("user_id")); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWaitlist(c)
}

type MoveUserRequest struct {
	UserID   string `json:"userID"`
	Position int    `json:"position"`
}

func (r MoveUserRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Position, validation.Min(0)),
	)
}

func (h *Handler) moveUser(c *gin.Context) {
	var req MoveUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.MoveUser(c.Request.Context(), req.UserID, req.Position, c.GetString("user_id")); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	h.respondWaitlist(c)
}

func (h *Handler) clear(c *gin.Context) {
	if err := h.service.Clear(c.Request.Context(), c.GetString("user_id")); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"waitlist": []string{}})
}

type LockRequest struct {
	Lock bool `json:"lock"`
}

func (h *Handler) lock(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	moderatorID := c.GetString("user_id")
	var err error
	if req.Lock {
		err = h.service.Lock(ctx, moderatorID)
	} else {
		err = h.service.Unlock(ctx, moderatorID)
	}
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"locked": req.Lock})
}

type CycleRequest struct {
	Cycle bool `json:"cycle"`
}

func (h *Handler) cycle(c *gin.Context) {
	var req CycleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetCycle(c.Request.Context(), c.GetString("user_id"), req.Cycle); err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cycle": req.Cycle})
}

func (h *Handler) respondWaitlist(c *gin.Context) {
	ids, err := h.service.UserIDs(c.Request.Context())
	if err != nil {
		c.JSON(errs.Status(err), gin.H{"error": err.Error()})
		return
	}
	if ids == nil {
		ids = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"waitlist": ids})
}

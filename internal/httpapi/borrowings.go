package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mediaLending/internal/apperr"
	"mediaLending/internal/lending"
	"mediaLending/models"
)

type createBorrowingRequest struct {
	CopyID   int64      `json:"copyId" binding:"required,gt=0"`
	DueDate  *time.Time `json:"dueDate"`
	Comments *string    `json:"comments" binding:"omitempty,max=1000"`
}

type adminCreateBorrowingRequest struct {
	CopyID   int64      `json:"copyId" binding:"required,gt=0"`
	UserID   int64      `json:"userId" binding:"required,gt=0"`
	DueDate  *time.Time `json:"dueDate"`
	Comments *string    `json:"comments" binding:"omitempty,max=1000"`
}

type updateBorrowingRequest struct {
	Status   *models.BorrowingStatus `json:"status" binding:"omitempty,borrowingstatus"`
	DueDate  *time.Time              `json:"dueDate"`
	Comments *string                 `json:"comments" binding:"omitempty,max=1000"`
	Renew    bool                    `json:"renew"`
}

type listBorrowingsQuery struct {
	UserID     *int64  `form:"userId" binding:"omitempty,gt=0"`
	ResourceID *int64  `form:"resourceId" binding:"omitempty,gt=0"`
	Status     *string `form:"status" binding:"omitempty,borrowingstatus"`
	Search     string  `form:"search"`
	Skip       int     `form:"skip" binding:"omitempty,min=0"`
	Take       int     `form:"take" binding:"omitempty,min=0"`
}

type statusQuery struct {
	Status *string `form:"status" binding:"omitempty,borrowingstatus"`
}

func borrowingStatus(s *string) *models.BorrowingStatus {
	if s == nil {
		return nil
	}
	st := models.BorrowingStatus(*s)
	return &st
}

// idParam parses the :id path segment.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, apperr.BadRequest("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, bindError(err))
		return false
	}
	return true
}

func bindQuery(c *gin.Context, dst any) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		respondError(c, bindError(err))
		return false
	}
	return true
}

func (h *handler) createBorrowing(c *gin.Context) {
	var req createBorrowingRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.Lending.Create(c.Request.Context(), principal(c).UserID, lending.CreateInput{
		CopyID:   req.CopyID,
		DueDate:  req.DueDate,
		Comments: req.Comments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *handler) adminCreateBorrowing(c *gin.Context) {
	var req adminCreateBorrowingRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.Lending.CreateByAdmin(c.Request.Context(), lending.CreateByAdminInput{
		UserID:   req.UserID,
		CopyID:   req.CopyID,
		DueDate:  req.DueDate,
		Comments: req.Comments,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *handler) listBorrowings(c *gin.Context) {
	var q listBorrowingsQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.svc.Lending.List(c.Request.Context(), lending.ListFilter{
		UserID:     q.UserID,
		ResourceID: q.ResourceID,
		Status:     borrowingStatus(q.Status),
		Search:     q.Search,
		Skip:       q.Skip,
		Take:       q.Take,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) myBorrowings(c *gin.Context) {
	var q statusQuery
	if !bindQuery(c, &q) {
		return
	}
	items, err := h.svc.Lending.ListMine(c.Request.Context(), principal(c).UserID, borrowingStatus(q.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *handler) getBorrowing(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	b, err := h.svc.Lending.Get(c.Request.Context(), id, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) updateBorrowing(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateBorrowingRequest
	if !bindJSON(c, &req) {
		return
	}
	b, err := h.svc.Lending.Update(c.Request.Context(), id, lending.UpdateInput{
		Renew:    req.Renew,
		Status:   req.Status,
		DueDate:  req.DueDate,
		Comments: req.Comments,
	}, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) returnBorrowing(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	b, err := h.svc.Lending.Return(c.Request.Context(), id, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *handler) checkOverdue(c *gin.Context) {
	n, err := h.svc.Lending.CheckOverdue(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

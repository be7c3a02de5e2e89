package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaLending/internal/catalog"
	"mediaLending/models"
)

type createResourceRequest struct {
	Title         string              `json:"title" binding:"required,max=500"`
	Type          models.ResourceType `json:"type" binding:"required,resourcetype"`
	Author        *string             `json:"author" binding:"omitempty,max=300"`
	Publisher     *string             `json:"publisher" binding:"omitempty,max=300"`
	Year          *int                `json:"year" binding:"omitempty,gte=0,lte=9999"`
	ISBN          *string             `json:"isbn" binding:"omitempty,max=20"`
	Description   *string             `json:"description"`
	Genre         *string             `json:"genre" binding:"omitempty,max=100"`
	CoverImageURL *string             `json:"coverImageUrl" binding:"omitempty,url"`
}

type updateResourceRequest struct {
	Title         *string              `json:"title" binding:"omitempty,max=500"`
	Type          *models.ResourceType `json:"type" binding:"omitempty,resourcetype"`
	Author        *string              `json:"author" binding:"omitempty,max=300"`
	Publisher     *string              `json:"publisher" binding:"omitempty,max=300"`
	Year          *int                 `json:"year" binding:"omitempty,gte=0,lte=9999"`
	ISBN          *string              `json:"isbn" binding:"omitempty,max=20"`
	Description   *string              `json:"description"`
	Genre         *string              `json:"genre" binding:"omitempty,max=100"`
	CoverImageURL *string              `json:"coverImageUrl"`
}

type listResourcesQuery struct {
	Type          *string `form:"type" binding:"omitempty,resourcetype"`
	Search        string  `form:"search"`
	AvailableOnly bool    `form:"available"`
	Skip          int     `form:"skip" binding:"omitempty,min=0"`
	Take          int     `form:"take" binding:"omitempty,min=0"`
}

type copyRequest struct {
	Condition string `json:"condition" binding:"max=200"`
}

type updateCopyRequest struct {
	Condition string `json:"condition" binding:"required,max=200"`
}

type createReviewRequest struct {
	Rating  int     `json:"rating" binding:"required,min=1,max=5"`
	Comment *string `json:"comment" binding:"omitempty,max=2000"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating" binding:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" binding:"omitempty,max=2000"`
}

func (h *handler) listResources(c *gin.Context) {
	var q listResourcesQuery
	if !bindQuery(c, &q) {
		return
	}
	f := catalog.ResourceFilter{Search: q.Search, AvailableOnly: q.AvailableOnly, Skip: q.Skip, Take: q.Take}
	if q.Type != nil {
		t := models.ResourceType(*q.Type)
		f.Type = &t
	}
	page, err := h.svc.Catalog.ListResources(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) getResource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	res, err := h.svc.Catalog.GetResource(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) createResource(c *gin.Context) {
	var req createResourceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Catalog.CreateResource(c.Request.Context(), catalog.ResourceInput{
		Title:         req.Title,
		Type:          req.Type,
		Author:        req.Author,
		Publisher:     req.Publisher,
		Year:          req.Year,
		ISBN:          req.ISBN,
		Description:   req.Description,
		Genre:         req.Genre,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handler) updateResource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateResourceRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Catalog.UpdateResource(c.Request.Context(), id, catalog.ResourcePatch{
		Title:         req.Title,
		Type:          req.Type,
		Author:        req.Author,
		Publisher:     req.Publisher,
		Year:          req.Year,
		ISBN:          req.ISBN,
		Description:   req.Description,
		Genre:         req.Genre,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) deleteResource(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteResource(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondNoContent(c)
}

func (h *handler) listCopies(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	copies, err := h.svc.Catalog.ListCopies(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, copies)
}

func (h *handler) createCopy(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req copyRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	cp, err := h.svc.Catalog.CreateCopy(c.Request.Context(), id, req.Condition)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cp)
}

func (h *handler) updateCopy(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateCopyRequest
	if !bindJSON(c, &req) {
		return
	}
	cp, err := h.svc.Catalog.UpdateCopy(c.Request.Context(), id, req.Condition)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

func (h *handler) deleteCopy(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteCopy(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondNoContent(c)
}

func (h *handler) listReviews(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	reviews, err := h.svc.Catalog.ListReviews(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

func (h *handler) createReview(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req createReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	rv, err := h.svc.Catalog.CreateReview(c.Request.Context(), principal(c), id, req.Rating, req.Comment)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rv)
}

func (h *handler) updateReview(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req updateReviewRequest
	if !bindJSON(c, &req) {
		return
	}
	rv, err := h.svc.Catalog.UpdateReview(c.Request.Context(), id, catalog.ReviewPatch{Rating: req.Rating, Comment: req.Comment}, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rv)
}

func (h *handler) deleteReview(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.svc.Catalog.DeleteReview(c.Request.Context(), id, principal(c)); err != nil {
		respondError(c, err)
		return
	}
	respondNoContent(c)
}

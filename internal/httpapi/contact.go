package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaLending/internal/contact"
	"mediaLending/models"
)

type contactRequest struct {
	Name    string `json:"name" binding:"required,max=200"`
	Email   string `json:"email" binding:"required,email"`
	Subject string `json:"subject" binding:"required,max=300"`
	Message string `json:"message" binding:"required,max=5000"`
}

type contactStatusRequest struct {
	Status models.ContactStatus `json:"status" binding:"required,contactstatus"`
}

type listContactsQuery struct {
	Status *string `form:"status" binding:"omitempty,contactstatus"`
	Skip   int     `form:"skip" binding:"omitempty,min=0"`
	Take   int     `form:"take" binding:"omitempty,min=0"`
}

func (h *handler) createContact(c *gin.Context) {
	var req contactRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.Contact.Create(c.Request.Context(), contact.Input{
		Name:    req.Name,
		Email:   req.Email,
		Subject: req.Subject,
		Message: req.Message,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *handler) listContacts(c *gin.Context) {
	var q listContactsQuery
	if !bindQuery(c, &q) {
		return
	}
	var status *models.ContactStatus
	if q.Status != nil {
		st := models.ContactStatus(*q.Status)
		status = &st
	}
	page, err := h.svc.Contact.List(c.Request.Context(), status, q.Skip, q.Take)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) updateContact(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req contactStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.svc.Contact.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) deleteContact(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.svc.Contact.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respondNoContent(c)
}

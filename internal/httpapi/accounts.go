package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mediaLending/internal/accounts"
	"mediaLending/models"
)

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,max=100"`
	LastName  *string `json:"lastName" binding:"omitempty,max=100"`
}

type roleRequest struct {
	Role models.Role `json:"role" binding:"required,role"`
}

type listUsersQuery struct {
	Search string  `form:"search"`
	Role   *string `form:"role" binding:"omitempty,role"`
	Skip   int     `form:"skip" binding:"omitempty,min=0"`
	Take   int     `form:"take" binding:"omitempty,min=0"`
}

func (h *handler) register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.Accounts.Register(c.Request.Context(), accounts.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *handler) login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.svc.Accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handler) me(c *gin.Context) {
	u, err := h.svc.Accounts.Me(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) listUsers(c *gin.Context) {
	var q listUsersQuery
	if !bindQuery(c, &q) {
		return
	}
	f := accounts.UserFilter{Search: q.Search, Skip: q.Skip, Take: q.Take}
	if q.Role != nil {
		role := models.Role(*q.Role)
		f.Role = &role
	}
	page, err := h.svc.Accounts.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *handler) getUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	u, err := h.svc.Accounts.Get(c.Request.Context(), id, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) updateProfile(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.Accounts.UpdateProfile(c.Request.Context(), principal(c), accounts.ProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) setRole(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req roleRequest
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.svc.Accounts.SetRole(c.Request.Context(), id, req.Role, principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *handler) unlockUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	u, err := h.svc.Accounts.Unlock(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

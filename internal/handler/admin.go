package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"device-gate/internal/service"
)

// requireAdmin is called first by every admin handler. It writes the error
// response itself and reports whether the handler may continue.
func (h *Handlers) requireAdmin(c *gin.Context) bool {
	if _, err := h.services.AdminAuthorizer.AuthorizeAdmin(c.Request.Context(), c.GetHeader(adminHeader)); err != nil {
		newErrorResponse(c, err)
		return false
	}
	return true
}

func (h *Handlers) listUsers(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	users, err := h.services.UserService.ListUsers(c.Request.Context())
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handlers) updateUser(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input service.UserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.services.UserService.UpdateUser(c.Request.Context(), id, input); err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) deleteUser(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.services.UserService.DeleteUser(c.Request.Context(), id); err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) listChannels(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	channels, err := h.services.ChannelService.ListChannels(c.Request.Context())
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, channels)
}

type channelRequest struct {
	ChannelID  flexString `json:"channel_id"`
	ChannelURL string     `json:"channel_url"`
}

func (h *Handlers) addChannel(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	channel, err := h.services.ChannelService.AddChannel(c.Request.Context(), service.ChannelInput{
		ChannelID:  string(req.ChannelID),
		ChannelURL: req.ChannelURL,
	})
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel})
}

func (h *Handlers) deleteChannel(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.services.ChannelService.DeleteChannel(c.Request.Context(), id); err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type resolveRequest struct {
	Username string `json:"username"`
}

func (h *Handlers) resolveChannel(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	info, err := h.services.ChannelService.ResolveChannel(c.Request.Context(), req.Username)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": info.ID, "title": info.Title})
}

func (h *Handlers) listOrigins(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	origins, err := h.services.OriginService.ListOrigins(c.Request.Context())
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, origins)
}

type originRequest struct {
	OriginURL string `json:"origin_url"`
}

func (h *Handlers) addOrigin(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	var req originRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.services.OriginService.AddOrigin(c.Request.Context(), req.OriginURL); err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handlers) deleteOrigin(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.services.OriginService.DeleteOrigin(c.Request.Context(), id); err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

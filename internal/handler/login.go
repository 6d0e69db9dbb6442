package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"device-gate/internal/service"
	"device-gate/pkg/models"
)

const initDataHeader = "X-Telegram-Init-Data"

type loginRequest struct {
	TelegramID flexString `json:"telegram_id"`
	DeviceID   flexString `json:"device_id"`
	Name       string     `json:"name"`
	Username   string     `json:"username"`
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	PhotoURL   string     `json:"photo_url"`
	AuthDate   flexString `json:"auth_date"`
	InitData   string     `json:"init_data"`
}

func (r loginRequest) profile() models.Profile {
	authDate, _ := strconv.ParseInt(strings.TrimSpace(string(r.AuthDate)), 10, 64)
	return models.Profile{
		Name:      r.Name,
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		PhotoURL:  r.PhotoURL,
		AuthDate:  authDate,
	}
}

func (h *Handlers) secureLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	attempt := service.LoginAttempt{
		TelegramID: string(req.TelegramID),
		DeviceID:   string(req.DeviceID),
		Profile:    req.profile(),
		IPAddress:  c.ClientIP(),
	}

	if h.opts.InitData.Required {
		raw := req.InitData
		if raw == "" {
			raw = c.GetHeader(initDataHeader)
		}
		if !h.checkInitData(c, raw, &attempt) {
			return
		}
	}

	decision, err := h.services.IdentityService.EvaluateLogin(c.Request.Context(), attempt)
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

// checkInitData verifies the Mini App signature and that it was issued to
// the telegram id being logged in. Profile fields missing from the body
// are taken from the signed data.
func (h *Handlers) checkInitData(c *gin.Context, raw string, attempt *service.LoginAttempt) bool {
	if h.opts.BotToken == "" {
		log.Error("init data check is required but telegram token is empty")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "init_data validation is not configured"})
		return false
	}
	if raw == "" {
		badRequest(c, "missing init_data")
		return false
	}
	if err := initdata.Validate(raw, h.opts.BotToken, h.opts.InitData.ExpIn); err != nil {
		log.WithError(err).WithField("telegram_id", attempt.TelegramID).Warn("init data rejected")
		badRequest(c, "invalid init_data")
		return false
	}
	parsed, err := initdata.Parse(raw)
	if err != nil {
		badRequest(c, "invalid init_data format")
		return false
	}
	if strconv.FormatInt(parsed.User.ID, 10) != strings.TrimSpace(attempt.TelegramID) {
		badRequest(c, "init_data does not belong to telegram_id")
		return false
	}

	p := &attempt.Profile
	if p.Username == "" {
		p.Username = parsed.User.Username
	}
	if p.FirstName == "" {
		p.FirstName = parsed.User.FirstName
	}
	if p.LastName == "" {
		p.LastName = parsed.User.LastName
	}
	if p.PhotoURL == "" {
		p.PhotoURL = parsed.User.PhotoURL
	}
	if p.Name == "" {
		p.Name = strings.TrimSpace(parsed.User.FirstName + " " + parsed.User.LastName)
	}
	return true
}

type verifyRequest struct {
	TelegramID flexString `json:"telegram_id"`
}

func (h *Handlers) verifyChannels(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.services.MembershipService.VerifyMembership(c.Request.Context(), string(req.TelegramID))
	if err != nil {
		newErrorResponse(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

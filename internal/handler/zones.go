package handler

import (
	"github.com/gin-gonic/gin"

	"subzone/internal/model"
)

// ZoneHandler serves what describes the managed zone and the plans sold
// on it.
type ZoneHandler struct {
	catalog  CatalogService
	bot      BotStatus
	zone     string
	provider string
}

func NewZoneHandler(catalog CatalogService, bot BotStatus, zone, provider string) *ZoneHandler {
	return &ZoneHandler{catalog: catalog, bot: bot, zone: zone, provider: provider}
}

func (h *ZoneHandler) Config(c *gin.Context) (any, error) {
	return h.catalog.PublicConfig(c.Request.Context())
}

func (h *ZoneHandler) Plans(c *gin.Context) (any, error) {
	plans, err := h.catalog.Plans(c.Request.Context())
	if err != nil {
		return nil, err
	}
	return gin.H{"plans": plans}, nil
}

// TelegramStatus is the public part of the bot status.
func (h *ZoneHandler) TelegramStatus(c *gin.Context) (any, error) {
	st := h.bot.Status()
	return gin.H{"enabled": st.Running, "bot_username": st.Username}, nil
}

// Info is the admin view of the zone.
func (h *ZoneHandler) Info(c *gin.Context) (any, error) {
	return gin.H{
		"domain":       h.zone,
		"provider":     h.provider,
		"record_types": model.RecordTypes,
	}, nil
}

func (h *ZoneHandler) BotStatus(c *gin.Context) (any, error) {
	return h.bot.Status(), nil
}

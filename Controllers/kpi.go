package Controllers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"Kestrel/Models"
)

// KPIHandler serves the read-only dashboard surface. All rows it returns
// are produced by the rollup engine; nothing here writes.
type KPIHandler struct {
	DB *gorm.DB
}

func NewKPIHandler(db *gorm.DB) *KPIHandler {
	return &KPIHandler{DB: db}
}

// GetKPICards returns every materialized card for the caller's organization.
func (h *KPIHandler) GetKPICards(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	var cards []Models.KPICard
	result := h.DB.Where("organization_id = ?", user.OrganizationID).
		Order("kpi_key ASC").
		Find(&cards)
	if result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch KPI cards",
			"error":   result.Error.Error(),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "KPI cards retrieved successfully",
		"data":    cards,
	})
}

// GetEventsFeed returns recent rollup events, newest first.
func (h *KPIHandler) GetEventsFeed(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(Models.User)
	if !ok {
		return c.Status(http.StatusUnauthorized).JSON(fiber.Map{
			"message": "Not logged in",
		})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var items []Models.EventFeedItem
	result := h.DB.Where("organization_id = ?", user.OrganizationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items)
	if result.Error != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{
			"message": "Failed to fetch events feed",
			"error":   result.Error.Error(),
		})
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "Events retrieved successfully",
		"data":    items,
	})
}

package controllers

import (
	"github.com/gin-gonic/gin"

	"coinscope/internal/catalog"
	"coinscope/pkg/utils"
)

type PlanController struct {
	catalog *catalog.Catalog
}

func NewPlanController(cat *catalog.Catalog) *PlanController {
	return &PlanController{catalog: cat}
}

// ListPlans godoc
// @Summary List subscription plans
// @Tags Plans
// @Produce json
// @Success 200 {object} utils.APIResponse
// @Router /api/plans [get]
func (p *PlanController) ListPlans(c *gin.Context) {
	utils.RespondSuccess(c, p.catalog.ListPlans(), "Plans retrieved")
}

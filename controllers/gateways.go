package controllers

import (
	"academy_backoffice/services/gateways/click"
	"academy_backoffice/services/gateways/payme"
	"academy_backoffice/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

// ClickController receives Click prepare/complete callbacks.
type ClickController struct {
	service *click.Service
}

func NewClickController(service *click.Service) *ClickController {
	return &ClickController{service: service}
}

// Merchant POST /api/click/merchant
// Click posts form data; JSON bodies are accepted too. Every reply is HTTP 200.
func (cc *ClickController) Merchant(c *fiber.Ctx) error {
	var req click.Request
	if err := c.BodyParser(&req); err != nil {
		logrus.WithError(err).Warn("Click callback body rejected")
		return c.JSON(click.Response{Error: click.CodeBadRequest, ErrorNote: "Error in request from click"})
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return c.JSON(click.Response{
			ClickTransID:    req.ClickTransID,
			MerchantTransID: req.MerchantTransID,
			Error:           click.CodeBadRequest,
			ErrorNote:       "Error in request from click",
		})
	}
	return c.JSON(cc.service.Handle(c.UserContext(), req))
}

// PaymeController receives Payme JSON-RPC calls.
type PaymeController struct {
	service *payme.Service
}

func NewPaymeController(service *payme.Service) *PaymeController {
	return &PaymeController{service: service}
}

// Merchant POST /api/payme/merchant
func (pc *PaymeController) Merchant(c *fiber.Ctx) error {
	return c.JSON(pc.service.Handle(c.UserContext(), c.Get(fiber.HeaderAuthorization), c.Body()))
}

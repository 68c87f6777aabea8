package controller

import (
	"strconv"

	"ai-todo-agent-be/internal/dto"
	"ai-todo-agent-be/internal/pkg/serverutils"
	"ai-todo-agent-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IAgentController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	SendMessage(ctx *fiber.Ctx) error
	CreateConversation(ctx *fiber.Ctx) error
	ListConversations(ctx *fiber.Ctx) error
	GetMessages(ctx *fiber.Ctx) error
}

type agentController struct {
	service service.IAgentService
}

func NewAgentController(service service.IAgentService) IAgentController {
	return &agentController{service: service}
}

func (c *agentController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/agent/v1")
	h.Use(auth)
	h.Post("chat", c.SendMessage)
	h.Post("conversations", c.CreateConversation)
	h.Get("conversations", c.ListConversations)
	h.Get("conversations/:id/messages", c.GetMessages)
}

func (c *agentController) SendMessage(ctx *fiber.Ctx) error {
	userId := serverutils.UserID(ctx)

	var req dto.SendAgentMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, info, err := c.service.SendMessage(ctx.UserContext(), userId, &req)
	setRateLimitHeaders(ctx, info)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *agentController) CreateConversation(ctx *fiber.Ctx) error {
	userId := serverutils.UserID(ctx)

	var req dto.CreateConversationRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CreateConversation(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.BaseResponse[*dto.ConversationResponse]{
		Success: true,
		Code:    fiber.StatusCreated,
		Message: "Success create conversation",
		Data:    res,
	})
}

func (c *agentController) ListConversations(ctx *fiber.Ctx) error {
	userId := serverutils.UserID(ctx)
	limit := ctx.QueryInt("limit", 0)
	offset := ctx.QueryInt("offset", 0)

	res, err := c.service.ListConversations(ctx.UserContext(), userId, limit, offset)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get conversations", res))
}

func (c *agentController) GetMessages(ctx *fiber.Ctx) error {
	userId := serverutils.UserID(ctx)

	res, err := c.service.GetMessages(ctx.UserContext(), userId, ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success get messages", res))
}

func setRateLimitHeaders(ctx *fiber.Ctx, info dto.RateLimitInfo) {
	if info.Limit == 0 {
		return
	}
	ctx.Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
	ctx.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	ctx.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetAt.Unix(), 10))
}

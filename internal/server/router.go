package server

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/kataras/iris/v12"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/example/sailchat/internal/auth"
	"github.com/example/sailchat/internal/config"
	"github.com/example/sailchat/internal/datamodels/chat"
	"github.com/example/sailchat/internal/middleware"
	"github.com/example/sailchat/internal/monitor"
	"github.com/example/sailchat/internal/service"
	"github.com/example/sailchat/internal/snapshot"
)

// Deps HTTP 层依赖
type Deps struct {
	Chat     *service.ChatService
	Resolver *snapshot.Resolver
	Auth     *auth.Authenticator
	Limiter  *middleware.UserLimiter
	Monitor  *monitor.Monitor
	Gatherer prometheus.Gatherer
}

type handler struct {
	chat     *service.ChatService
	resolver *snapshot.Resolver
}

// RegisterRoutes 注册所有 HTTP 路由
func RegisterRoutes(app *iris.Application, d Deps) {
	if d.Monitor == nil {
		d.Monitor = monitor.GetMonitor()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if d.Limiter == nil {
		d.Limiter = middleware.NewUserLimiter(config.RateLimitConfig{})
	}
	h := &handler{chat: d.Chat, resolver: d.Resolver}
	limit := middleware.RateLimitMiddleware(d.Limiter)

	app.Get("/metrics", iris.FromStd(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))

	api := app.Party("/api")

	// 健康检查
	api.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{
			"code": 0,
			"msg":  "ok",
		})
	})

	api.Get("/monitor/stats", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": d.Monitor.GetStats()})
	})

	// 需要登录的接口
	chatAPI := api.Party("/chat", middleware.Auth(d.Auth))

	chatAPI.Get("/threads", h.listThreads)
	chatAPI.Post("/threads", limit, h.createThread)
	chatAPI.Get("/threads/{id:string}", h.getThread)
	chatAPI.Delete("/threads/{id:string}", h.deleteThread)
	chatAPI.Post("/threads/{id:string}/archive", h.setArchived(true))
	chatAPI.Post("/threads/{id:string}/unarchive", h.setArchived(false))
	chatAPI.Post("/threads/{id:string}/read", h.markRead)
	chatAPI.Get("/threads/{id:string}/messages", h.listMessages)
	chatAPI.Post("/threads/{id:string}/messages", limit, h.postMessage)
	chatAPI.Delete("/threads/{id:string}/messages/{mid:string}", h.deleteMessage)

	chatAPI.Post("/listings/sync-availability", h.syncAvailability)
	chatAPI.Get("/listings/status", h.listingStatus)
	chatAPI.Post("/listings/status", h.listingStatus)
}

// messageInput 发送消息请求体
type messageInput struct {
	Body            string            `json:"body"`
	Attachments     []chat.Attachment `json:"attachments"`
	Metadata        map[string]any    `json:"metadata"`
	ClientMessageID string            `json:"client_message_id"`
}

func (in *messageInput) toInput() chat.MessageInput {
	return chat.MessageInput{
		Body:            in.Body,
		Attachments:     in.Attachments,
		Metadata:        in.Metadata,
		ClientMessageID: in.ClientMessageID,
	}
}

// messageView 对外输出的消息，已删除的消息只保留墓碑
type messageView struct {
	*chat.Message
	IsDeleted bool `json:"is_deleted"`
}

func viewOf(m *chat.Message) *messageView {
	if m == nil {
		return nil
	}
	if m.IsDeleted() {
		r := m.Redacted()
		m = &r
	}
	return &messageView{Message: m, IsDeleted: m.IsDeleted()}
}

func (h *handler) listThreads(ctx iris.Context) {
	filter, err := threadFilterOf(ctx)
	if err != nil {
		badRequest(ctx, err.Error())
		return
	}
	views, err := h.chat.ListThreads(ctx.Request().Context(), middleware.UserID(ctx), filter)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "data": views})
}

func threadFilterOf(ctx iris.Context) (chat.ThreadFilter, error) {
	var f chat.ThreadFilter
	if ctx.URLParamExists("archived") {
		archived, err := ctx.URLParamBool("archived")
		if err != nil {
			return f, errors.New("archived must be true or false")
		}
		f.Archived = &archived
	}
	switch role := chat.Role(ctx.URLParam("role")); role {
	case "", chat.RoleBuyer, chat.RoleSeller:
		f.Role = role
	default:
		return f, errors.New("role must be buyer or seller")
	}
	f.MyAds, _ = ctx.URLParamBool("my_ads")
	f.UnreadOnly, _ = ctx.URLParamBool("unread")
	f.Limit = ctx.URLParamIntDefault("limit", 0)
	f.Offset = ctx.URLParamIntDefault("offset", 0)
	return f, nil
}

func (h *handler) createThread(ctx iris.Context) {
	var req struct {
		ListingID int64         `json:"listing_id"`
		Message   *messageInput `json:"message"`
	}
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	if req.ListingID <= 0 {
		badRequest(ctx, "listing_id is required")
		return
	}

	rctx := ctx.Request().Context()
	userID := middleware.UserID(ctx)

	listing, sellerID, err := h.resolver.Listing(rctx, req.ListingID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if sellerID == userID {
		writeError(ctx, chat.ErrSelfContact)
		return
	}
	buyer, err := h.resolver.User(rctx, userID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	seller, err := h.resolver.User(rctx, sellerID)
	if err != nil {
		writeError(ctx, err)
		return
	}

	thread, created, err := h.chat.GetOrCreateThread(rctx, listing, buyer, seller)
	if err != nil {
		writeError(ctx, err)
		return
	}

	var msg *chat.Message
	if req.Message != nil {
		if msg, err = h.chat.AppendMessage(rctx, thread.ID, buyer, req.Message.toInput()); err != nil {
			writeError(ctx, err)
			return
		}
	}

	view, err := h.chat.GetThread(rctx, thread.ID, userID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	if created {
		ctx.StatusCode(iris.StatusCreated)
	}
	ctx.JSON(iris.Map{"code": 0, "data": iris.Map{
		"thread":  view,
		"created": created,
		"message": viewOf(msg),
	}})
}

func (h *handler) getThread(ctx iris.Context) {
	view, err := h.chat.GetThread(ctx.Request().Context(), ctx.Params().Get("id"), middleware.UserID(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "data": view})
}

func (h *handler) deleteThread(ctx iris.Context) {
	if err := h.chat.SoftDeleteThread(ctx.Request().Context(), ctx.Params().Get("id"), middleware.UserID(ctx)); err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "msg": "deleted"})
}

func (h *handler) setArchived(archived bool) iris.Handler {
	return func(ctx iris.Context) {
		p, err := h.chat.SetArchiveState(ctx.Request().Context(), ctx.Params().Get("id"), middleware.UserID(ctx), archived)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	}
}

func (h *handler) markRead(ctx iris.Context) {
	var req struct {
		MessageID *string `json:"message_id"`
	}
	if err := readOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	p, err := h.chat.MarkRead(ctx.Request().Context(), ctx.Params().Get("id"), middleware.UserID(ctx), req.MessageID)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "data": p})
}

func (h *handler) listMessages(ctx iris.Context) {
	before, err := chat.ParseCursor(ctx.URLParam("before"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	after, err := chat.ParseCursor(ctx.URLParam("after"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	q := chat.PageQuery{Before: before, After: after, Limit: ctx.URLParamIntDefault("limit", 0)}

	page, err := h.chat.ListMessages(ctx.Request().Context(), ctx.Params().Get("id"), middleware.UserID(ctx), q)
	if err != nil {
		writeError(ctx, err)
		return
	}
	out := make([]*messageView, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, viewOf(m))
	}
	ctx.JSON(iris.Map{"code": 0, "data": iris.Map{
		"messages":    out,
		"has_more":    page.HasMore,
		"next_before": page.NextBefore,
		"next_after":  page.NextAfter,
	}})
}

func (h *handler) postMessage(ctx iris.Context) {
	var req messageInput
	if err := ctx.ReadJSON(&req); err != nil {
		badRequest(ctx, err.Error())
		return
	}
	rctx := ctx.Request().Context()
	sender, err := h.resolver.User(rctx, middleware.UserID(ctx))
	if err != nil {
		writeError(ctx, err)
		return
	}
	msg, err := h.chat.AppendMessage(rctx, ctx.Params().Get("id"), sender, req.toInput())
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.StatusCode(iris.StatusCreated)
	ctx.JSON(iris.Map{"code": 0, "data": viewOf(msg)})
}

func (h *handler) deleteMessage(ctx iris.Context) {
	msg, err := h.chat.DeleteMessage(ctx.Request().Context(), ctx.Params().Get("id"), middleware.UserID(ctx), ctx.Params().Get("mid"))
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "data": viewOf(msg)})
}

func (h *handler) syncAvailability(ctx iris.Context) {
	res, err := h.chat.SyncListingAvailability(ctx.Request().Context(), middleware.UserID(ctx), h.resolver)
	if err != nil {
		writeError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"code": 0, "data": res})
}

// listingStatus GET 使用 ?ids=1,2,3，POST 使用 {"ids": [...]}
func (h *handler) listingStatus(ctx iris.Context) {
	var ids []int64
	if ctx.Method() == iris.MethodPost {
		var req struct {
			IDs []int64 `json:"ids"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			badRequest(ctx, err.Error())
			return
		}
		ids = req.IDs
	} else {
		var err error
		if ids, err = parseIDs(ctx.URLParam("ids")); err != nil {
			badRequest(ctx, err.Error())
			return
		}
	}

	statuses, err := h.resolver.BulkListingStatus(ctx.Request().Context(), ids)
	if err != nil {
		writeError(ctx, err)
		return
	}
	out := make(map[string]chat.ListingAvailability, len(statuses))
	for id, s := range statuses {
		out[strconv.FormatInt(id, 10)] = s
	}
	ctx.JSON(iris.Map{"code": 0, "data": out})
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("ids must be positive integers")
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// readOptionalJSON 允许空请求体
func readOptionalJSON(ctx iris.Context, v any) error {
	body, err := ctx.GetBody()
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func badRequest(ctx iris.Context, msg string) {
	ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{"code": iris.StatusBadRequest, "msg": msg})
}

// statusOf 领域错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, chat.ErrListingUnavailable):
		return iris.StatusNotFound
	case errors.Is(err, chat.ErrInvalidMessage),
		errors.Is(err, chat.ErrSelfContact),
		errors.Is(err, chat.ErrInvalidCursor),
		errors.Is(err, snapshot.ErrTooManyListings):
		return iris.StatusBadRequest
	case errors.Is(err, chat.ErrNotAParticipant), errors.Is(err, chat.ErrNotSender):
		return iris.StatusForbidden
	case errors.Is(err, chat.ErrTransientStore):
		return iris.StatusServiceUnavailable
	}
	return iris.StatusInternalServerError
}

func writeError(ctx iris.Context, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == iris.StatusInternalServerError {
		zap.L().Error("chat api request failed",
			zap.String("path", ctx.Path()),
			zap.Int64("user_id", middleware.UserID(ctx)),
			zap.Error(err))
		msg = "internal error"
	}
	ctx.StopWithJSON(code, iris.Map{"code": code, "msg": msg})
}

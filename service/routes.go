package service

import (
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-directory/server"
	"github.com/saiset-co/sai-directory/types"
)

func (s *Service) registerRoutes(router *server.Router) {
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", s.container.Metrics.Handler())
	router.GET("/users", s.handleUsers)
	router.GET("/users/{id}", s.handleUser)
}

func (s *Service) handleHealth(ctx *fasthttp.RequestCtx) {
	report := s.container.Health.Check(ctx)

	status := fasthttp.StatusOK
	if !report.Healthy() {
		status = fasthttp.StatusServiceUnavailable
	}

	server.WriteJSON(ctx, status, report)
}

func (s *Service) handleUsers(ctx *fasthttp.RequestCtx) {
	page := 1
	if raw := ctx.QueryArgs().Peek("page"); len(raw) > 0 {
		parsed, err := strconv.Atoi(string(raw))
		if err != nil {
			server.WriteError(ctx, fasthttp.StatusBadRequest, "page must be a number")
			return
		}
		page = parsed
	}

	users, err := s.container.Directory.FetchUsers(ctx, page)
	if err != nil {
		s.writeDirectoryError(ctx, err)
		return
	}

	server.WriteJSON(ctx, fasthttp.StatusOK, users)
}

func (s *Service) handleUser(ctx *fasthttp.RequestCtx) {
	raw, _ := ctx.UserValue("id").(string)

	id, err := strconv.Atoi(raw)
	if err != nil {
		server.WriteError(ctx, fasthttp.StatusBadRequest, "id must be a number")
		return
	}

	user, err := s.container.Directory.FetchUserByID(ctx, id)
	if err != nil {
		s.writeDirectoryError(ctx, err)
		return
	}

	server.WriteJSON(ctx, fasthttp.StatusOK, types.UserResponse{Data: *user})
}

func (s *Service) writeDirectoryError(ctx *fasthttp.RequestCtx, err error) {
	server.WriteError(ctx, statusForError(err), err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidParameter):
		return fasthttp.StatusBadRequest
	case errors.Is(err, types.ErrResourceNotFound):
		return fasthttp.StatusNotFound
	case errors.Is(err, types.ErrCircuitBreakerOpen), errors.Is(err, types.ErrClientNotInitialized):
		return fasthttp.StatusServiceUnavailable
	case errors.Is(err, types.ErrClientTimeout):
		return fasthttp.StatusGatewayTimeout
	default:
		return fasthttp.StatusBadGateway
	}
}

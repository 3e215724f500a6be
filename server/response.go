package server

import (
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-directory/utils"
)

func WriteJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	body, err := utils.Marshal(v)
	if err != nil {
		ctx.Error("Failed to encode response", fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func WriteError(ctx *fasthttp.RequestCtx, status int, message string) {
	WriteJSON(ctx, status, map[string]string{"error": message})
}

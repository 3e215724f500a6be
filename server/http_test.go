package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/saiset-co/sai-directory/logger"
	"github.com/saiset-co/sai-directory/types"
)

type headerMiddleware struct {
	name string
}

func (h headerMiddleware) Name() string { return h.name }

func (h headerMiddleware) Handle(ctx *fasthttp.RequestCtx, next fasthttp.RequestHandler) {
	ctx.Response.Header.Add("X-Chain", h.name)
	next(ctx)
}

func TestHTTPServer_ServeAndStop(t *testing.T) {
	router := NewRouter()
	router.GET("/ping", func(ctx *fasthttp.RequestCtx) {
		WriteJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	})

	srv, err := NewHTTPServer(&types.ServerConfig{}, logger.NewNop(), router,
		headerMiddleware{"outer"}, headerMiddleware{"inner"})
	require.NoError(t, err)

	ln := fasthttputil.NewInmemoryListener()
	require.NoError(t, srv.Serve(ln))
	assert.True(t, srv.IsRunning())
	assert.NotEmpty(t, srv.Addr())
	assert.ErrorIs(t, srv.Serve(ln), types.ErrServerAlreadyRunning)

	client := &fasthttp.Client{Dial: func(string) (net.Conn, error) { return ln.Dial() }}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI("http://directory.test/ping")
	require.NoError(t, client.DoTimeout(req, resp, time.Second))
	assert.Equal(t, fasthttp.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"status":"ok"}`, string(resp.Body()))

	var chain []string
	resp.Header.VisitAll(func(key, value []byte) {
		if string(key) == "X-Chain" {
			chain = append(chain, string(value))
		}
	})
	assert.Equal(t, []string{"outer", "inner"}, chain)

	require.NoError(t, srv.Stop())
	assert.False(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Stop(), types.ErrServerNotRunning)
}

func TestHTTPServer_InvalidArguments(t *testing.T) {
	_, err := NewHTTPServer(nil, logger.NewNop(), NewRouter())
	assert.ErrorIs(t, err, types.ErrInvalidParameter)

	_, err = NewHTTPServer(&types.ServerConfig{}, logger.NewNop(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

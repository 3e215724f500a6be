package types

import (
	"context"
	"time"
)

type Transport interface {
	PerformRequest(ctx context.Context, method, path string, headers map[string]string) (*Response, error)
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

func (r *Response) IsSuccess() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

type CallOptions struct {
	Timeout time.Duration
	Retry   int
	Headers map[string]string
}

package stats

import "context"

type chain []Handler

// Chain returns a Handler that reports to every non-nil handler in order.
// Each handler tags the context returned by the one before it.
func Chain(hs ...Handler) Handler {
	var c chain
	for _, h := range hs {
		if h != nil {
			c = append(c, h)
		}
	}
	if len(c) == 1 {
		return c[0]
	}
	return c
}

func (c chain) TagCall(ctx context.Context, info *CallTagInfo) context.Context {
	for _, h := range c {
		ctx = h.TagCall(ctx, info)
	}
	return ctx
}

func (c chain) HandleCall(ctx context.Context, s CallStats) {
	for _, h := range c {
		h.HandleCall(ctx, s)
	}
}

func (c chain) TagConn(ctx context.Context, info *ConnTagInfo) context.Context {
	for _, h := range c {
		ctx = h.TagConn(ctx, info)
	}
	return ctx
}

func (c chain) HandleConn(ctx context.Context, s ConnStats) {
	for _, h := range c {
		h.HandleConn(ctx, s)
	}
}

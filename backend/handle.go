package backend

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
)

type sendItem struct {
	data      []byte
	closeSend bool
}

// callHandle queues requests for a stream that may not be open yet. A pump
// goroutine drains the queue into the stream once it is.
type callHandle struct {
	cancel    context.CancelFunc
	streaming bool

	mu       sync.Mutex
	queue    []sendItem
	closed   bool
	canceled bool
	notify   chan struct{}
}

func newCallHandle(cancel context.CancelFunc, streaming bool) *callHandle {
	return &callHandle{
		cancel:    cancel,
		streaming: streaming,
		notify:    make(chan struct{}, 1),
	}
}

func (h *callHandle) Write(data []byte) error {
	return h.push(sendItem{data: data})
}

func (h *callHandle) CloseSend() error {
	return h.push(sendItem{closeSend: true})
}

func (h *callHandle) push(it sendItem) error {
	if !h.streaming {
		return ErrNotStreaming
	}

	h.mu.Lock()
	switch {
	case h.canceled:
		h.mu.Unlock()
		return ErrCanceled
	case h.closed:
		h.mu.Unlock()
		return ErrSendClosed
	}
	h.queue = append(h.queue, it)
	if it.closeSend {
		h.closed = true
	}
	h.mu.Unlock()

	select {
	case h.notify <- struct{}{}:
	default:
	}
	return nil
}

func (h *callHandle) Cancel() {
	h.mu.Lock()
	h.canceled = true
	h.queue = nil
	h.mu.Unlock()

	h.cancel()
}

// pump sends queued requests on cs until the request stream is closed, a send
// fails or ctx ends. A failed send is left for the receiving side to report.
func (h *callHandle) pump(ctx context.Context, cs grpc.ClientStream) {
	for {
		h.mu.Lock()
		items := h.queue
		h.queue = nil
		h.mu.Unlock()

		for _, it := range items {
			if it.closeSend {
				if err := cs.CloseSend(); err != nil {
					zap.L().Debug("close backend request stream failed", zap.Error(err))
				}
				return
			}
			if err := cs.SendMsg(&frame{data: it.data}); err != nil {
				zap.L().Debug("send to backend failed", zap.Error(err))
				return
			}
		}
		if len(items) > 0 {
			continue
		}

		select {
		case <-h.notify:
		case <-ctx.Done():
			return
		}
	}
}

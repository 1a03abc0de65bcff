// Package rpc
package rpc

import "sync"

// Handler receives unsolicited messages registered for one code.
type Handler = func(Response)

func newHandlerTable() *handlerTable {
	return &handlerTable{
		handlers: map[uint32]Handler{},
	}
}

type handlerTable struct {
	lock     sync.RWMutex
	handlers map[uint32]Handler
	fallback Handler
}

func (h *handlerTable) add(code uint32, fn Handler) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if fn == nil {
		delete(h.handlers, code)
		return
	}
	h.handlers[code] = fn
}

func (h *handlerTable) setFallback(fn Handler) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.fallback = fn
}

func (h *handlerTable) get(code uint32) Handler {
	h.lock.RLock()
	defer h.lock.RUnlock()
	if fn, ok := h.handlers[code]; ok {
		return fn
	}
	return h.fallback
}

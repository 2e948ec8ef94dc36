// File: proactor/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

import (
	"github.com/momentics/loofah/api"
)

// Handler receives completions for one socket on the loop goroutine.
type Handler interface {
	Fd() api.Handle
	// OnAcceptCompleted hands over a connected socket; the handler owns it.
	OnAcceptCompleted(conn api.Handle)
	OnConnectCompleted()
	// OnReadCompleted reports n bytes read; zero means the peer closed.
	OnReadCompleted(n int)
	OnWriteCompleted(n int)
	OnIOError(op api.EventType, err *api.Error)
}

// HandlerBase provides no-op callbacks for embedding.
type HandlerBase struct{}

func (HandlerBase) OnAcceptCompleted(api.Handle)        {}
func (HandlerBase) OnConnectCompleted()                 {}
func (HandlerBase) OnReadCompleted(int)                 {}
func (HandlerBase) OnWriteCompleted(int)                {}
func (HandlerBase) OnIOError(api.EventType, *api.Error) {}

// File: proactor/request.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package proactor

import (
	"github.com/eapache/queue"

	"github.com/momentics/loofah/api"
	"github.com/momentics/loofah/inet"
)

// Request is one outstanding operation. It is consumed exactly once: by
// dispatching its completion, or by cancellation when its handler is
// unregistered first.
type Request struct {
	Op   api.EventType
	Bufs [][]byte

	st       *handlerState
	addr     inet.Addr
	done     bool
	canceled bool
	n        int
	conn     api.Handle
	err      error
	sys      requestSys
}

// Canceled reports whether the request was dropped without completion.
func (r *Request) Canceled() bool { return r.canceled }

func (r *Request) size() int {
	total := 0
	for _, b := range r.Bufs {
		total += len(b)
	}
	return total
}

// handlerState is the engine-side record of a registered handler.
type handlerState struct {
	h       Handler
	fd      api.Handle
	reads   *queue.Queue
	writes  *queue.Queue
	accepts *queue.Queue
	connect *Request
	gone    bool
	sys     stateSys
}

func newHandlerState(h Handler) *handlerState {
	return &handlerState{
		h:       h,
		fd:      h.Fd(),
		reads:   queue.New(),
		writes:  queue.New(),
		accepts: queue.New(),
	}
}

func (st *handlerState) queueFor(op api.EventType) *queue.Queue {
	switch op {
	case api.EventRead:
		return st.reads
	case api.EventWrite:
		return st.writes
	case api.EventAccept:
		return st.accepts
	}
	return nil
}

// head returns the oldest request still waiting for its result.
func head(q *queue.Queue) *Request {
	for i := 0; i < q.Length(); i++ {
		if r := q.Get(i).(*Request); !r.done {
			return r
		}
	}
	return nil
}

// pending returns the number of queued requests.
func (st *handlerState) pending() int {
	n := st.reads.Length() + st.writes.Length() + st.accepts.Length()
	if st.connect != nil {
		n++
	}
	return n
}

// cancelAll marks every queued request canceled and empties the queues.
func (st *handlerState) cancelAll() []*Request {
	var out []*Request
	for _, q := range []*queue.Queue{st.reads, st.writes, st.accepts} {
		for q.Length() > 0 {
			r := q.Remove().(*Request)
			r.canceled = true
			out = append(out, r)
		}
	}
	if st.connect != nil {
		st.connect.canceled = true
		out = append(out, st.connect)
		st.connect = nil
	}
	return out
}

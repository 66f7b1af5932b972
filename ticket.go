package apppool

import "github.com/drewolson/apppool/group"

// ticket is a one-shot rendezvous that turns an asynchronous group callback
// into a synchronous return (spec.md §3 "Ticket", §9 "synchronous-over-
// asynchronous rendezvous"). Unlike the original's stack-allocated ticket,
// this one is heap-owned via the channel itself: the channel is buffered to
// capacity 1, so deliver never blocks even if wait's caller has abandoned
// the call, and there is nothing to free prematurely.
type ticket struct {
	result chan ticketResult
}

type ticketResult struct {
	session *Session
	err     error
}

func newTicket() *ticket {
	return &ticket{result: make(chan ticketResult, 1)}
}

// deliver is passed to AsyncGet as its callback.
func (t *ticket) deliver(sess *Session, err error) {
	t.result <- ticketResult{session: sess, err: err}
}

func (t *ticket) wait() (*Session, error) {
	r := <-t.result
	return r.session, r.err
}

// detachGroupTicket rendezvouses on a group's asynchronous shutdown
// completing, used by DetachGroupByName (spec.md §4.5,
// "DetachGroupWaitTicket").
type detachGroupTicket struct {
	done chan struct{}
}

func newDetachGroupTicket() *detachGroupTicket {
	return &detachGroupTicket{done: make(chan struct{})}
}

func (t *detachGroupTicket) deliver() {
	close(t.done)
}

func (t *detachGroupTicket) wait() {
	<-t.done
}

// disableTicket rendezvouses on a deferred Disable resolving, used by
// DisableProcess (spec.md §4.5, "DisableWaitTicket").
type disableTicket struct {
	result chan group.DisableResult
}

func newDisableTicket() *disableTicket {
	return &disableTicket{result: make(chan group.DisableResult, 1)}
}

func (t *disableTicket) deliver(r group.DisableResult) {
	t.result <- r
}

func (t *disableTicket) wait() group.DisableResult {
	return <-t.result
}

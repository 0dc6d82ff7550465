package pid

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/hedisam/supervise/internal/mailbox"
	"github.com/hedisam/supervise/sysmsg"
)

const (
	// Actor kinds
	KindWorker int32 = iota
	KindSupervisor
)

// PID is the runtime record of a single process. Its lifecycle fields may be read from
// any goroutine.
type PID struct {
	id      string
	mailbox mailbox.Mailbox
	done    chan struct{}
	kind    int32

	mu         sync.Mutex
	cancel     context.CancelFunc
	stopReason *sysmsg.Reason
	reason     sysmsg.Reason
	terminated bool
	parent     *PID
	// processes that are linked to me. two way relation
	links map[string]*PID
}

func NewPID(m mailbox.Mailbox) *PID {
	return &PID{
		id:      xid.New().String(),
		mailbox: m,
		done:    make(chan struct{}),
		kind:    KindWorker,
		links:   make(map[string]*PID),
	}
}

func (p *PID) ID() string {
	return p.id
}

func (p *PID) Mailbox() mailbox.Mailbox {
	return p.mailbox
}

// Done is closed once the process has terminated and its exit reason is recorded.
func (p *PID) Done() <-chan struct{} {
	return p.done
}

func (p *PID) SetKind(kind int32) {
	atomic.StoreInt32(&p.kind, kind)
}

func (p *PID) Kind() int32 {
	return atomic.LoadInt32(&p.kind)
}

// SetCancel must be called before the process starts running.
func (p *PID) SetCancel(cancel context.CancelFunc) {
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
}

// SetParent records the supervisor of the process. A crashing supervisor never stops its parent.
func (p *PID) SetParent(parent *PID) {
	p.mu.Lock()
	p.parent = parent
	p.mu.Unlock()
}

func (p *PID) Parent() *PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.parent
}

// RequestStop records the stop reason and cancels the process context.
// Only the first request counts; it returns false for later ones and for terminated processes.
func (p *PID) RequestStop(reason sysmsg.Reason) bool {
	p.mu.Lock()
	if p.terminated || p.stopReason != nil {
		p.mu.Unlock()
		return false
	}
	p.stopReason = &reason
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return true
}

func (p *PID) StopRequested() (sysmsg.Reason, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopReason == nil {
		return sysmsg.Reason{}, false
	}
	return *p.stopReason, true
}

// Link adds other to the link set of p. It returns false if p has already terminated,
// in which case nobody will ever be told about its exit.
func (p *PID) Link(other *PID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return false
	}
	p.links[other.id] = other
	return true
}

func (p *PID) Unlink(other *PID) {
	p.mu.Lock()
	delete(p.links, other.id)
	p.mu.Unlock()
}

func (p *PID) Linked(other *PID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.links[other.id]
	return ok
}

// Terminate records the final exit reason and returns the processes that were linked at that
// moment. ok is false if the process was already terminated.
func (p *PID) Terminate(reason sysmsg.Reason) (links []*PID, ok bool) {
	p.mu.Lock()
	if p.terminated {
		p.mu.Unlock()
		return nil, false
	}
	p.terminated = true
	p.reason = reason
	cancel := p.cancel
	links = make([]*PID, 0, len(p.links))
	for _, linked := range p.links {
		links = append(links, linked)
	}
	p.links = make(map[string]*PID)
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.mailbox.Dispose()
	close(p.done)
	return links, true
}

// Status returns whether the process is still running, and its exit reason otherwise.
func (p *PID) Status() (running bool, reason sysmsg.Reason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.terminated, p.reason
}

package mlv

import(
	"fmt"
	"sync"
)

// A Pool holds a few independent Containers for one recording, so
// that several goroutines can read frames at once. Members share the
// parsed index and headers; each has its own file handles.
//
// Acquire never waits: if every member is in use it fails with
// ErrResourceBusy.
type Pool struct {
	mu        sync.Mutex
	idle      *sync.Cond
	members   []*poolMember
	quiescing bool
	opt       Options
}

type poolMember struct {
	c     *Container
	inUse bool
}

// A Lease is a checked-out pool member. Release it when done; releasing twice is harmless.
type Lease struct {
	p    *Pool
	m    *poolMember
	once sync.Once
}

func (l *Lease)Container() *Container { return l.m.c }

func (l *Lease)Release() {
	l.once.Do(func() {
		l.p.mu.Lock()
		l.m.inUse = false
		l.p.mu.Unlock()
		l.p.idle.Broadcast()
	})
}

func NewPool(path string, n int, opt Options) (*Pool, error) {
	p := &Pool{opt: opt}
	p.idle = sync.NewCond(&p.mu)
	if err := p.open(path, n); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool)open(path string, n int) error {
	if n < 1 {
		n = 1
	}
	first, err := OpenWithOptions(path, p.opt)
	if err != nil {
		return err
	}
	members := []*poolMember{{c: first}}
	for i:=1; i<n; i++ {
		c, err := first.Clone()
		if err != nil {
			for _, m := range members {
				m.c.Close()
			}
			return fmt.Errorf("pool member %d: %w", i, err)
		}
		members = append(members, &poolMember{c: c})
	}
	p.members = members
	return nil
}

func (p *Pool)Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.members)
}

// Primary gives read-only access to the recording's metadata; don't read frames through it.
func (p *Pool)Primary() *Container {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.members) == 0 {
		return nil
	}
	return p.members[0].c
}

// Acquire checks out the first free member
func (p *Pool)Acquire() (*Lease, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiescing || len(p.members) == 0 {
		return nil, fmt.Errorf("%w: pool is closed or reopening", ErrResourceBusy)
	}
	for _, m := range p.members {
		if !m.inUse {
			m.inUse = true
			return &Lease{p: p, m: m}, nil
		}
	}
	return nil, fmt.Errorf("%w: all %d readers in use", ErrResourceBusy, len(p.members))
}

// With runs `f` on a checked-out member, releasing it afterwards
func (p *Pool)With(f func(*Container) error) error {
	l, err := p.Acquire()
	if err != nil {
		return err
	}
	defer l.Release()
	return f(l.Container())
}

// quiesce blocks new acquisitions, and waits for in-flight ones to be released. Call with mu held.
func (p *Pool)quiesce() {
	p.quiescing = true
	for {
		busy := false
		for _, m := range p.members {
			if m.inUse {
				busy = true
			}
		}
		if !busy {
			return
		}
		p.idle.Wait()
	}
}

func (p *Pool)closeMembers() error {
	var first error
	for _, m := range p.members {
		if err := m.c.Close(); err != nil && first == nil {
			first = err
		}
	}
	p.members = nil
	return first
}

// Reopen waits for every member to be released, then swaps the pool over to a new recording.
func (p *Pool)Reopen(path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.members)
	p.quiesce()
	p.closeMembers()
	err := p.open(path, n)
	p.quiescing = false
	return err
}

func (p *Pool)Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quiesce()
	return p.closeMembers()
}

package jobs

import (
	"sort"
	"sync"
	"time"
)

const subscriberBuffer = 16

type subscriber struct {
	ch     chan Record
	closed bool
}

// Registry holds job records. All reads return copies; updates keep progress
// monotonic, cap non-succeeded progress at 99 and ignore terminal records.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	subs    map[string][]*subscriber
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*Record),
		subs:    make(map[string][]*subscriber),
		now:     time.Now,
	}
}

func (r *Registry) insert(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	c := rec.clone()
	r.records[rec.ID] = &c
}

// Get returns a copy of the record or a NotFound error.
func (r *Registry) Get(id string) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, newError(KindNotFound, "job not found: "+id)
	}
	return rec.clone(), nil
}

// List returns all records, newest first.
func (r *Registry) List() []Record {
	r.mu.RLock()
	out := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Active counts non-terminal records.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if !rec.State.Terminal() {
			n++
		}
	}
	return n
}

// update applies fn to a copy of the record and stores the result if the
// record is still live. It returns the stored copy and whether it changed.
func (r *Registry) update(id string, fn func(*Record)) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[id]
	if !ok || cur.State.Terminal() {
		return Record{}, false
	}
	next := cur.clone()
	fn(&next)
	if next.Progress < cur.Progress {
		next.Progress = cur.Progress
	}
	switch next.State {
	case StateSucceeded:
		next.Progress = 100
	default:
		if next.Progress > 99 {
			next.Progress = 99
		}
	}
	if next.State != StatePending && cur.StartedAt.IsZero() && next.StartedAt.IsZero() {
		next.StartedAt = r.now()
	}
	if next.State.Terminal() && next.FinishedAt.IsZero() {
		next.FinishedAt = r.now()
	}
	*cur = next
	out := next.clone()
	r.publishLocked(id, out)
	return out, true
}

func (r *Registry) publishLocked(id string, rec Record) {
	subs := r.subs[id]
	for _, s := range subs {
		offer(s.ch, rec)
	}
	if rec.State.Terminal() {
		for _, s := range subs {
			s.closed = true
			close(s.ch)
		}
		delete(r.subs, id)
	}
}

// offer sends without blocking, dropping the oldest buffered snapshot when
// the subscriber is behind. The newest snapshot always gets through.
func offer(ch chan Record, rec Record) {
	for {
		select {
		case ch <- rec:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Subscribe returns a channel of record snapshots for one job, starting
// with the current one. The channel is closed after the terminal snapshot
// or when the returned stop func is called.
func (r *Registry) Subscribe(id string) (<-chan Record, func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, func() {}, newError(KindNotFound, "job not found: "+id)
	}
	s := &subscriber{ch: make(chan Record, subscriberBuffer)}
	s.ch <- rec.clone()
	if rec.State.Terminal() {
		s.closed = true
		close(s.ch)
		return s.ch, func() {}, nil
	}
	r.subs[id] = append(r.subs[id], s)
	stop := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		close(s.ch)
		list := r.subs[id]
		for i, x := range list {
			if x == s {
				r.subs[id] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(r.subs[id]) == 0 {
			delete(r.subs, id)
		}
	}
	return s.ch, stop, nil
}

// Reap removes terminal records that finished before cutoff.
func (r *Registry) Reap(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, rec := range r.records {
		if rec.State.Terminal() && rec.FinishedAt.Before(cutoff) {
			delete(r.records, id)
			n++
		}
	}
	return n
}

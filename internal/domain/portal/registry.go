package portal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wellness/booking/internal/domain/booking"
	"github.com/wellness/booking/internal/platform/bookingapi"
	"github.com/wellness/booking/internal/platform/session"
	"github.com/wellness/booking/internal/platform/websocket"
)

// errNotFound hides both unknown instances and instances owned by someone
// else.
var errNotFound = errors.New("instance not found")

type closer interface{ Close() }

// instance is one hosted calendar or wizard. Its session store is kept in
// sync with the caller of each request; the component follows it through
// a subscription.
type instance[T closer] struct {
	id    string
	topic string
	value T
	store *session.Store

	base   context.Context
	cancel context.CancelFunc
	stop   func()

	mu    sync.Mutex
	owner string
	token string
}

// ctx is the instance-lifetime context carrying the latest caller token.
func (i *instance[T]) ctx() context.Context {
	i.mu.Lock()
	tok := i.token
	i.mu.Unlock()
	return bookingapi.WithToken(i.base, tok)
}

// registry holds instances of one kind. Idle instances expire and are torn
// down.
type registry[T closer] struct {
	kind    string
	items   *expirable.LRU[string, *instance[T]]
	hub     SignalHub
	metrics Metrics
}

func newRegistry[T closer](kind string, size int, ttl time.Duration, hub SignalHub, m Metrics) *registry[T] {
	r := &registry[T]{kind: kind, hub: hub, metrics: m}
	r.items = expirable.NewLRU[string, *instance[T]](size, func(_ string, inst *instance[T]) {
		r.teardown(inst)
	}, ttl)
	return r
}

// open builds and registers a new instance. build receives the publisher
// for the instance topic; onSession, when set, follows later session
// changes.
func (r *registry[T]) open(sess booking.Session, token string, build func(pub booking.Publisher) T, onSession func(inst *instance[T], s booking.Session)) *instance[T] {
	id := uuid.NewString()
	base, cancel := context.WithCancel(context.Background())
	inst := &instance[T]{
		id:     id,
		topic:  websocket.Topic(r.kind, id),
		store:  session.NewStore(sess),
		base:   base,
		cancel: cancel,
		stop:   func() {},
		token:  token,
	}
	if sess.Authenticated() {
		inst.owner = sess.UserID
	}
	inst.value = build(r.hub.Publisher(inst.topic))
	if onSession != nil {
		inst.stop = inst.store.Subscribe(func(s booking.Session) { onSession(inst, s) })
	}
	r.items.Add(id, inst)
	r.metrics.InstanceOpened(r.kind)
	return inst
}

// get returns the instance for the caller and syncs its session. Instances
// owned by a signed-in user are invisible to everyone else.
func (r *registry[T]) get(id string, sess booking.Session, token string) (*instance[T], error) {
	inst, ok := r.items.Get(id)
	if !ok {
		return nil, errNotFound
	}
	inst.mu.Lock()
	if inst.owner != "" && inst.owner != sess.UserID {
		inst.mu.Unlock()
		return nil, errNotFound
	}
	if sess.Authenticated() {
		inst.owner = sess.UserID
	}
	inst.token = token
	inst.mu.Unlock()

	// Renew the idle timer.
	r.items.Add(id, inst)
	inst.store.Set(sess)
	return inst, nil
}

// release signs the owner out of the instance. It becomes a guest instance.
func (r *registry[T]) release(inst *instance[T]) {
	inst.mu.Lock()
	inst.owner = ""
	inst.token = ""
	inst.mu.Unlock()
	inst.store.Clear()
}

// canFollow reports whether sess may subscribe to the instance's signals.
func (r *registry[T]) canFollow(id string, sess booking.Session) bool {
	inst, ok := r.items.Peek(id)
	if !ok {
		return false
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.owner == "" || inst.owner == sess.UserID
}

func (r *registry[T]) close(id string) {
	r.items.Remove(id)
}

func (r *registry[T]) size() int { return r.items.Len() }

func (r *registry[T]) teardown(inst *instance[T]) {
	inst.stop()
	inst.cancel()
	inst.value.Close()
	r.hub.CloseTopic(inst.topic)
	r.metrics.InstanceClosed(r.kind)
}

// Package router dispatches received messages to handlers selected by topic
// filter and message properties.
//
// A Router is driven by client events:
//
//	r := router.New()
//	r.Handle(onTemp, router.WithTopic("sensors/+/temp"), router.WithQoS(mqttv5client.AtLeastOnce))
//	r.HandleDefault(onOther)
//	client.AddListener(r.Listener())
package router

import (
	"regexp"
	"slices"
	"sync"

	"github.com/vitalvas/mqttv5client"
)

// Handler processes a received message.
type Handler func(msg *mqttv5client.PublishPacket)

// Matcher reports whether a route accepts msg.
type Matcher func(msg *mqttv5client.PublishPacket) bool

// Option narrows the messages a route accepts.
type Option func(*route)

// WithTopic restricts the route to topics matching filter. Wildcards and
// $share filters are accepted; a shared filter matches on its inner filter.
func WithTopic(filter string) Option {
	return func(rt *route) {
		rt.filter = filter
	}
}

// WithMatcher adds an arbitrary predicate.
func WithMatcher(m Matcher) Option {
	return func(rt *route) {
		rt.matchers = append(rt.matchers, m)
	}
}

func WithQoS(qos mqttv5client.QoS) Option {
	return WithMatcher(func(msg *mqttv5client.PublishPacket) bool {
		return msg.QoS == qos
	})
}

func WithRetain(retain bool) Option {
	return WithMatcher(func(msg *mqttv5client.PublishPacket) bool {
		return msg.Retain == retain
	})
}

// WithSubscriptionIdentifier accepts messages delivered for the subscription
// created with id.
func WithSubscriptionIdentifier(id uint32) Option {
	return WithMatcher(func(msg *mqttv5client.PublishPacket) bool {
		return slices.Contains(msg.SubscriptionIdentifiers, id)
	})
}

// WithContentType matches the content type property; an absent property is
// matched as the empty string.
func WithContentType(pattern *regexp.Regexp) Option {
	return WithMatcher(func(msg *mqttv5client.PublishPacket) bool {
		return pattern.MatchString(valueOf(msg.ContentType))
	})
}

func WithResponseTopic(pattern *regexp.Regexp) Option {
	return WithMatcher(func(msg *mqttv5client.PublishPacket) bool {
		return pattern.MatchString(valueOf(msg.ResponseTopic))
	})
}

// WithUserProperty requires at least one user property whose name and value
// both match. Repeat it to require several properties.
func WithUserProperty(name, value *regexp.Regexp) Option {
	return WithMatcher(func(msg *mqttv5client.PublishPacket) bool {
		return slices.ContainsFunc(msg.UserProperties, func(p mqttv5client.UserProperty) bool {
			return name.MatchString(p.Name) && value.MatchString(p.Value)
		})
	})
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

type route struct {
	id       uint64
	filter   string
	matchers []Matcher
	handler  Handler
}

func (rt *route) accepts(msg *mqttv5client.PublishPacket) bool {
	if rt.filter != "" && !mqttv5client.TopicMatch(rt.filter, msg.Topic) {
		return false
	}
	for _, m := range rt.matchers {
		if !m(msg) {
			return false
		}
	}
	return true
}

// Router holds routes in registration order. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	lastID   uint64
	routes   []*route
	fallback Handler
}

func New() *Router {
	return &Router{}
}

// Handle adds a route and returns a function that removes it. A route with no
// options accepts every message.
func (r *Router) Handle(handler Handler, opts ...Option) (remove func()) {
	rt := &route{handler: handler}
	for _, opt := range opts {
		opt(rt)
	}

	r.mu.Lock()
	r.lastID++
	rt.id = r.lastID
	r.routes = append(r.routes, rt)
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.routes = slices.DeleteFunc(r.routes, func(x *route) bool { return x.id == rt.id })
	}
}

// HandleDefault sets the handler for messages no route accepts. Nil clears it.
func (r *Router) HandleDefault(handler Handler) {
	r.mu.Lock()
	r.fallback = handler
	r.mu.Unlock()
}

// Route calls every handler whose route accepts msg, in registration order,
// and returns how many were called. Handlers run outside the router lock and
// may add or remove routes.
func (r *Router) Route(msg *mqttv5client.PublishPacket) int {
	if msg == nil {
		return 0
	}

	r.mu.RLock()
	var matched []Handler
	for _, rt := range r.routes {
		if rt.accepts(msg) {
			matched = append(matched, rt.handler)
		}
	}
	fallback := r.fallback
	r.mu.RUnlock()

	if len(matched) == 0 && fallback != nil {
		fallback(msg)
	}
	for _, h := range matched {
		h(msg)
	}
	return len(matched)
}

// HandleEvent routes the message carried by an EventMessageReceived event and
// ignores every other event.
func (r *Router) HandleEvent(ev mqttv5client.Event) {
	if ev.Type == mqttv5client.EventMessageReceived {
		r.Route(ev.Publish)
	}
}

// Listener adapts the router for mqttv5client.WithEventListener and
// Client.AddListener.
func (r *Router) Listener() mqttv5client.EventListener {
	return r.HandleEvent
}

// Filters returns the distinct topic filters of all routes, sorted. The result
// is what a caller needs to subscribe to.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filters []string
	for _, rt := range r.routes {
		if rt.filter != "" {
			filters = append(filters, rt.filter)
		}
	}
	slices.Sort(filters)
	return slices.Compact(filters)
}

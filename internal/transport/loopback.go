package transport

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/puzzlesync/internal/wire"
)

// Fault is what a Network does with one delivery.
type Fault int

const (
	Deliver Fault = iota
	Drop
	Duplicate
	Hold
)

// Delivery is one envelope travelling from one participant to another.
type Delivery struct {
	From     string
	To       string
	Envelope wire.Envelope
}

// FaultFunc decides the fate of a delivery.
type FaultFunc func(d Delivery) Fault

// Network is an in-memory channel shared by Loopback transports. Every
// delivery is encoded and decoded, so receivers never share memory with
// the sender. Faults can drop, duplicate or hold deliveries; held
// deliveries are released later, possibly out of order.
type Network struct {
	name    string
	whisper bool

	mu     sync.Mutex
	nodes  map[string]*Loopback
	fault  FaultFunc
	held   []Delivery
	sent   []Delivery
	frames int
}

// NewNetwork creates a network. When whisper is set, deliveries honor
// Outbound.Recipients like the fallback transport; otherwise every other
// node receives every envelope.
func NewNetwork(name string, whisper bool) *Network {
	return &Network{name: name, whisper: whisper, nodes: make(map[string]*Loopback)}
}

// Join attaches a participant and returns its transport.
func (n *Network) Join(participant string) *Loopback {
	n.mu.Lock()
	defer n.mu.Unlock()
	lb := &Loopback{net: n, self: participant}
	n.nodes[participant] = lb
	return lb
}

// SetFault installs a fault function; nil delivers everything.
func (n *Network) SetFault(f FaultFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fault = f
}

// Sent returns every delivery attempted, including dropped and held ones.
func (n *Network) Sent() []Delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Delivery(nil), n.sent...)
}

// Held returns the number of held deliveries.
func (n *Network) Held() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.held)
}

// Release delivers held deliveries, newest first when reverse is set.
func (n *Network) Release(reverse bool) {
	n.mu.Lock()
	held := n.held
	n.held = nil
	n.mu.Unlock()

	if reverse {
		slices.Reverse(held)
	}
	for _, d := range held {
		n.hand(d)
	}
}

// Redeliver hands the last delivery addressed to participant to it again.
func (n *Network) Redeliver(participant string) bool {
	n.mu.Lock()
	var last *Delivery
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].To == participant {
			d := n.sent[i]
			last = &d
			break
		}
	}
	n.mu.Unlock()
	if last == nil {
		return false
	}
	n.hand(*last)
	return true
}

func (n *Network) send(from string, out Outbound) error {
	data, err := wire.Encode(out.Envelope)
	if err != nil {
		return err
	}

	n.mu.Lock()
	var targets []*Loopback
	for id, node := range n.nodes {
		if id == from {
			continue
		}
		if n.whisper && len(out.Recipients) > 0 && !slices.Contains(out.Recipients, id) {
			continue
		}
		targets = append(targets, node)
	}
	slices.SortFunc(targets, func(a, b *Loopback) int { return strings.Compare(a.self, b.self) })
	fault := n.fault
	n.mu.Unlock()

	for _, to := range targets {
		env, err := wire.Decode(data)
		if err != nil {
			return fmt.Errorf("loopback: %w", err)
		}
		d := Delivery{From: from, To: to.self, Envelope: env}

		f := Deliver
		if fault != nil {
			f = fault(d)
		}
		n.mu.Lock()
		n.sent = append(n.sent, d)
		if f == Hold {
			n.held = append(n.held, d)
		}
		n.mu.Unlock()

		switch f {
		case Deliver:
			n.hand(d)
		case Duplicate:
			n.hand(d)
			n.hand(d)
		case Drop, Hold:
		}
	}
	return nil
}

func (n *Network) hand(d Delivery) {
	n.mu.Lock()
	node := n.nodes[d.To]
	n.mu.Unlock()
	if node == nil {
		return
	}
	node.deliver(d.Envelope, n.name)
}

// Loopback is one participant's transport on a Network.
type Loopback struct {
	net  *Network
	self string

	mu      sync.Mutex
	handler Handler
}

// Name identifies the transport in logs.
func (l *Loopback) Name() string { return l.net.name }

// Send delivers to the other nodes of the network, subject to faults.
func (l *Loopback) Send(_ context.Context, out Outbound) error {
	return l.net.send(l.self, out)
}

// Attach installs the handler without blocking. Deliveries before a
// handler is attached are lost.
func (l *Loopback) Attach(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handler = h
}

// Listen attaches h and blocks until ctx is done.
func (l *Loopback) Listen(ctx context.Context, h Handler) error {
	l.Attach(h)
	<-ctx.Done()
	l.Attach(nil)
	return nil
}

func (l *Loopback) deliver(env wire.Envelope, from string) {
	l.mu.Lock()
	h := l.handler
	l.mu.Unlock()
	if h != nil {
		h(env, from)
	}
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/akinalp/chatsync/models"
	"github.com/akinalp/chatsync/pkg"
	"github.com/akinalp/chatsync/ws"
)

// fakeDialer, bağlantı operasyonlarını sırasıyla kaydeden sahte transport.
type fakeDialer struct {
	mu      sync.Mutex
	ops     []string
	conns   []*fakeConn
	handler ws.Handler
	err     error
	tokens  []string
}

func (d *fakeDialer) Dial(ctx context.Context, token string, h ws.Handler) (ws.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ops = append(d.ops, "dial")
	d.tokens = append(d.tokens, token)
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{d: d, subs: make(map[string]string)}
	d.conns = append(d.conns, c)
	d.handler = h
	return c, nil
}

func (d *fakeDialer) record(op string) {
	d.mu.Lock()
	d.ops = append(d.ops, op)
	d.mu.Unlock()
}

func (d *fakeDialer) Ops() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ops...)
}

func (d *fakeDialer) Handler() ws.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler
}

func (d *fakeDialer) Conns() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

func (d *fakeDialer) LastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

type sentFrame struct {
	Destination string
	Body        []byte
}

type fakeConn struct {
	d      *fakeDialer
	mu     sync.Mutex
	subs   map[string]string
	nextID int
	closed bool
	sent   []sentFrame
}

func (c *fakeConn) Subscribe(dest string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: closed", pkg.ErrTransport)
	}
	c.nextID++
	id := fmt.Sprintf("sub-%d", c.nextID)
	c.subs[id] = dest
	c.mu.Unlock()

	c.d.record("subscribe " + dest)
	return id, nil
}

func (c *fakeConn) Unsubscribe(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: closed", pkg.ErrTransport)
	}
	dest := c.subs[id]
	delete(c.subs, id)
	c.mu.Unlock()

	c.d.record("unsubscribe " + dest)
	return nil
}

func (c *fakeConn) Send(dest string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: closed", pkg.ErrTransport)
	}
	c.sent = append(c.sent, sentFrame{Destination: dest, Body: body})
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	c.mu.Unlock()
	if !already {
		c.d.record("close")
	}
	return nil
}

// SubID, destination için subscription id.
func (c *fakeConn) SubID(dest string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, d := range c.subs {
		if d == dest {
			return id
		}
	}
	return ""
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Sent() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentFrame(nil), c.sent...)
}

func (c *fakeConn) Destinations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for _, d := range c.subs {
		out = append(out, d)
	}
	return out
}

// deliver, sunucudan frame gelmiş gibi handler'ı çağırır.
func (d *fakeDialer) deliver(dest string, body string) {
	c := d.LastConn()
	d.Handler().HandleDelivery(ws.Delivery{Subscription: c.SubID(dest), Destination: dest, Body: []byte(body)})
}

// staticGuard, sabit credential veya hata döner.
type staticGuard struct {
	cred models.SessionCredential
	err  error
}

func (g staticGuard) EnsureValid(context.Context) (models.SessionCredential, error) {
	return g.cred, g.err
}

// gatedGuard, ilk EnsureValid çağrısını gate kapanana kadar bekletir.
type gatedGuard struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	gate    chan struct{}
}

func newGatedGuard() *gatedGuard {
	return &gatedGuard{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (g *gatedGuard) EnsureValid(ctx context.Context) (models.SessionCredential, error) {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()

	if first {
		close(g.entered)
		<-g.gate
	}
	return models.SessionCredential{Token: "tok"}, nil
}

func opsWithPrefix(ops []string, prefix string) []string {
	var out []string
	for _, op := range ops {
		if strings.HasPrefix(op, prefix) {
			out = append(out, op)
		}
	}
	return out
}

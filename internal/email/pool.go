package email

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ConnectionPool hands out at most size connections at once, most recently returned first
type ConnectionPool struct {
	slots   chan struct{}
	newConn func() *Connection
	logger  *logrus.Entry

	mu     sync.Mutex
	idle   []*Connection
	closed bool
}

// NewConnectionPool creates a pool; connections are created lazily
func NewConnectionPool(size int, newConn func() *Connection, logger *logrus.Entry) *ConnectionPool {
	if size < 1 {
		size = 1
	}
	return &ConnectionPool{
		slots:   make(chan struct{}, size),
		newConn: newConn,
		logger:  logger,
	}
}

// Get blocks until a connection is free
func (p *ConnectionPool) Get(ctx context.Context) (*Connection, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.idle); n > 0 {
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		return conn, nil
	}
	return p.newConn(), nil
}

// Put returns a connection to the pool
func (p *ConnectionPool) Put(conn *Connection) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		conn.Close()
	} else {
		p.idle = append(p.idle, conn)
		p.mu.Unlock()
	}
	<-p.slots
}

// WithConnection runs fn on a borrowed connection, selecting folder first when given.
// The folder is unselected and the connection returned even if fn fails or panics;
// unselect failures are only logged.
func (p *ConnectionPool) WithConnection(ctx context.Context, folder string, fn func(*Connection) error) error {
	conn, err := p.Get(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err := conn.Unselect(); err != nil {
			p.logger.WithError(err).WithField("folder", folder).Warn("Failed to unselect folder")
		}
		p.Put(conn)
	}()

	if folder != "" {
		if _, err := conn.Select(ctx, folder); err != nil {
			return err
		}
	}
	return fn(conn)
}

// Close logs out of every idle connection; borrowed ones are closed when returned
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.closed = true
	p.mu.Unlock()

	for _, conn := range idle {
		conn.Close()
	}
}

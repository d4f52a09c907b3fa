package core

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
)

// The inbound listener accepts only two line forms:
//
//	XFORM <ID> [payload]  — a transform dispatch request
//	anything else         — free text, recorded into the experience store
//
// Payloads are data, never code, and the listener is off unless
// listener.enabled is set. One connection per goroutine; open connections
// are tracked so shutdown can unblock idle readers.
type listener struct {
	mu    sync.Mutex
	ln    net.Listener
	conns map[net.Conn]struct{}
}

func (l *listener) track(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conns == nil {
		l.conns = make(map[net.Conn]struct{})
	}
	l.conns[conn] = struct{}{}
}

func (l *listener) untrack(conn net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.conns, conn)
}

func (c *AgentCore) startListener(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", c.cfg.Listener.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	c.listener.mu.Lock()
	c.listener.ln = ln
	c.listener.mu.Unlock()

	c.logger.Info("inbound listener started", "addr", addr)
	c.reflect(ctx, "LISTENER_STARTED", map[string]any{"addr": addr})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				// Closed on shutdown.
				return
			}
			c.listener.track(conn)
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				defer c.listener.untrack(conn)
				c.serveConn(ctx, conn)
			}()
		}
	}()
	return nil
}

// stopListener closes the accept socket and every open connection, so
// serveConn goroutines blocked in Scan unblock and shutdown's wg.Wait
// cannot hang on an idle client.
func (c *AgentCore) stopListener() {
	c.listener.mu.Lock()
	ln := c.listener.ln
	c.listener.ln = nil
	conns := make([]net.Conn, 0, len(c.listener.conns))
	for conn := range c.listener.conns {
		conns = append(conns, conn)
	}
	c.listener.conns = nil
	c.listener.mu.Unlock()

	if ln != nil {
		ln.Close()
	}
	for _, conn := range conns {
		conn.Close()
	}
}

func (c *AgentCore) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)
	for scanner.Scan() {
		select {
		case <-c.stopCh:
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if id, payload, ok := parseDispatchLine(line); ok {
			out := c.Dispatch(ctx, id, []byte(payload))
			conn.Write(append(out, '\n'))
			continue
		}

		c.Input(ctx, line, map[string]string{"source": "listener", "remote": conn.RemoteAddr().String()})
		conn.Write([]byte("OK\n"))
	}
}

// parseDispatchLine splits "XFORM <ID> [payload]". The payload may contain
// spaces; it is everything after the id.
func parseDispatchLine(line string) (id, payload string, ok bool) {
	rest, found := strings.CutPrefix(line, "XFORM ")
	if !found {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return "", "", false
	}
	id, payload, _ = strings.Cut(rest, " ")
	return id, strings.TrimSpace(payload), true
}

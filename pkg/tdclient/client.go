// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package tdclient is a WebSocket client for a TDLib JSON gateway. Each
// request carries a unique "@extra" that the gateway echoes on its reply;
// every other object read from the socket is a push update.
package tdclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-extchat/pkg/tdproto"
)

// ErrClosed is returned for requests that were pending or issued after the
// connection closed.
var ErrClosed = errors.New("connection closed")

// Config selects the gateway and the client instance behind it.
type Config struct {
	URL          string
	InstanceName string
}

type result struct {
	resp tdproto.Response
	err  error
}

// Client is safe for concurrent use. The push handler runs on the reader
// goroutine and must not block.
type Client struct {
	conn   *websocket.Conn
	onPush func(tdproto.Update)
	log    zerolog.Logger

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan result
	closedErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the gateway and starts reading.
func Dial(ctx context.Context, cfg Config, onPush func(tdproto.Update), log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse gateway url: %w", err)
	}
	if cfg.InstanceName != "" {
		q := u.Query()
		q.Set("instance", cfg.InstanceName)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gateway: %w", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	c := &Client{
		conn:    conn,
		onPush:  onPush,
		log:     log.With().Str("component", "td_client").Logger(),
		pending: make(map[string]chan result),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	c.log.Info().Str("url", u.Redacted()).Msg("Connected to TDLib gateway")
	return c, nil
}

// Send writes req and waits for its reply, ctx cancellation or connection
// close. An "error" reply is returned as *tdproto.Error.
func (c *Client) Send(ctx context.Context, req tdproto.Request) (tdproto.Response, error) {
	extra := uuid.NewString()
	data, err := tdproto.Marshal(req, extra)
	if err != nil {
		return nil, err
	}

	ch := make(chan result, 1)
	c.pendingMu.Lock()
	if c.closedErr != nil {
		err := c.closedErr
		c.pendingMu.Unlock()
		return nil, err
	}
	c.pending[extra] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, extra)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send %s: %w", req.TDType(), err)
	}
	c.log.Trace().Str("type", req.TDType()).Str("extra", extra).Msg("Sent request")

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the connection and fails pending requests with ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.shutdown(ErrClosed)
	return err
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("Gateway connection lost")
			}
			c.shutdown(fmt.Errorf("%w: %w", ErrClosed, err))
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) handleMessage(data []byte) {
	env, err := tdproto.ParseEnvelope(data)
	if err != nil {
		c.log.Warn().Err(err).Msg("Dropping malformed object")
		return
	}

	if env.Extra != "" {
		c.pendingMu.Lock()
		ch, ok := c.pending[env.Extra]
		delete(c.pending, env.Extra)
		c.pendingMu.Unlock()
		if ok {
			ch <- decodeResult(env)
			return
		}
	}

	upd, err := tdproto.DecodeUpdate(env)
	if err != nil {
		c.log.Warn().Err(err).Str("type", env.Type).Msg("Dropping undecodable update")
		return
	}
	if c.onPush != nil {
		c.onPush(upd)
	}
}

func decodeResult(env *tdproto.Envelope) result {
	resp, err := tdproto.DecodeResponse(env)
	if err != nil {
		return result{err: err}
	}
	if tdErr, ok := resp.(*tdproto.Error); ok {
		return result{err: tdErr}
	}
	return result{resp: resp}
}

func (c *Client) shutdown(cause error) {
	c.closeOnce.Do(func() {
		c.pendingMu.Lock()
		c.closedErr = cause
		for extra, ch := range c.pending {
			ch <- result{err: cause}
			delete(c.pending, extra)
		}
		c.pendingMu.Unlock()
		close(c.closed)
	})
}

// client.go - Conference session engine.
// Copyright (C) 2024  The anonymous-conference authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package client implements the anonymous conference session engine: it
// owns the connection to the rendezvous server, speaks the wire protocol,
// drives the session lifecycle state machine and queues and dispatches
// conference messages.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/L20L021902/anonymous-conference-client/core/log"
	"github.com/L20L021902/anonymous-conference-client/core/retry"
)

const (
	defaultRequestTimeout    = 10 * time.Second
	defaultHeartbeatInterval = 30 * time.Second
)

// ClientConfig is a client configuration.
type ClientConfig struct {
	// ServerAddress is the host:port of the rendezvous server.
	ServerAddress string

	// LogBackend is the logging backend to use for client logging.
	LogBackend *log.Backend

	// OnConnFn is the callback function that will be called when the
	// connection status changes.  The error parameter will be nil on
	// successful connection establishment, otherwise it will be set with
	// the reason why a connection has been torn down (or a connect
	// attempt has failed).
	OnConnFn func(error)

	// OnMessageFn is the callback function that will be called when a
	// conference message is delivered.  Duplicate frames are already
	// filtered; messages arrive in the order the transport delivered
	// them.
	OnMessageFn func(*Message)

	// OnStateFn is the optional callback function that will be called
	// when the session lifecycle state changes.
	OnStateFn func(State)

	// DialContextFn is the optional alternative Dialer.DialContext
	// function to be used when creating outgoing network connections.
	DialContextFn func(ctx context.Context, network, address string) (net.Conn, error)

	// RequestTimeout is the deadline applied to each create/join
	// exchange.  If left unset, 10 seconds will be used.
	RequestTimeout time.Duration

	// HeartbeatInterval is the interval at which keepalive frames are
	// written on an otherwise idle connection.  If left unset, 30
	// seconds will be used.
	HeartbeatInterval time.Duration

	// RetryBaseDelay and RetryMaxDelay bound the exponential reconnect
	// backoff schedule.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
}

func (cfg *ClientConfig) validate() error {
	if cfg.ServerAddress == "" {
		return fmt.Errorf("client: no ServerAddress provided")
	}
	if cfg.LogBackend == nil {
		return fmt.Errorf("client: no LogBackend provided")
	}
	return nil
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.RetryBaseDelay == 0 {
		cfg.RetryBaseDelay = retry.DefaultBaseDelay
	}
	if cfg.RetryMaxDelay == 0 {
		cfg.RetryMaxDelay = retry.DefaultMaxDelay
	}
}

// Client is a conference client instance.  Exactly one session exists per
// Client; it is created by New and torn down by Shutdown.
type Client struct {
	cfg *ClientConfig
	log *logging.Logger

	sm   *stateMachine
	disp *dispatcher
	conn *connection

	haltedCh chan interface{}
	haltOnce sync.Once
}

// Session returns a snapshot of the client's current session.
func (c *Client) Session() Session {
	return c.sm.Snapshot()
}

// Shutdown cleanly shuts down a given Client instance.
func (c *Client) Shutdown() {
	c.haltOnce.Do(func() { c.halt() })
}

// Wait waits till the Client is terminated for any reason.
func (c *Client) Wait() {
	<-c.haltedCh
}

func (c *Client) halt() {
	c.log.Notice("Starting graceful shutdown.")

	if c.conn != nil {
		c.conn.Halt()
	}
	c.conn = nil

	c.log.Notice("Shutdown complete.")
	close(c.haltedCh)
}

// New creates a new Client with the provided configuration and starts the
// connect worker.
func New(cfg *ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	c := new(Client)
	c.cfg = cfg
	c.log = cfg.LogBackend.GetLogger("client")
	c.haltedCh = make(chan interface{})

	c.log.Debugf("Server is: %v", cfg.ServerAddress)

	c.sm = newStateMachine(cfg.LogBackend.GetLogger("client/session"), cfg.OnStateFn)
	c.disp = newDispatcher(cfg.LogBackend.GetLogger("client/dispatch"), cfg.OnMessageFn)
	c.conn = newConnection(c)
	c.conn.start()

	return c, nil
}

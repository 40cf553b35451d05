// connection.go - Client to server connection.
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

package client

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"github.com/L20L021902/anonymous-conference-client/core/crypto/passhash"
	"github.com/L20L021902/anonymous-conference-client/core/retry"
	"github.com/L20L021902/anonymous-conference-client/core/wire/commands"
	"github.com/L20L021902/anonymous-conference-client/core/worker"
)

const (
	keepAliveInterval = 3 * time.Minute
	connectTimeout    = 1 * time.Minute
	handshakeTimeout  = 30 * time.Second
	writeTimeout      = 30 * time.Second
)

var defaultDialer = net.Dialer{
	KeepAlive: keepAliveInterval,
	Timeout:   connectTimeout,
}

// connection owns the TCP connection to the server and drives the session
// state machine.  Its dispatch loop is the sole writer of session state and
// the only goroutine that performs raw I/O.
type connection struct {
	sync.Mutex
	worker.Worker

	c   *Client
	log *logging.Logger

	opCh   chan *opCtx
	sendCh chan *connSendCtx

	nonce       uint32
	isConnected bool
}

type opKind int

const (
	opCreate opKind = iota
	opJoin
	opLeave
)

// opCtx is a queued create/join/leave operation.  The reply channel is
// buffered so the dispatch loop never blocks resolving it.
type opCtx struct {
	kind opKind

	// Create: hash and salt are precomputed by the caller.
	passwordHash [passhash.KeyLength]byte
	joinSalt     [passhash.SaltLength]byte

	// Join: the hash can only be computed once the server supplies the
	// conference's join salt.
	conferenceID uint64
	password     string

	replyCh chan interface{}
}

func (op *opCtx) resolve(v interface{}) {
	select {
	case op.replyCh <- v:
	default:
	}
}

type createResult struct {
	conferenceID uint64
	pseudonym    string
}

type joinResult struct {
	pseudonym string
	numPeers  uint32
}

type connSendCtx struct {
	cmd    *commands.SendMessage
	doneFn func(error)
}

// pendingRequest is the single in-flight create/join exchange.  The nonce
// correlates the server's response; requests are serialized so at most one
// pendingRequest exists at a time.
type pendingRequest struct {
	kind         opKind
	awaitingSalt bool
	nonce        uint32
	conferenceID uint64
	password     string
	op           *opCtx
}

func newConnection(c *Client) *connection {
	k := new(connection)
	k.c = c
	k.log = c.cfg.LogBackend.GetLogger("client/conn")
	k.opCh = make(chan *opCtx)
	k.sendCh = make(chan *connSendCtx)
	return k
}

func (c *connection) start() {
	c.Go(c.connectWorker)
}

// nextNonce returns a fresh request correlation nonce.  Only ever called
// from the dispatch loop.
func (c *connection) nextNonce() uint32 {
	c.nonce++
	return c.nonce
}

func (c *connection) connectWorker() {
	defer c.log.Debugf("Terminating connect worker.")

	dialCtx, cancelFn := context.WithCancel(context.Background())
	go func() {
		select {
		case <-c.HaltCh():
			cancelFn()
		case <-dialCtx.Done():
		}
	}()

	dialFn := c.c.cfg.DialContextFn
	if dialFn == nil {
		dialFn = defaultDialer.DialContext
	}

	attempt := 0
	for {
		if attempt > 0 {
			delay := retry.Delay(c.c.cfg.RetryBaseDelay, c.c.cfg.RetryMaxDelay, retry.DefaultJitter, attempt-1)
			c.log.Debugf("Waiting %v before connect attempt %d.", delay, attempt)
			select {
			case <-time.After(delay):
			case <-c.HaltCh():
				return
			}
		}
		select {
		case <-c.HaltCh():
			return
		default:
		}

		c.c.sm.toConnecting()
		c.log.Debugf("Dialing: %v", c.c.cfg.ServerAddress)
		conn, err := dialFn(dialCtx, "tcp", c.c.cfg.ServerAddress)
		if err != nil {
			select {
			case <-c.HaltCh():
				return
			default:
			}
			c.log.Warningf("Failed to connect to %v: %v", c.c.cfg.ServerAddress, err)
			c.c.sm.onDisconnect()
			if c.c.cfg.OnConnFn != nil {
				c.c.cfg.OnConnFn(&ConnectError{Err: err})
			}
			attempt++
			continue
		}
		c.log.Debugf("TCP connection established.")

		if c.onTCPConn(conn) {
			// The handshake completed, so the next failure starts the
			// backoff schedule over.
			attempt = 0
		} else {
			attempt++
		}

		select {
		case <-c.HaltCh():
			return
		default:
		}
		c.log.Debugf("Connection terminated, will reconnect.")
	}
}

// onTCPConn performs the protocol header handshake and, on success, runs
// the dispatch loop until the connection dies.  It returns true if the
// handshake completed.
func (c *connection) onTCPConn(conn net.Conn) bool {
	defer func() {
		c.log.Debugf("TCP connection closed.")
		conn.Close()
	}()

	handshakeFailed := func(err error) bool {
		c.log.Errorf("Handshake failed: %v", err)
		c.c.sm.onDisconnect()
		if c.c.cfg.OnConnFn != nil {
			c.c.cfg.OnConnFn(&ConnectError{Err: err})
		}
		return false
	}

	conn.SetDeadline(time.Now().Add(handshakeTimeout))
	if _, err := conn.Write(commands.ProtocolHeader); err != nil {
		return handshakeFailed(err)
	}
	fr := newFrameReader(conn)
	cmd, err := fr.next()
	if err != nil {
		return handshakeFailed(err)
	}
	if _, ok := cmd.(*commands.Heartbeat); !ok {
		return handshakeFailed(newProtocolError("unexpected handshake response: %T", cmd))
	}
	conn.SetDeadline(time.Time{})
	c.log.Debugf("Handshake completed.")

	c.onStreamConn(conn, fr)
	return true
}

// onStreamConn is the dispatch loop: the single writer of the session
// state machine, serializing inbound frames, queued operations, outbound
// messages, the pending request deadline and the heartbeat timer.
func (c *connection) onStreamConn(conn net.Conn, fr *frameReader) {
	c.c.sm.toIdle()
	c.onConnStatusChange(nil)

	var connErr error
	var pending *pendingRequest

	// Start the peer reader.
	cmdCloseCh := make(chan interface{})
	cmdCh := make(chan interface{})
	go func() {
		defer close(cmdCh)
		for {
			cmd, err := fr.next()
			if err != nil {
				select {
				case cmdCh <- err:
				case <-cmdCloseCh:
				}
				return
			}
			select {
			case cmdCh <- cmd:
			case <-cmdCloseCh:
				return
			}
		}
	}()

	pendingTimer := time.NewTimer(time.Hour)
	stopTimer(pendingTimer)
	heartbeatTimer := time.NewTimer(c.c.cfg.HeartbeatInterval)

	defer func() {
		if connErr == nil {
			panic("BUG: connErr is nil on connection teardown.")
		}
		pendingTimer.Stop()
		heartbeatTimer.Stop()
		conn.Close() // Unblocks the peer reader.
		close(cmdCloseCh)
		if pending != nil {
			pending.op.resolve(ErrNotConnected)
			pending = nil
		}
		c.c.sm.onDisconnect()
		c.c.disp.reset()
		c.onConnStatusChange(connErr)
	}()

	for {
		select {
		case <-c.HaltCh():
			// Best effort clean shutdown notice.
			c.writeCommand(conn, &commands.Disconnect{})
			connErr = ErrShutdown
			return
		case tmp, ok := <-cmdCh:
			if !ok {
				connErr = newProtocolError("read worker terminated unexpectedly")
				return
			}
			switch cmdOrErr := tmp.(type) {
			case commands.Command:
				if connErr = c.onCommand(conn, cmdOrErr, &pending, pendingTimer); connErr != nil {
					return
				}
			case error:
				connErr = cmdOrErr
				return
			}
		case op := <-c.opCh:
			if connErr = c.onOp(conn, op, &pending, pendingTimer); connErr != nil {
				return
			}
		case ctx := <-c.sendCh:
			if c.c.sm.State() != StateInConference {
				ctx.doneFn(ErrNotInConference)
				continue
			}
			err := c.writeCommand(conn, ctx.cmd)
			ctx.doneFn(err)
			if err != nil {
				connErr = err
				return
			}
			c.log.Debugf("Sent SendMessage.")
		case <-pendingTimer.C:
			if pending != nil {
				c.log.Debugf("Pending request timed out.")
				pending.op.resolve(ErrRequestTimeout)
				pending = nil
				c.c.sm.abortRequest()
			}
		case <-heartbeatTimer.C:
			if connErr = c.writeCommand(conn, &commands.Heartbeat{}); connErr != nil {
				return
			}
			heartbeatTimer.Reset(c.c.cfg.HeartbeatInterval)
		}
	}
}

// onOp dequeues a user operation.  A non-nil return tears the connection
// down; guard failures are resolved to the caller instead.
func (c *connection) onOp(conn net.Conn, op *opCtx, pendingp **pendingRequest, pendingTimer *time.Timer) error {
	switch op.kind {
	case opCreate:
		if err := c.c.sm.beginRequest(StateAwaitingCreate); err != nil {
			op.resolve(err)
			return nil
		}
		nonce := c.nextNonce()
		cmd := &commands.CreateConference{
			Nonce:        nonce,
			PasswordHash: op.passwordHash,
			JoinSalt:     op.joinSalt,
		}
		if err := c.writeCommand(conn, cmd); err != nil {
			op.resolve(ErrNotConnected)
			c.c.sm.abortRequest()
			return err
		}
		*pendingp = &pendingRequest{kind: opCreate, nonce: nonce, op: op}
		resetTimer(pendingTimer, c.c.cfg.RequestTimeout)
		c.log.Debugf("Sent CreateConference.")
	case opJoin:
		if err := c.c.sm.beginRequest(StateAwaitingJoin); err != nil {
			op.resolve(err)
			return nil
		}
		nonce := c.nextNonce()
		cmd := &commands.GetJoinSalt{Nonce: nonce, ConferenceID: op.conferenceID}
		if err := c.writeCommand(conn, cmd); err != nil {
			op.resolve(ErrNotConnected)
			c.c.sm.abortRequest()
			return err
		}
		*pendingp = &pendingRequest{
			kind:         opJoin,
			awaitingSalt: true,
			nonce:        nonce,
			conferenceID: op.conferenceID,
			password:     op.password,
			op:           op,
		}
		resetTimer(pendingTimer, c.c.cfg.RequestTimeout)
		c.log.Debugf("Sent GetJoinSalt.")
	case opLeave:
		id, err := c.c.sm.leave()
		if err != nil {
			op.resolve(err)
			return nil
		}
		c.c.disp.reset()
		// Leaving is effective locally; the notice is fire and forget.
		op.resolve(nil)
		if err := c.writeCommand(conn, &commands.LeaveConference{Nonce: c.nextNonce(), ConferenceID: id}); err != nil {
			return err
		}
		c.log.Debugf("Sent LeaveConference.")
	}
	return nil
}

// onCommand handles one inbound frame.  A non-nil return tears the
// connection down.
func (c *connection) onCommand(conn net.Conn, rawCmd commands.Command, pendingp **pendingRequest, pendingTimer *time.Timer) error {
	pending := *pendingp
	switch cmd := rawCmd.(type) {
	case *commands.Heartbeat:
		c.log.Debugf("Received Heartbeat.")
	case *commands.Disconnect:
		c.log.Debugf("Received Disconnect.")
		return newProtocolError("server requested disconnect")
	case *commands.ConferenceCreated:
		if pending == nil || pending.kind != opCreate || pending.nonce != cmd.Nonce {
			c.log.Warningf("Received unexpected ConferenceCreated with nonce %d.", cmd.Nonce)
			return nil
		}
		pseudonym, err := newPseudonym()
		if err != nil {
			return err
		}
		c.c.sm.completeRequest(cmd.ConferenceID, pseudonym)
		c.c.disp.reset()
		pending.op.resolve(createResult{conferenceID: cmd.ConferenceID, pseudonym: pseudonym})
		*pendingp = nil
		stopTimer(pendingTimer)
		c.log.Debugf("Conference %d created.", cmd.ConferenceID)
	case *commands.JoinSaltReply:
		if pending == nil || pending.kind != opJoin || !pending.awaitingSalt ||
			pending.nonce != cmd.Nonce || pending.conferenceID != cmd.ConferenceID {
			c.log.Warningf("Received unexpected JoinSaltReply with nonce %d.", cmd.Nonce)
			return nil
		}
		hash := passhash.Hash([]byte(pending.password), &cmd.JoinSalt)
		pending.password = ""
		nonce := c.nextNonce()
		join := &commands.JoinConference{
			Nonce:        nonce,
			ConferenceID: pending.conferenceID,
			PasswordHash: hash,
		}
		if err := c.writeCommand(conn, join); err != nil {
			pending.op.resolve(ErrNotConnected)
			*pendingp = nil
			c.c.sm.abortRequest()
			return err
		}
		pending.awaitingSalt = false
		pending.nonce = nonce
		resetTimer(pendingTimer, c.c.cfg.RequestTimeout)
		c.log.Debugf("Sent JoinConference.")
	case *commands.ConferenceJoined:
		if pending == nil || pending.kind != opJoin || pending.awaitingSalt ||
			pending.nonce != cmd.Nonce || pending.conferenceID != cmd.ConferenceID {
			c.log.Warningf("Received unexpected ConferenceJoined with nonce %d.", cmd.Nonce)
			return nil
		}
		pseudonym, err := newPseudonym()
		if err != nil {
			return err
		}
		c.c.sm.completeRequest(cmd.ConferenceID, pseudonym)
		c.c.disp.reset()
		pending.op.resolve(joinResult{pseudonym: pseudonym, numPeers: cmd.NumPeers})
		*pendingp = nil
		stopTimer(pendingTimer)
		c.log.Debugf("Joined conference %d (%d peers).", cmd.ConferenceID, cmd.NumPeers)
	case *commands.ConferenceLeft:
		c.log.Debugf("Received ConferenceLeft for conference %d.", cmd.ConferenceID)
	case *commands.ConferenceMessage:
		sess := c.c.sm.Snapshot()
		if sess.State != StateInConference || sess.ConferenceID != cmd.ConferenceID {
			c.log.Warningf("Received message for conference %d without membership.", cmd.ConferenceID)
			return nil
		}
		c.c.disp.dispatch(cmd)
	case *commands.RequestFailed:
		if pending == nil || pending.nonce != cmd.Nonce {
			c.log.Warningf("Received unexpected RequestFailed with nonce %d.", cmd.Nonce)
			return nil
		}
		c.c.sm.abortRequest()
		pending.op.resolve(serverError(cmd.Reason))
		*pendingp = nil
		stopTimer(pendingTimer)
		c.log.Debugf("Request failed: %v.", cmd.Reason)
	default:
		return newProtocolError("received unexpected command: %T", cmd)
	}
	return nil
}

func (c *connection) writeCommand(conn net.Conn, cmd commands.Command) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_, err := conn.Write(cmd.ToBytes())
	return err
}

func (c *connection) onConnStatusChange(err error) {
	c.Lock()
	if err == nil {
		c.isConnected = true
	} else {
		c.isConnected = false
		// Force drain the channels used to poke the loop.
		select {
		case op := <-c.opCh:
			op.resolve(ErrNotConnected)
		default:
		}
		select {
		case ctx := <-c.sendCh:
			ctx.doneFn(ErrNotConnected)
		default:
		}
	}
	c.Unlock()

	if c.c.cfg.OnConnFn != nil {
		c.c.cfg.OnConnFn(err)
	}
}

// enqueueOp hands an operation to the dispatch loop.  The connection can
// die between the connectivity check and the loop picking the op up, so
// the caller's ctx also bounds the handoff itself.
func (c *connection) enqueueOp(ctx context.Context, op *opCtx) error {
	c.Lock()
	if !c.isConnected {
		c.Unlock()
		return ErrNotConnected
	}
	// Release the lock so this won't deadlock in onConnStatusChange.
	c.Unlock()

	select {
	case c.opCh <- op:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.HaltCh():
		return ErrShutdown
	}
}

// sendMessage hands an outbound chat message to the dispatch loop and
// waits for the write to complete.
func (c *connection) sendMessage(cmd *commands.SendMessage) error {
	c.Lock()
	if !c.isConnected {
		c.Unlock()
		return ErrNotConnected
	}
	// Release the lock so this won't deadlock in onConnStatusChange.
	c.Unlock()

	errCh := make(chan error, 1)
	ctx := &connSendCtx{
		cmd: cmd,
		doneFn: func(err error) {
			errCh <- err
		},
	}
	select {
	case c.sendCh <- ctx:
	case <-c.HaltCh():
		return ErrShutdown
	}
	select {
	case err := <-errCh:
		return err
	case <-c.HaltCh():
		return ErrShutdown
	}
}

// frameReader accumulates stream bytes and yields one decoded frame at a
// time, tolerating arbitrary chunking of the underlying byte stream.
type frameReader struct {
	r     io.Reader
	buf   []byte
	chunk []byte
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{
		r:     r,
		chunk: make([]byte, 4096),
	}
}

func (fr *frameReader) next() (commands.Command, error) {
	for {
		cmd, n, err := commands.Decode(fr.buf)
		if err != nil {
			return nil, newProtocolError("%v", err)
		}
		if cmd != nil {
			fr.buf = fr.buf[n:]
			return cmd, nil
		}
		n, rerr := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf = append(fr.buf, fr.chunk[:n]...)
		}
		if rerr != nil {
			return nil, rerr
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

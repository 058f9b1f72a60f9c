package mc

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

// Position is an absolute world coordinate (feet level).
type Position struct {
	X float64
	Y float64
	Z float64
}

// ControlFlag is a persistent movement input, held until cleared or until
// the session ends.
type ControlFlag string

const (
	ControlJump  ControlFlag = "jump"
	ControlSneak ControlFlag = "sneak"
)

// Events are the asynchronous callbacks a session delivers from its read
// loop. All fields are optional. Handlers run on the read-loop goroutine,
// so they must not block on the session itself.
type Events struct {
	Login   func()
	Spawned func()
	Chat    func(msg ChatMessage)
	Kicked  func(reason string)
	End     func()
	Error   func(err error)
	Death   func()
}

// Options carry the connection parameters for one session.
type Options struct {
	Host            string
	Port            int
	ProtocolVersion int
	Timeout         time.Duration
}

var ErrOnlineMode = errors.New("server requires online-mode authentication")

// Session is one live connection to a remote server, in the play state.
// Created by Dial, destroyed by Close or by the server going away.
type Session struct {
	identity string
	opts     Options
	conn     *conn
	events   Events

	mu       sync.Mutex
	chatWait chan ChatMessage
	pos      Position
	entityID int32
	spawned  bool
	jumpStop chan struct{}
	closed   bool

	endOnce sync.Once
}

// Dial connects and completes the offline-mode login sequence. The caller
// must invoke Run to start event delivery; nothing is read from the play
// state before that, so no spawn or chat can be missed while the owner is
// still wiring itself up.
func Dial(identity string, opts Options, events Events) (*Session, error) {
	d := net.Dialer{Timeout: opts.Timeout}
	nc, err := d.Dial("tcp", net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port)))
	if err != nil {
		return nil, fmt.Errorf("connecting to %s:%d: %w", opts.Host, opts.Port, err)
	}

	c := newConn(nc)
	s := &Session{
		identity: identity,
		opts:     opts,
		conn:     c,
		events:   events,
	}

	nc.SetDeadline(time.Now().Add(opts.Timeout))
	if err := s.login(); err != nil {
		nc.Close()
		return nil, err
	}
	nc.SetDeadline(time.Time{})

	return s, nil
}

// Run starts the read loop. Call exactly once, after Dial.
func (s *Session) Run() {
	go s.readLoop()
}

func (s *Session) login() error {
	hs := &bytes.Buffer{}
	writeVarInt(hs, int32(s.opts.ProtocolVersion))
	writeString(hs, s.opts.Host)
	writeUint16(hs, uint16(s.opts.Port))
	writeVarInt(hs, 2) // next state: login
	if err := s.conn.writePacket(packetHandshake, hs.Bytes()); err != nil {
		return fmt.Errorf("sending handshake: %w", err)
	}

	ls := &bytes.Buffer{}
	writeString(ls, s.identity)
	if err := s.conn.writePacket(packetLoginStart, ls.Bytes()); err != nil {
		return fmt.Errorf("sending login start: %w", err)
	}

	for {
		p, err := s.conn.readPacket()
		if err != nil {
			return fmt.Errorf("reading login reply: %w", err)
		}
		switch p.id {
		case packetLoginDisconnect:
			reason, _ := readString(bytes.NewReader(p.data), maxPacketSize)
			return fmt.Errorf("login rejected: %s", parseChat(reason).Text)
		case packetEncryptionReq:
			return ErrOnlineMode
		case packetSetCompression:
			threshold, err := readVarInt(bytes.NewReader(p.data))
			if err != nil {
				return err
			}
			s.conn.enableCompression(int(threshold))
		case packetLoginSuccess:
			return nil
		}
	}
}

func (s *Session) Identity() string {
	return s.identity
}

func (s *Session) readLoop() {
	for {
		p, err := s.conn.readPacket()
		if err != nil {
			s.finish(err)
			return
		}
		if err := s.handlePacket(p); err != nil {
			s.finish(err)
			return
		}
	}
}

func (s *Session) handlePacket(p packet) error {
	switch p.id {
	case packetKeepAlive:
		id, err := readVarInt(bytes.NewReader(p.data))
		if err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		writeVarInt(buf, id)
		return s.conn.writePacket(packetServerKeepAlive, buf.Bytes())

	case packetJoinGame:
		eid, err := readInt32(bytes.NewReader(p.data))
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.entityID = eid
		s.mu.Unlock()
		if s.events.Login != nil {
			s.events.Login()
		}

	case packetChatMessage:
		br := bytes.NewReader(p.data)
		raw, err := readString(br, maxPacketSize)
		if err != nil {
			return err
		}
		msg := parseChat(raw)

		s.mu.Lock()
		waiter := s.chatWait
		s.chatWait = nil
		s.mu.Unlock()
		if waiter != nil {
			waiter <- msg
		}
		if s.events.Chat != nil {
			s.events.Chat(msg)
		}

	case packetPosAndLook:
		return s.handlePosAndLook(p.data)

	case packetUpdateHealth:
		health, err := readFloat32(bytes.NewReader(p.data))
		if err != nil {
			return err
		}
		if health <= 0 {
			if s.events.Death != nil {
				s.events.Death()
			}
			// Client status action 0 requests a respawn.
			buf := &bytes.Buffer{}
			writeVarInt(buf, 0)
			return s.conn.writePacket(packetClientStatus, buf.Bytes())
		}

	case packetDisconnect:
		br := bytes.NewReader(p.data)
		raw, err := readString(br, maxPacketSize)
		reason := ""
		if err == nil {
			reason = parseChat(raw).Text
		}
		if s.events.Kicked != nil {
			s.events.Kicked(reason)
		}
	}

	return nil
}

func (s *Session) handlePosAndLook(data []byte) error {
	br := bytes.NewReader(data)
	x, err := readFloat64(br)
	if err != nil {
		return err
	}
	y, err := readFloat64(br)
	if err != nil {
		return err
	}
	z, err := readFloat64(br)
	if err != nil {
		return err
	}
	yaw, err := readFloat32(br)
	if err != nil {
		return err
	}
	pitch, err := readFloat32(br)
	if err != nil {
		return err
	}
	flags, err := br.ReadByte()
	if err != nil {
		return err
	}

	s.mu.Lock()
	if flags&0x01 != 0 {
		x += s.pos.X
	}
	if flags&0x02 != 0 {
		y += s.pos.Y
	}
	if flags&0x04 != 0 {
		z += s.pos.Z
	}
	s.pos = Position{X: x, Y: y, Z: z}
	firstSpawn := !s.spawned
	s.spawned = true
	s.mu.Unlock()

	// The server expects the client to echo the accepted position back.
	buf := &bytes.Buffer{}
	writeFloat64(buf, x)
	writeFloat64(buf, y)
	writeFloat64(buf, z)
	writeFloat32(buf, yaw)
	writeFloat32(buf, pitch)
	writeBool(buf, true)
	if err := s.conn.writePacket(packetServerPosLook, buf.Bytes()); err != nil {
		return err
	}

	if firstSpawn && s.events.Spawned != nil {
		s.events.Spawned()
	}
	return nil
}

// finish tears the session down exactly once, reporting a transport error
// (when there is one) before the end notification.
func (s *Session) finish(err error) {
	s.endOnce.Do(func() {
		s.mu.Lock()
		closed := s.closed
		if s.jumpStop != nil {
			close(s.jumpStop)
			s.jumpStop = nil
		}
		s.mu.Unlock()

		if err != nil && !closed && s.events.Error != nil {
			s.events.Error(err)
		}
		s.conn.close()
		if s.events.End != nil {
			s.events.End()
		}
	})
}

// AwaitNextChat registers interest in the next inbound chat message and
// returns a channel that receives exactly that message. Registration is
// effective immediately, so a waiter set up before sending a command can
// never miss the reply. Only one waiter may exist at a time; it is consumed
// and removed atomically when the message arrives. The cancel function
// releases the waiter without consuming anything.
func (s *Session) AwaitNextChat() (<-chan ChatMessage, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatWait != nil {
		return nil, nil, errors.New("a chat waiter is already registered")
	}
	ch := make(chan ChatMessage, 1)
	s.chatWait = ch

	cancel := func() {
		s.mu.Lock()
		if s.chatWait == ch {
			s.chatWait = nil
		}
		s.mu.Unlock()
	}
	return ch, cancel, nil
}

func (s *Session) SendChat(text string) error {
	buf := &bytes.Buffer{}
	if err := writeString(buf, text); err != nil {
		return err
	}
	return s.conn.writePacket(packetServerChat, buf.Bytes())
}

// SetControlFlag holds or releases a persistent movement input. Sneak maps
// to an entity action; jump has no packet in this protocol version, so it
// is emulated by oscillating the feet position the way a jumping client
// reports it.
func (s *Session) SetControlFlag(flag ControlFlag, active bool) error {
	switch flag {
	case ControlSneak:
		action := int32(1) // stop sneaking
		if active {
			action = 0
		}
		s.mu.Lock()
		eid := s.entityID
		s.mu.Unlock()

		buf := &bytes.Buffer{}
		writeVarInt(buf, eid)
		writeVarInt(buf, action)
		writeVarInt(buf, 0)
		return s.conn.writePacket(packetEntityAction, buf.Bytes())

	case ControlJump:
		s.mu.Lock()
		defer s.mu.Unlock()
		if active {
			if s.jumpStop != nil {
				return nil
			}
			s.jumpStop = make(chan struct{})
			go s.jumpLoop(s.jumpStop)
			return nil
		}
		if s.jumpStop != nil {
			close(s.jumpStop)
			s.jumpStop = nil
		}
		return nil

	default:
		return fmt.Errorf("unknown control flag %q", flag)
	}
}

const (
	jumpApex     = 0.42
	jumpInterval = 800 * time.Millisecond
	jumpAirTime  = 200 * time.Millisecond
)

func (s *Session) jumpLoop(stop chan struct{}) {
	ticker := time.NewTicker(jumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			base := s.Position()
			up := base
			up.Y += jumpApex
			if err := s.sendPosition(up, false); err != nil {
				return
			}
			select {
			case <-stop:
				return
			case <-time.After(jumpAirTime):
			}
			if err := s.sendPosition(base, true); err != nil {
				return
			}
		}
	}
}

// UpdatePosition moves the player to an absolute position and records it.
func (s *Session) UpdatePosition(pos Position, onGround bool) error {
	if err := s.sendPosition(pos, onGround); err != nil {
		return err
	}
	s.mu.Lock()
	s.pos = pos
	s.mu.Unlock()
	return nil
}

func (s *Session) sendPosition(pos Position, onGround bool) error {
	buf := &bytes.Buffer{}
	writeFloat64(buf, pos.X)
	writeFloat64(buf, pos.Y)
	writeFloat64(buf, pos.Z)
	writeBool(buf, onGround)
	return s.conn.writePacket(packetServerPosition, buf.Bytes())
}

func (s *Session) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Close shuts the connection down. The read loop notices and fires the End
// event; the Error event is suppressed for deliberate closes.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.jumpStop != nil {
		close(s.jumpStop)
		s.jumpStop = nil
	}
	s.mu.Unlock()

	return s.conn.close()
}

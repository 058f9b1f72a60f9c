package mc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"testing"
	"time"
)

// scriptedServer speaks just enough protocol 47 to take one client through
// login and a short play sequence.
type scriptedServer struct {
	ln   net.Listener
	errc chan error
}

func startScriptedServer(t *testing.T, script func(sc *conn) error) *scriptedServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &scriptedServer{ln: ln, errc: make(chan error, 1)}
	t.Cleanup(func() { ln.Close() })

	go func() {
		nc, err := ln.Accept()
		if err != nil {
			srv.errc <- err
			return
		}
		defer nc.Close()
		srv.errc <- script(newConn(nc))
	}()
	return srv
}

func (s *scriptedServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *scriptedServer) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-s.errc:
		if err != nil {
			t.Fatalf("server script failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server script did not finish")
	}
}

// acceptLogin consumes handshake and login start, then completes the login
// state with compression enabled.
func acceptLogin(sc *conn, threshold int) (string, error) {
	hs, err := sc.readPacket()
	if err != nil {
		return "", fmt.Errorf("reading handshake: %w", err)
	}
	if hs.id != packetHandshake {
		return "", fmt.Errorf("first packet id %#x, want handshake", hs.id)
	}

	ls, err := sc.readPacket()
	if err != nil {
		return "", fmt.Errorf("reading login start: %w", err)
	}
	name, err := readString(bytes.NewReader(ls.data), maxPacketSize)
	if err != nil {
		return "", err
	}

	buf := &bytes.Buffer{}
	writeVarInt(buf, int32(threshold))
	if err := sc.writePacket(packetSetCompression, buf.Bytes()); err != nil {
		return "", err
	}
	sc.enableCompression(threshold)

	buf = &bytes.Buffer{}
	writeString(buf, "00000000-0000-0000-0000-000000000000")
	writeString(buf, name)
	return name, sc.writePacket(packetLoginSuccess, buf.Bytes())
}

func sendJoinGame(sc *conn, entityID int32) error {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.BigEndian, entityID)
	buf.Write([]byte{0, 0, 0, 20}) // gamemode, dimension, difficulty, max players
	writeString(buf, "default")
	writeBool(buf, false)
	return sc.writePacket(packetJoinGame, buf.Bytes())
}

func sendPosAndLook(sc *conn, x, y, z float64) error {
	buf := &bytes.Buffer{}
	writeFloat64(buf, x)
	writeFloat64(buf, y)
	writeFloat64(buf, z)
	writeFloat32(buf, 0)
	writeFloat32(buf, 0)
	buf.WriteByte(0) // all fields absolute
	return sc.writePacket(packetPosAndLook, buf.Bytes())
}

func sendChat(sc *conn, component string) error {
	buf := &bytes.Buffer{}
	writeString(buf, component)
	buf.WriteByte(0)
	return sc.writePacket(packetChatMessage, buf.Bytes())
}

func expectPacket(sc *conn, id int32) (packet, error) {
	p, err := sc.readPacket()
	if err != nil {
		return packet{}, err
	}
	if p.id != id {
		return packet{}, fmt.Errorf("packet id %#x, want %#x", p.id, id)
	}
	return p, nil
}

func TestSessionLoginPlayAndKick(t *testing.T) {
	srv := startScriptedServer(t, func(sc *conn) error {
		name, err := acceptLogin(sc, 64)
		if err != nil {
			return err
		}
		if name != "perchTest" {
			return fmt.Errorf("login start name %q, want perchTest", name)
		}

		if err := sendJoinGame(sc, 42); err != nil {
			return err
		}
		if err := sendPosAndLook(sc, 100, 64, -25); err != nil {
			return err
		}
		if _, err := expectPacket(sc, packetServerPosLook); err != nil {
			return fmt.Errorf("position echo: %w", err)
		}

		// Keep-alive must be echoed with the same id.
		buf := &bytes.Buffer{}
		writeVarInt(buf, 123)
		if err := sc.writePacket(packetKeepAlive, buf.Bytes()); err != nil {
			return err
		}
		ka, err := expectPacket(sc, packetServerKeepAlive)
		if err != nil {
			return fmt.Errorf("keep-alive echo: %w", err)
		}
		if id, _ := readVarInt(bytes.NewReader(ka.data)); id != 123 {
			return fmt.Errorf("keep-alive echo id %d, want 123", id)
		}

		// Wait for the client's command, then answer on the chat channel.
		p, err := expectPacket(sc, packetServerChat)
		if err != nil {
			return fmt.Errorf("client chat: %w", err)
		}
		cmd, err := readString(bytes.NewReader(p.data), maxPacketSize)
		if err != nil {
			return err
		}
		if cmd != "/login hunter2" {
			return fmt.Errorf("client sent %q, want /login hunter2", cmd)
		}
		if err := sendChat(sc, `{"text":"You have successfully logged in!"}`); err != nil {
			return err
		}

		buf = &bytes.Buffer{}
		writeString(buf, `{"text":"Banned for being afk"}`)
		return sc.writePacket(packetDisconnect, buf.Bytes())
	})

	spawned := make(chan struct{}, 1)
	chats := make(chan ChatMessage, 4)
	kicked := make(chan string, 1)
	ended := make(chan struct{}, 1)

	s, err := Dial("perchTest", Options{
		Host:            "127.0.0.1",
		Port:            srv.port(),
		ProtocolVersion: 47,
		Timeout:         2 * time.Second,
	}, Events{
		Spawned: func() { spawned <- struct{}{} },
		Chat:    func(msg ChatMessage) { chats <- msg },
		Kicked:  func(reason string) { kicked <- reason },
		End:     func() { ended <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()
	s.Run()

	select {
	case <-spawned:
	case <-time.After(2 * time.Second):
		t.Fatal("spawn event never fired")
	}
	if got := s.Position(); got != (Position{X: 100, Y: 64, Z: -25}) {
		t.Fatalf("position = %+v, want {100 64 -25}", got)
	}

	reply, cancelWait, err := s.AwaitNextChat()
	if err != nil {
		t.Fatalf("AwaitNextChat: %v", err)
	}
	defer cancelWait()
	if err := s.SendChat("/login hunter2"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	select {
	case msg := <-reply:
		if msg.Text != "You have successfully logged in!" {
			t.Fatalf("waiter received %q", msg.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chat waiter never received the reply")
	}
	select {
	case msg := <-chats:
		if msg.Text != "You have successfully logged in!" {
			t.Fatalf("chat event received %q", msg.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("chat event never fired")
	}

	select {
	case reason := <-kicked:
		if reason != "Banned for being afk" {
			t.Fatalf("kick reason = %q", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("kick event never fired")
	}
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("end event never fired")
	}

	srv.wait(t)
}

func TestDialRejectsOnlineModeServer(t *testing.T) {
	srv := startScriptedServer(t, func(sc *conn) error {
		if _, err := sc.readPacket(); err != nil {
			return err
		}
		if _, err := sc.readPacket(); err != nil {
			return err
		}
		// An encryption request means the server wants Mojang auth.
		buf := &bytes.Buffer{}
		writeString(buf, "")
		writeVarInt(buf, 0)
		writeVarInt(buf, 0)
		return sc.writePacket(packetEncryptionReq, buf.Bytes())
	})

	_, err := Dial("perchTest", Options{
		Host:            "127.0.0.1",
		Port:            srv.port(),
		ProtocolVersion: 47,
		Timeout:         2 * time.Second,
	}, Events{})
	if err != ErrOnlineMode {
		t.Fatalf("Dial error = %v, want ErrOnlineMode", err)
	}
	srv.wait(t)
}

func TestDialReportsLoginRejection(t *testing.T) {
	srv := startScriptedServer(t, func(sc *conn) error {
		if _, err := sc.readPacket(); err != nil {
			return err
		}
		if _, err := sc.readPacket(); err != nil {
			return err
		}
		buf := &bytes.Buffer{}
		writeString(buf, `{"text":"Server is full"}`)
		return sc.writePacket(packetLoginDisconnect, buf.Bytes())
	})

	_, err := Dial("perchTest", Options{
		Host:            "127.0.0.1",
		Port:            srv.port(),
		ProtocolVersion: 47,
		Timeout:         2 * time.Second,
	}, Events{})
	if err == nil {
		t.Fatal("Dial succeeded against a rejecting server")
	}
	if want := "Server is full"; !bytes.Contains([]byte(err.Error()), []byte(want)) {
		t.Fatalf("Dial error %q does not mention %q", err, want)
	}
	srv.wait(t)
}

package mc

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// Protocol 47 (1.8.x) packet IDs, the only version this client speaks.
// Servers that negotiate a different protocol reject the handshake.
const (
	// handshaking, serverbound
	packetHandshake = 0x00

	// login, serverbound
	packetLoginStart = 0x00

	// login, clientbound
	packetLoginDisconnect = 0x00
	packetEncryptionReq   = 0x01
	packetLoginSuccess    = 0x02
	packetSetCompression  = 0x03

	// play, clientbound
	packetKeepAlive    = 0x00
	packetJoinGame     = 0x01
	packetChatMessage  = 0x02
	packetUpdateHealth = 0x06
	packetPosAndLook   = 0x08
	packetDisconnect   = 0x40

	// play, serverbound
	packetServerKeepAlive = 0x00
	packetServerChat      = 0x01
	packetServerPosition  = 0x04
	packetServerPosLook   = 0x06
	packetEntityAction    = 0x0B
	packetClientStatus    = 0x16
)

const maxPacketSize = 1 << 21

type packet struct {
	id   int32
	data []byte
}

// conn frames packets over a TCP stream, switching to the compressed frame
// format once the server sends SetCompression during login.
type conn struct {
	net net.Conn
	r   *byteCountReader

	wmu       sync.Mutex
	threshold int // -1 while compression is off
}

// byteCountReader is a small buffered reader exposing ReadByte for varint
// decoding without pulling ahead of packet boundaries.
type byteCountReader struct {
	r   io.Reader
	buf [1]byte
}

func (b *byteCountReader) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *byteCountReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

func newConn(nc net.Conn) *conn {
	return &conn{
		net:       nc,
		r:         &byteCountReader{r: nc},
		threshold: -1,
	}
}

func (c *conn) enableCompression(threshold int) {
	c.wmu.Lock()
	c.threshold = threshold
	c.wmu.Unlock()
}

func (c *conn) readPacket() (packet, error) {
	length, err := readVarInt(c.r)
	if err != nil {
		return packet{}, err
	}
	if length <= 0 || length > maxPacketSize {
		return packet{}, fmt.Errorf("invalid packet length %d", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return packet{}, err
	}

	c.wmu.Lock()
	threshold := c.threshold
	c.wmu.Unlock()

	body := payload
	if threshold >= 0 {
		br := bytes.NewReader(payload)
		dataLength, err := readVarInt(br)
		if err != nil {
			return packet{}, err
		}
		rest := payload[len(payload)-br.Len():]
		if dataLength > 0 {
			if dataLength > maxPacketSize {
				return packet{}, fmt.Errorf("invalid uncompressed length %d", dataLength)
			}
			zr, err := zlib.NewReader(bytes.NewReader(rest))
			if err != nil {
				return packet{}, fmt.Errorf("opening compressed packet: %w", err)
			}
			body = make([]byte, dataLength)
			if _, err := io.ReadFull(zr, body); err != nil {
				zr.Close()
				return packet{}, fmt.Errorf("inflating packet: %w", err)
			}
			zr.Close()
		} else {
			body = rest
		}
	}

	br := bytes.NewReader(body)
	id, err := readVarInt(br)
	if err != nil {
		return packet{}, err
	}
	data := body[len(body)-br.Len():]

	return packet{id: id, data: data}, nil
}

func (c *conn) writePacket(id int32, data []byte) error {
	body := make([]byte, 0, varIntSize(id)+len(data))
	buf := bytes.NewBuffer(body)
	if err := writeVarInt(buf, id); err != nil {
		return err
	}
	buf.Write(data)

	c.wmu.Lock()
	defer c.wmu.Unlock()

	frame := &bytes.Buffer{}
	if c.threshold >= 0 {
		if buf.Len() < c.threshold {
			// Below threshold: dataLength 0 marks an uncompressed body.
			writeVarInt(frame, 0)
			frame.Write(buf.Bytes())
		} else {
			compressed := &bytes.Buffer{}
			zw := zlib.NewWriter(compressed)
			if _, err := zw.Write(buf.Bytes()); err != nil {
				return err
			}
			if err := zw.Close(); err != nil {
				return err
			}
			writeVarInt(frame, int32(buf.Len()))
			frame.Write(compressed.Bytes())
		}
	} else {
		frame.Write(buf.Bytes())
	}

	out := &bytes.Buffer{}
	writeVarInt(out, int32(frame.Len()))
	frame.WriteTo(out)

	_, err := c.net.Write(out.Bytes())
	return err
}

func (c *conn) close() error {
	return c.net.Close()
}

package usbtmc

import (
	"encoding/binary"
	"fmt"
)

// Bulk message ids from the USBTMC 1.0 class specification.
const (
	msgDevDepOut   byte = 1
	msgRequestIn   byte = 2
	msgDevDepIn    byte = 2
	headerSize          = 12
	attrEOM        byte = 0x01
	attrTermCharEn byte = 0x02
)

type header struct {
	msgID byte
	tag   byte
	size  uint32
	attr  byte
}

func (h header) eom() bool { return h.attr&attrEOM != 0 }

func (h header) encode(termChar byte) []byte {
	b := make([]byte, headerSize)
	b[0] = h.msgID
	b[1] = h.tag
	b[2] = ^h.tag
	binary.LittleEndian.PutUint32(b[4:8], h.size)
	b[8] = h.attr
	b[9] = termChar
	return b
}

// encodeOut frames data as a single DEV_DEP_MSG_OUT transfer with EOM set,
// padded to a four byte boundary.
func encodeOut(tag byte, data []byte) []byte {
	h := header{msgID: msgDevDepOut, tag: tag, size: uint32(len(data)), attr: attrEOM}
	b := append(h.encode(0), data...)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// encodeRequestIn asks the device to send up to max bytes. A non-zero term
// ends the transfer early on that character.
func encodeRequestIn(tag byte, max uint32, term byte) []byte {
	h := header{msgID: msgRequestIn, tag: tag, size: max}
	if term != 0 {
		h.attr = attrTermCharEn
	}
	return h.encode(term)
}

func decodeIn(b []byte, tag byte) (header, []byte, error) {
	if len(b) < headerSize {
		return header{}, nil, fmt.Errorf("short usbtmc header: %d bytes", len(b))
	}
	h := header{
		msgID: b[0],
		tag:   b[1],
		size:  binary.LittleEndian.Uint32(b[4:8]),
		attr:  b[8],
	}
	if h.msgID != msgDevDepIn {
		return h, nil, fmt.Errorf("unexpected usbtmc message id %d", h.msgID)
	}
	if h.tag != tag || b[2] != ^tag {
		return h, nil, fmt.Errorf("usbtmc tag mismatch: sent %d, got %d/%d", tag, h.tag, b[2])
	}
	return h, b[headerSize:], nil
}

package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// Frame layout:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
// crc covers header and payload.
const (
	frameHeaderSize = 1 + 8 + 8 + 4
	frameCRCSize    = 4

	// maxPayloadSize bounds a single record so a corrupt length field
	// cannot trigger a huge allocation.
	maxPayloadSize = 16 << 20
)

var errCRCMismatch = errors.New("wal: crc mismatch")

type walRecord struct {
	Type domain.EventType
	Seq  uint64
	Time int64
	Data []byte
}

func encodeFrame(r walRecord) []byte {
	payloadLen := uint32(len(r.Data))
	buf := make([]byte, frameHeaderSize+int(payloadLen)+frameCRCSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[frameHeaderSize:], r.Data)

	end := frameHeaderSize + int(payloadLen)
	binary.BigEndian.PutUint32(buf[end:], crc32.ChecksumIEEE(buf[:end]))
	return buf
}

// readFrame reads one frame. It returns io.EOF at a clean end of input and
// io.ErrUnexpectedEOF when the input ends inside a frame.
func readFrame(r io.Reader) (walRecord, int64, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return walRecord{}, 0, err
	}

	payloadLen := binary.BigEndian.Uint32(header[17:21])
	if payloadLen > maxPayloadSize {
		return walRecord{}, 0, fmt.Errorf("wal: record length %d exceeds limit", payloadLen)
	}

	body := make([]byte, int(payloadLen)+frameCRCSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return walRecord{}, 0, err
	}

	payload := body[:payloadLen]
	sum := binary.BigEndian.Uint32(body[payloadLen:])

	h := crc32.NewIEEE()
	h.Write(header)
	h.Write(payload)
	if h.Sum32() != sum {
		return walRecord{}, 0, errCRCMismatch
	}

	return walRecord{
		Type: domain.EventType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, int64(frameHeaderSize + len(body)), nil
}

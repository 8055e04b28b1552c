package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/rl1809/nft-market/internal/core/domain"
)

// Snapshot file layout:
// [magic:4][version:1][blake3(body):32][body]
// body is zstd-compressed CBOR of domain.LedgerState.
const (
	snapshotFile    = "ledger.snapshot"
	snapshotVersion = 1
)

var (
	snapshotMagic = []byte("MKSN")

	ErrSnapshotCorrupt = errors.New("snapshot corrupt")
)

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("storage: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("storage: zstd decoder initialization failed: " + err.Error())
	}
}

type FileSnapshotStore struct {
	dir string
}

func NewFileSnapshotStore(dir string) (*FileSnapshotStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	return &FileSnapshotStore{dir: dir}, nil
}

func (s *FileSnapshotStore) Save(ctx context.Context, state domain.LedgerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := encMode.Marshal(state)
	if err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	body := zstdEncoder.EncodeAll(raw, nil)
	sum := blake3.Sum256(body)

	var buf bytes.Buffer
	buf.Grow(len(snapshotMagic) + 1 + len(sum) + len(body))
	buf.Write(snapshotMagic)
	buf.WriteByte(snapshotVersion)
	buf.Write(sum[:])
	buf.Write(body)

	tmp, err := os.CreateTemp(s.dir, snapshotFile+".tmp-*")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, snapshotFile)); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

func (s *FileSnapshotStore) Load(ctx context.Context) (*domain.LedgerState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}

	headerSize := len(snapshotMagic) + 1 + 32
	if len(data) < headerSize || !bytes.Equal(data[:len(snapshotMagic)], snapshotMagic) {
		return nil, fmt.Errorf("%w: bad header", ErrSnapshotCorrupt)
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrSnapshotCorrupt, v)
	}

	var want [32]byte
	copy(want[:], data[len(snapshotMagic)+1:headerSize])
	body := data[headerSize:]
	if blake3.Sum256(body) != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}

	raw, err := zstdDecoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", ErrSnapshotCorrupt, err)
	}

	var state domain.LedgerState
	if err := decMode.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSnapshotCorrupt, err)
	}
	return &state, nil
}

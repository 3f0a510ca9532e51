package nn

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"time"

	"github.com/born-ml/tumorclf/internal/tensor"
)

// checkpointMagic identifies checkpoint files.
const checkpointMagic = "TCLF"

// CheckpointVersion is the current checkpoint format version.
const CheckpointVersion uint32 = 1

// Checkpoint errors.
var (
	ErrBadMagic        = errors.New("checkpoint: invalid magic")
	ErrVersion         = errors.New("checkpoint: unsupported version")
	ErrStateMismatch   = errors.New("checkpoint: state does not match model")
	ErrCorruptedHeader = errors.New("checkpoint: corrupted header")
)

// StateHolder is a module that exposes its full state by name.
type StateHolder interface {
	StateDict() map[string]*tensor.Tensor
}

// CheckpointHeader is the JSON header written before the tensor payload.
type CheckpointHeader struct {
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Tensors   []TensorEntry     `json:"tensors"`
}

// TensorEntry locates one tensor in the payload.
//
// Offset is counted in float32 elements from the start of the payload.
type TensorEntry struct {
	Name   string `json:"name"`
	Shape  []int  `json:"shape"`
	Offset int64  `json:"offset"`
}

// SaveCheckpoint writes the state of m to path.
//
// File format:
//
//	[4 bytes]  magic "TCLF"
//	[4 bytes]  version (uint32, little-endian)
//	[8 bytes]  header length (uint64, little-endian)
//	[N bytes]  JSON header
//	[M bytes]  float32 payload, little-endian, in header order
func SaveCheckpoint(path string, m StateHolder, metadata map[string]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := WriteCheckpoint(w, m, metadata); err != nil {
		_ = f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush checkpoint: %w", err)
	}
	return f.Close()
}

// WriteCheckpoint writes the state of m to w.
func WriteCheckpoint(w io.Writer, m StateHolder, metadata map[string]string) error {
	state := m.StateDict()
	names := sortedKeys(state)

	header := CheckpointHeader{
		CreatedAt: time.Now().UTC(),
		Metadata:  metadata,
		Tensors:   make([]TensorEntry, 0, len(names)),
	}
	var offset int64
	for _, name := range names {
		t := state[name]
		header.Tensors = append(header.Tensors, TensorEntry{
			Name:   name,
			Shape:  []int(t.Shape().Clone()),
			Offset: offset,
		})
		offset += int64(t.NumElements())
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal checkpoint header: %w", err)
	}

	if _, err := io.WriteString(w, checkpointMagic); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, CheckpointVersion); err != nil {
		return fmt.Errorf("write version: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return fmt.Errorf("write header length: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	buf := make([]byte, 4)
	for _, name := range names {
		for _, v := range state[name].Data() {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			if _, err := w.Write(buf); err != nil {
				return fmt.Errorf("write tensor %s: %w", name, err)
			}
		}
	}
	return nil
}

// LoadCheckpoint restores the state of m from path.
//
// Every tensor of m must be present in the file with the same shape.
func LoadCheckpoint(path string, m StateHolder) (*CheckpointHeader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	return ReadCheckpoint(bufio.NewReader(f), m)
}

// ReadCheckpoint restores the state of m from r.
func ReadCheckpoint(r io.Reader, m StateHolder) (*CheckpointHeader, error) {
	magic := make([]byte, len(checkpointMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != checkpointMagic {
		return nil, ErrBadMagic
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != CheckpointVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}

	var headerLen uint64
	if err := binary.Read(r, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if headerLen > 64<<20 {
		return nil, fmt.Errorf("%w: header length %d", ErrCorruptedHeader, headerLen)
	}
	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(r, headerJSON); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var header CheckpointHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptedHeader, err)
	}

	state := m.StateDict()
	if len(header.Tensors) != len(state) {
		return nil, fmt.Errorf("%w: file has %d tensors, model has %d",
			ErrStateMismatch, len(header.Tensors), len(state))
	}

	// Entries are written in payload order, so reading sequentially is enough.
	sort.Slice(header.Tensors, func(i, j int) bool {
		return header.Tensors[i].Offset < header.Tensors[j].Offset
	})
	buf := make([]byte, 4)
	var offset int64
	for _, entry := range header.Tensors {
		dst, ok := state[entry.Name]
		if !ok {
			return nil, fmt.Errorf("%w: unexpected tensor %q", ErrStateMismatch, entry.Name)
		}
		if !dst.Shape().Equal(tensor.Shape(entry.Shape)) {
			return nil, fmt.Errorf("%w: tensor %q has shape %v, model expects %v",
				ErrStateMismatch, entry.Name, entry.Shape, dst.Shape())
		}
		if entry.Offset != offset {
			return nil, fmt.Errorf("%w: tensor %q at offset %d, expected %d",
				ErrCorruptedHeader, entry.Name, entry.Offset, offset)
		}
		data := dst.Data()
		for i := range data {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, fmt.Errorf("read tensor %s: %w", entry.Name, err)
			}
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf))
		}
		offset += int64(len(data))
	}
	return &header, nil
}

func sortedKeys(m map[string]*tensor.Tensor) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

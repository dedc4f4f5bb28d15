package source

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/internal/ports"
)

// Frame files store frames as [8 bytes seq][4 bytes len][len bytes payload],
// big endian, seq strictly increasing from 1.
const frameHeaderLen = 12

// FrameWriter appends frames to a frame file. Opening an existing file
// truncates a torn trailing frame and resumes the sequence.
type FrameWriter struct {
	mu        sync.Mutex
	path      string
	file      *os.File
	writer    *bufio.Writer
	lastSeq   uint64
	sizeBytes int64
}

func OpenFrameWriter(path string) (*FrameWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	w := &FrameWriter{path: path, file: f}
	if err := w.scanExisting(); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(w.sizeBytes, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	w.writer = bufio.NewWriterSize(f, 1<<20)
	return w, nil
}

func (w *FrameWriter) scanExisting() error {
	var (
		lastSeq uint64
		offset  int64
	)
	err := scanFrames(bufio.NewReader(w.file), func(seq uint64, payload []byte) error {
		lastSeq = seq
		offset += frameHeaderLen + int64(len(payload))
		return nil
	})
	if err != nil && !errors.Is(err, errTornFrame) {
		return err
	}
	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	w.lastSeq = lastSeq
	w.sizeBytes = offset
	return nil
}

// Append buffers one frame and returns its sequence number.
func (w *FrameWriter) Append(frame []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.lastSeq + 1
	var hdr [frameHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[0:8], seq)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(frame)))

	if _, err := w.writer.Write(hdr[:]); err != nil {
		return 0, err
	}
	if _, err := w.writer.Write(frame); err != nil {
		return 0, err
	}
	w.lastSeq = seq
	w.sizeBytes += int64(len(frame) + len(hdr))
	return seq, nil
}

// Flush writes buffered frames and syncs the file.
func (w *FrameWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *FrameWriter) Close() error {
	if err := w.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// LastSeq is the sequence number of the last appended frame.
func (w *FrameWriter) LastSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// SizeBytes is the file size including buffered frames.
func (w *FrameWriter) SizeBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sizeBytes
}

var errTornFrame = errors.New("torn frame")

// scanFrames calls fn for every complete frame in r. A partial trailing
// frame ends the scan with errTornFrame.
func scanFrames(r io.Reader, fn func(seq uint64, payload []byte) error) error {
	for {
		var hdr [frameHeaderLen]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornFrame
			}
			return fmt.Errorf("frame header: %w", err)
		}
		seq := binary.BigEndian.Uint64(hdr[0:8])
		length := binary.BigEndian.Uint32(hdr[8:12])

		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return errTornFrame
			}
			return fmt.Errorf("frame body: %w", err)
		}
		if err := fn(seq, payload); err != nil {
			return err
		}
	}
}

type FrameFileConfig struct {
	Path    string `yaml:"path"`
	FromSeq uint64 `yaml:"from_seq"`
}

// FrameFile replays the frames of a frame file, from FromSeq on, to one
// attached pipeline.
type FrameFile struct {
	name string
	cfg  FrameFileConfig
	log  logrus.FieldLogger

	attached atomic.Bool
	lastSeq  atomic.Uint64
}

func NewFrameFile(name string, cfg FrameFileConfig, log logrus.FieldLogger) (*FrameFile, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("source %s: path is required", name)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &FrameFile{name: name, cfg: cfg, log: log.WithField("source", name)}, nil
}

func (f *FrameFile) Name() string {
	return f.name
}

// LastSeq is the sequence number of the last frame handed to the pipeline.
func (f *FrameFile) LastSeq() uint64 {
	return f.lastSeq.Load()
}

func (f *FrameFile) Start(ctx context.Context, out chan<- []byte) error {
	if !f.attached.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s", ports.ErrAlreadyAttached, f.name)
	}
	file, err := os.Open(f.cfg.Path)
	if err != nil {
		return fmt.Errorf("source %s: %w", f.name, err)
	}
	defer file.Close()

	err = scanFrames(bufio.NewReader(file), func(seq uint64, payload []byte) error {
		if seq < f.cfg.FromSeq {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- payload:
		}
		f.lastSeq.Store(seq)
		return nil
	})
	if errors.Is(err, errTornFrame) {
		f.log.WithField("last_seq", f.lastSeq.Load()).Warn("frame file ends with a torn frame")
		return nil
	}
	return err
}

var _ ports.Source = (*FrameFile)(nil)

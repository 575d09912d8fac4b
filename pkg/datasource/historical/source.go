package historical

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/exp/mmap"
)

// ErrOutOfRange is returned when a record index lies past the end of the file.
var ErrOutOfRange = errors.New("record index out of range")

// Source decodes fixed size records of T from a memory mapped file written
// by WriteCandles. T must have a fixed binary size.
type Source[T any] struct {
	dataSourceName string
	recordSize     int
	reader         *mmap.ReaderAt
	buffers        sync.Pool
}

func NewSource[T any](dataSourceName string) *Source[T] {
	s := &Source[T]{
		dataSourceName: dataSourceName,
		recordSize:     binary.Size(new(T)),
	}
	s.buffers.New = func() any {
		buffer := make([]byte, s.recordSize)
		return &buffer
	}
	return s
}

func (s *Source[T]) Open() error {
	if s.recordSize <= 0 {
		return fmt.Errorf("record type of %q has no fixed size", s.dataSourceName)
	}
	reader, err := mmap.Open(s.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", s.dataSourceName, err)
	}
	if reader.Len()%s.recordSize != 0 {
		_ = reader.Close()
		return fmt.Errorf("data source %q is truncated: %d bytes is not a multiple of %d",
			s.dataSourceName, reader.Len(), s.recordSize)
	}
	s.reader = reader
	return nil
}

func (s *Source[T]) Close() error {
	if s.reader == nil {
		return nil
	}
	err := s.reader.Close()
	s.reader = nil
	return err
}

// Read decodes the record at index into data.
func (s *Source[T]) Read(index int64, data *T) error {
	count, err := s.EntryCount()
	if err != nil {
		return err
	}
	if index < 0 || index >= count {
		return ErrOutOfRange
	}

	buffer := s.buffers.Get().(*[]byte)
	defer s.buffers.Put(buffer)

	if _, err := s.reader.ReadAt(*buffer, index*int64(s.recordSize)); err != nil {
		return fmt.Errorf("unable to read record %d: %w", index, err)
	}
	if _, err := binary.Decode(*buffer, binary.NativeEndian, data); err != nil {
		return fmt.Errorf("unable to decode record %d: %w", index, err)
	}
	return nil
}

func (s *Source[T]) EntryCount() (int64, error) {
	if s.reader == nil {
		return 0, fmt.Errorf("data source %q is not open", s.dataSourceName)
	}
	return int64(s.reader.Len() / s.recordSize), nil
}

package store

import (
	"encoding/binary"

	"github.com/conflux-sh/conflux/internal/confluxerr"
)

// GetMetaUint64 reads an 8-byte big-endian scalar from FamilyMeta, returning
// (0, false, nil) if the tag is absent.
func (s *Store) GetMetaUint64(tag string) (uint64, bool, error) {
	v, err := s.Get(FamilyMeta, []byte(tag))
	if err != nil {
		if code, ok := confluxerr.CodeOf(err); ok && code == confluxerr.CodeNotFound {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(v) != 8 {
		return 0, false, confluxerr.New(confluxerr.CodeCorruption, "meta tag %s: expected 8 bytes, got %d", tag, len(v))
	}
	return binary.BigEndian.Uint64(v), true, nil
}

// PutMetaUint64Op returns the Op that writes an 8-byte big-endian scalar
// into FamilyMeta under tag.
func PutMetaUint64Op(tag string, value uint64) Op {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, value)
	return Put(FamilyMeta, []byte(tag), b)
}

// GetMetaBytes reads a raw byte blob from FamilyMeta.
func (s *Store) GetMetaBytes(tag string) ([]byte, bool, error) {
	v, err := s.Get(FamilyMeta, []byte(tag))
	if err != nil {
		if code, ok := confluxerr.CodeOf(err); ok && code == confluxerr.CodeNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// PutMetaBytesOp returns the Op that writes a raw byte blob into FamilyMeta.
func PutMetaBytesOp(tag string, value []byte) Op {
	return Put(FamilyMeta, []byte(tag), value)
}

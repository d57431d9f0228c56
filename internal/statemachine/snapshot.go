package statemachine

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/conflux-sh/conflux/internal/confluxerr"
	"github.com/conflux-sh/conflux/internal/store"
)

// snapshotMagic identifies a Conflux state-machine snapshot stream.
const snapshotMagic = "CONFLUXSNAP"

// snapshotSchemaVersion versions the on-wire snapshot frame:
// [magic][schema_version][meta scalars][membership][entries...][crc32].
const snapshotSchemaVersion uint8 = 1

// snapshotFamilies lists, in a fixed order, every family a snapshot carries.
// FamilyIdempotency rides along so a replica bootstrapped from a snapshot
// still replays cached responses for keys applied before the snapshot.
// FamilyMeta is not listed: only the meta keys needed to resume
// (last_applied, next_config_id, next_proposal_id) are embedded explicitly
// in the frame header rather than streamed as raw meta KVs.
var snapshotFamilies = []store.Family{
	store.FamilyConfig,
	store.FamilyVersion,
	store.FamilyNameIndex,
	store.FamilyProposal,
	store.FamilyIdempotency,
}

// buildSnapshot streams the full state machine contents to w in the
// framed format above, reading off a consistent point-in-time store
// snapshot so building never blocks concurrent apply. The frame is
// zstd-compressed; configuration payloads are text-heavy and compress
// well.
func (m *Machine) buildSnapshot(w io.Writer, stop <-chan struct{}) error {
	snap := m.s.NewSnapshot()
	defer func() { _ = snap.Close() }()

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "open snapshot compressor")
	}
	defer zw.Close()

	bw := bufio.NewWriterSize(zw, 1<<20)

	if _, err := bw.WriteString(snapshotMagic); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "write snapshot magic")
	}
	if err := bw.WriteByte(snapshotSchemaVersion); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "write snapshot schema version")
	}

	lastApplied, _, err := m.s.GetMetaUint64(store.MetaLastApplied)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read last_applied for snapshot")
	}
	nextConfigID, _, err := m.s.GetMetaUint64(store.MetaNextConfigID)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read next_config_id for snapshot")
	}
	nextProposalID, _, err := m.s.GetMetaUint64(store.MetaNextProposalID)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read next_proposal_id for snapshot")
	}
	membership, _, err := m.s.GetMetaBytes(store.MetaMembership)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read membership for snapshot")
	}

	if err := writeUint64(bw, lastApplied); err != nil {
		return err
	}
	if err := writeUint64(bw, nextConfigID); err != nil {
		return err
	}
	if err := writeUint64(bw, nextProposalID); err != nil {
		return err
	}
	if err := writeBytes(bw, membership); err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	tee := io.MultiWriter(bw, crc)

	for _, fam := range snapshotFamilies {
		select {
		case <-stop:
			return confluxerr.New(confluxerr.CodeUnavailable, "snapshot build canceled")
		default:
		}
		if err := writeByte(tee, byte(fam)); err != nil {
			return err
		}
		var entryCount uint64
		var entries []store.KV
		scanErr := store.IteratePrefix(snap, fam, func(kv store.KV) bool {
			entries = append(entries, kv)
			return true
		})
		if scanErr != nil {
			return confluxerr.Wrap(confluxerr.CodeStorageFailure, scanErr, "scan family %d for snapshot", fam)
		}
		entryCount = uint64(len(entries))
		if err := writeUint64(tee, entryCount); err != nil {
			return err
		}
		for _, kv := range entries {
			select {
			case <-stop:
				return confluxerr.New(confluxerr.CodeUnavailable, "snapshot build canceled")
			default:
			}
			if err := writeBytes(tee, kv.Key); err != nil {
				return err
			}
			if err := writeBytes(tee, kv.Value); err != nil {
				return err
			}
		}
	}

	if err := binary.Write(bw, binary.BigEndian, crc.Sum32()); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "write snapshot trailer checksum")
	}
	if err := bw.Flush(); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "flush snapshot writer")
	}
	return nil
}

// installSnapshot validates the frame (magic, schema version, checksum)
// before touching any live state, then replaces each carried family's
// contents with the streamed entries and updates meta.last_applied and
// membership. The caller (RecoverFromSnapshot) rebuilds in-memory indexes
// from the freshly installed families afterward.
func (m *Machine) installSnapshot(r io.Reader, stop <-chan struct{}) error {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeCorruption, err, "open snapshot decompressor")
	}
	defer zr.Close()

	br := bufio.NewReaderSize(zr, 1<<20)

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return confluxerr.Wrap(confluxerr.CodeCorruption, err, "read snapshot magic")
	}
	if string(magic) != snapshotMagic {
		return confluxerr.New(confluxerr.CodeCorruption, "snapshot magic mismatch")
	}
	version, err := br.ReadByte()
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeCorruption, err, "read snapshot schema version")
	}
	if version != snapshotSchemaVersion {
		return confluxerr.New(confluxerr.CodeSchemaMismatch, "unsupported snapshot schema version %d", version)
	}

	lastApplied, err := readUint64(br)
	if err != nil {
		return err
	}
	nextConfigID, err := readUint64(br)
	if err != nil {
		return err
	}
	nextProposalID, err := readUint64(br)
	if err != nil {
		return err
	}
	membership, err := readBytes(br)
	if err != nil {
		return err
	}

	crc := crc32.NewIEEE()
	tee := io.TeeReader(br, crc)

	type famEntries struct {
		fam     store.Family
		entries []store.KV
	}
	var perFamily []famEntries

	for range snapshotFamilies {
		select {
		case <-stop:
			return confluxerr.New(confluxerr.CodeUnavailable, "snapshot install canceled")
		default:
		}
		famByte, err := readByte(tee)
		if err != nil {
			return err
		}
		count, err := readUint64(tee)
		if err != nil {
			return err
		}
		entries := make([]store.KV, 0, count)
		for i := uint64(0); i < count; i++ {
			key, err := readBytes(tee)
			if err != nil {
				return err
			}
			value, err := readBytes(tee)
			if err != nil {
				return err
			}
			entries = append(entries, store.KV{Key: key, Value: value})
		}
		perFamily = append(perFamily, famEntries{fam: store.Family(famByte), entries: entries})
	}

	var wantCRC uint32
	if err := binary.Read(br, binary.BigEndian, &wantCRC); err != nil {
		return confluxerr.Wrap(confluxerr.CodeCorruption, err, "read snapshot trailer checksum")
	}
	if crc.Sum32() != wantCRC {
		return confluxerr.New(confluxerr.CodeCorruption, "snapshot checksum mismatch")
	}

	// Validation complete; nothing above has touched live state. Now
	// replace each family's contents, family by family in bounded batches,
	// then commit the meta bookkeeping in a final batch of its own. The
	// install as a whole is not one atomic batch.
	for _, fe := range perFamily {
		if err := m.replaceFamily(fe.fam, fe.entries); err != nil {
			return err
		}
	}
	finalOps := []store.Op{
		store.PutMetaUint64Op(store.MetaLastApplied, lastApplied),
		store.PutMetaUint64Op(store.MetaNextConfigID, nextConfigID),
		store.PutMetaUint64Op(store.MetaNextProposalID, nextProposalID),
	}
	if membership != nil {
		finalOps = append(finalOps, store.PutMetaBytesOp(store.MetaMembership, membership))
	}
	if err := m.s.WriteBatch(finalOps); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "commit snapshot meta")
	}
	return nil
}

// replaceFamily deletes every existing key in fam and bulk-loads entries, in
// batches bounded by replaceFamilyBatchSize so a single pebble batch never
// holds an entire large snapshot in memory.
const replaceFamilyBatchSize = 4096

func (m *Machine) replaceFamily(fam store.Family, entries []store.KV) error {
	var existing [][]byte
	err := store.IteratePrefix(m.s, fam, func(kv store.KV) bool {
		existing = append(existing, append([]byte(nil), kv.Key...))
		return true
	})
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "scan family %d before snapshot install", fam)
	}

	ops := make([]store.Op, 0, replaceFamilyBatchSize)
	flush := func() error {
		if len(ops) == 0 {
			return nil
		}
		if err := m.s.WriteBatch(ops); err != nil {
			return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "install family %d batch", fam)
		}
		ops = ops[:0]
		return nil
	}

	for _, k := range existing {
		ops = append(ops, store.Del(fam, k))
		if len(ops) >= replaceFamilyBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	for _, kv := range entries {
		ops = append(ops, store.Put(fam, kv.Key, kv.Value))
		if len(ops) >= replaceFamilyBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func writeByte(w io.Writer, b byte) error {
	if _, err := w.Write([]byte{b}); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "write snapshot byte")
	}
	return nil
}

func writeUint64(w io.Writer, v uint64) error {
	if err := binary.Write(w, binary.BigEndian, v); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "write snapshot uint64")
	}
	return nil
}

func writeBytes(w io.Writer, b []byte) error {
	if err := writeUint64(w, uint64(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "write snapshot bytes")
	}
	return nil
}

func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, confluxerr.Wrap(confluxerr.CodeCorruption, err, "read snapshot byte")
	}
	return b[0], nil
}

func readUint64(r io.Reader) (uint64, error) {
	var v uint64
	if err := binary.Read(r, binary.BigEndian, &v); err != nil {
		return 0, confluxerr.Wrap(confluxerr.CodeCorruption, err, "read snapshot uint64")
	}
	return v, nil
}

func readBytes(r io.Reader) ([]byte, error) {
	n, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, confluxerr.Wrap(confluxerr.CodeCorruption, err, "read snapshot bytes")
	}
	return b, nil
}

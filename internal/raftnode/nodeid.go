package raftnode

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/conflux-sh/conflux/internal/confluxerr"
)

// nodeIDFileName is written inside the data directory next to the store's
// own files, a UTF-8 decimal replica id.
const nodeIDFileName = "node_id"

// EnsureNodeIDFile stamps the data directory with this node's id, or
// verifies the existing stamp. A mismatch means the directory belongs to a
// different replica; starting on top of another replica's Raft state would
// corrupt the cluster, so it is refused outright.
func EnsureNodeIDFile(dataDir string, nodeID uint64) error {
	path := filepath.Join(dataDir, nodeIDFileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dataDir, 0o755); mkErr != nil {
			return confluxerr.Wrap(confluxerr.CodeStorageFailure, mkErr, "create data dir %s", dataDir)
		}
		if wrErr := os.WriteFile(path, []byte(strconv.FormatUint(nodeID, 10)), 0o644); wrErr != nil {
			return confluxerr.Wrap(confluxerr.CodeStorageFailure, wrErr, "write node_id file")
		}
		return nil
	}
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeStorageFailure, err, "read node_id file")
	}

	stamped, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return confluxerr.Wrap(confluxerr.CodeCorruption, err, "parse node_id file %s", path)
	}
	if stamped != nodeID {
		return confluxerr.New(confluxerr.CodePreconditionFailed,
			"data dir %s belongs to node %d, not node %d", dataDir, stamped, nodeID)
	}
	return nil
}

// Package shardfile validates the developer-tooling filename convention for
// exported sealed shards, grounded on
// original_source/.../utils/filesname.rs.
package shardfile

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vault-custody/custody-engine/custodyerr"
)

// Metadata is what a valid shard filename reveals about its contents.
type Metadata struct {
	ParticipantID uint8
	Filename      string
}

// Validate enforces the "shard_<u8>.bin" filename convention. Any other
// shape, including a non-numeric or out-of-range index, fails with
// InvalidArgument.
func Validate(path string) (Metadata, error) {
	filename := filepath.Base(path)
	if filename == "." || filename == string(filepath.Separator) {
		return Metadata{}, custodyerr.New(custodyerr.InvalidArgument, "shardfile.Validate", "missing shard filename")
	}

	const prefix = "shard_"
	const suffix = ".bin"
	if !strings.HasPrefix(filename, prefix) || !strings.HasSuffix(filename, suffix) {
		return Metadata{}, custodyerr.Newf(custodyerr.InvalidArgument, "shardfile.Validate", "filename %q must match shard_<u8>.bin", filename)
	}

	indexPart := strings.TrimSuffix(strings.TrimPrefix(filename, prefix), suffix)
	if indexPart == "" || strings.Contains(indexPart, "_") || strings.Contains(indexPart, ".") {
		return Metadata{}, custodyerr.Newf(custodyerr.InvalidArgument, "shardfile.Validate", "filename %q must match shard_<u8>.bin", filename)
	}

	id, err := strconv.ParseUint(indexPart, 10, 8)
	if err != nil {
		return Metadata{}, custodyerr.Newf(custodyerr.InvalidArgument, "shardfile.Validate", "shard index %q is not a valid u8: %v", indexPart, err)
	}

	return Metadata{ParticipantID: uint8(id), Filename: filename}, nil
}

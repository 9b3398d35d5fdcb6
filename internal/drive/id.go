package drive

import (
	"github.com/foldsync/core/internal/kdf"
	"github.com/foldsync/core/internal/model"
)

// NewID generates a content-unique DriveId by hashing
// (owner_node_id ‖ path_bytes ‖ creation_millis), per spec.md §3.
func NewID(owner model.NodeID, path string, creationMillis int64) model.DriveID {
	buf := make([]byte, 0, len(owner)+len(path)+8)
	buf = append(buf, owner[:]...)
	buf = append(buf, []byte(path)...)
	u := uint64(creationMillis)
	buf = append(buf, byte(u), byte(u>>8), byte(u>>16), byte(u>>24), byte(u>>32), byte(u>>40), byte(u>>48), byte(u>>56))
	return model.DriveID(kdf.Sum256(buf))
}

// Package proto defines the coordinator's wire messages and their encoding.
package proto

// Commands understood by the coordinator. Any other command string is accepted on the wire and
// answered with an empty placement list.
const (
	CmdUpload   = "UPLOAD_REQUEST"
	CmdDownload = "DOWNLOAD_REQUEST"
)

// ChunkPlacement says which storage node holds (or should receive) one chunk of a file.
type ChunkPlacement struct {
	ChunkID     string   `json:"chunk_id"`           // "<filename>_chunk_<index>"
	NodeAddress string   `json:"node_address"`       // host:port of the storage node
	Replicas    []string `json:"replicas,omitempty"` // every node selected for the chunk, when enabled
}

// Request is one decoded client request.
type Request struct {
	Command        string
	Filename       string
	NumberOfChunks int // only meaningful for CmdUpload
}

// IsUpload reports whether the request carries a chunk count on the wire.
func (r Request) IsUpload() bool {
	return r.Command == CmdUpload
}

// ClonePlacements returns a copy of ps that shares no backing arrays with it.
// A nil input yields an empty, non-nil slice.
func ClonePlacements(ps []ChunkPlacement) []ChunkPlacement {
	out := make([]ChunkPlacement, len(ps))
	for i, p := range ps {
		out[i] = p
		if p.Replicas != nil {
			out[i].Replicas = append([]string(nil), p.Replicas...)
		}
	}
	return out
}

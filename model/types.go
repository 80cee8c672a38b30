package model

// Link is one child reference of a dag-pb node.
type Link struct {
	CID       string `json:"cid"`
	Tsize     uint64 `json:"tsize"`
	Blocksize uint64 `json:"blocksize"`
}

// Inspection describes a single block.
type Inspection struct {
	CID   string `json:"cid"`
	Codec string `json:"codec"`
	// Digest is the lowercase hex SHA-256 of the block bytes.
	Digest string `json:"digest"`
	// BlockSize is the stored (encoded) size of the block.
	BlockSize int `json:"blockSize"`
	// Filesize is the payload length covered by the block.
	Filesize uint64 `json:"filesize"`
	Links    []Link `json:"links,omitempty"`
}

// DAGSummary aggregates the distinct blocks reachable from a root.
type DAGSummary struct {
	Root        string `json:"root"`
	Size        uint64 `json:"size"`
	Blocks      int    `json:"blocks"`
	Leaves      int    `json:"leaves"`
	Nodes       int    `json:"nodes"`
	Depth       int    `json:"depth"`
	StoredBytes uint64 `json:"storedBytes"`
}

// Verification is the outcome of hashing a payload against an expected id.
type Verification struct {
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Length   uint64 `json:"length"`
	Match    bool   `json:"match"`
}

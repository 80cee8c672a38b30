package dagreader

import (
	"xdao.co/ufs/cidutil"
	"xdao.co/ufs/storage"
)

// Stats summarizes the distinct blocks of a DAG.
type Stats struct {
	Root cidutil.ID
	// Size is the payload length recorded at the root.
	Size uint64
	// Blocks counts distinct blocks; Leaves and Nodes split them by codec.
	Blocks int
	Leaves int
	Nodes  int
	// Depth is the greatest depth at which a block was first reached.
	Depth int
	// StoredBytes is the total encoded size of the distinct blocks.
	StoredBytes uint64
}

func Stat(cas storage.CAS, root cidutil.ID) (Stats, error) {
	st := Stats{Root: root}
	err := Walk(cas, root, func(b Block) error {
		st.Blocks++
		st.StoredBytes += uint64(len(b.Data))
		st.Depth = max(st.Depth, b.Depth)
		if b.Node == nil {
			st.Leaves++
			if b.Depth == 0 {
				st.Size = uint64(len(b.Data))
			}
			return nil
		}
		st.Nodes++
		if b.Depth == 0 {
			st.Size = b.Node.Filesize
		}
		return nil
	})
	return st, err
}

package feed

import (
	"context"
	"os"

	"meshmap/internal/topology"
)

// FileSource reads the payload from disk on every fetch.
type FileSource struct {
	Path  string
	Parse topology.ParseOptions
}

func (s FileSource) Fetch(ctx context.Context) (*topology.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchErr("%v", err)
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fetchErr("%v", err)
	}
	return parse(data, s.Parse)
}

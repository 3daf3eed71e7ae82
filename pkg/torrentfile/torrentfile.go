package torrentfile

import (
	"fmt"

	"github.com/anacrolix/torrent/metainfo"
)

type File struct {
	Name      string
	InfoHash  string
	SizeBytes int64
	Files     int
}

// Load reads the payload size and infohash of a .torrent file.
func Load(path string) (*File, error) {
	mi, err := metainfo.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load torrent file: %w", err)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("unmarshal info: %w", err)
	}

	files := len(info.Files)
	if files == 0 {
		files = 1
	}

	return &File{
		Name:      info.Name,
		InfoHash:  mi.HashInfoBytes().HexString(),
		SizeBytes: info.TotalLength(),
		Files:     files,
	}, nil
}

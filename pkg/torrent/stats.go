package torrent

// Stats aggregates a group of torrents for reporting.
type Stats struct {
	Count           int
	SizeBytes       int64
	DownloadedBytes int64
	UploadedBytes   int64
	DownRateBps     int64
	UpRateBps       int64
}

func Summarize(torrents []Torrent) Stats {
	var s Stats
	for _, t := range torrents {
		s.Count++
		s.SizeBytes += t.SizeBytes
		s.DownloadedBytes += t.DownloadedBytes
		s.UploadedBytes += t.UploadedBytes
		s.DownRateBps += t.DownRateBps
		s.UpRateBps += t.UpRateBps
	}
	return s
}

// Ratio is total uploaded over total downloaded, 0 when nothing was downloaded.
func (s Stats) Ratio() float64 {
	if s.DownloadedBytes <= 0 {
		return 0
	}

	return float64(s.UploadedBytes) / float64(s.DownloadedBytes)
}

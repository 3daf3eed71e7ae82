package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/autobrr/go-qbittorrent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedgate/seedgate/pkg/torrent"
)

func TestQBittorrent_TrackerDetails(t *testing.T) {
	tests := []struct {
		name                 string
		trackers             []qbittorrent.TorrentTracker
		expectedTrackerHost  string
		expectedTrackerError string
	}{
		{
			name: "first_tracker_not_working",
			trackers: []qbittorrent.TorrentTracker{
				{
					Url:     "http://tracker1.com/announce",
					Status:  qbittorrent.TrackerStatusNotWorking,
					Message: "Unregistered torrent",
				},
				{
					Url:     "http://tracker2.com/announce",
					Status:  qbittorrent.TrackerStatusOK,
					Message: "",
				},
			},
			expectedTrackerHost:  "tracker1.com",
			expectedTrackerError: "Unregistered torrent",
		},
		{
			name: "skip_disabled_trackers",
			trackers: []qbittorrent.TorrentTracker{
				{Url: "** [DHT] **", Status: qbittorrent.TrackerStatusNotWorking, Message: "DHT down"},
				{Url: "** [LSD] **", Status: qbittorrent.TrackerStatusNotWorking, Message: "LSD down"},
				{Url: "** [PeX] **", Status: qbittorrent.TrackerStatusNotWorking, Message: "PeX down"},
				{Url: "http://tracker1.com/announce", Status: qbittorrent.TrackerStatusOK},
			},
			expectedTrackerHost:  "tracker1.com",
			expectedTrackerError: "",
		},
		{
			name: "not_working_without_message",
			trackers: []qbittorrent.TorrentTracker{
				{Url: "http://tracker1.com/announce", Status: qbittorrent.TrackerStatusNotWorking},
			},
			expectedTrackerHost:  "tracker1.com",
			expectedTrackerError: "",
		},
		{
			name: "message_while_updating_is_not_an_error",
			trackers: []qbittorrent.TorrentTracker{
				{Url: "http://tracker1.com/announce", Status: qbittorrent.TrackerStatusUpdating, Message: "timed out"},
			},
			expectedTrackerHost:  "tracker1.com",
			expectedTrackerError: "",
		},
		{
			name: "second_tracker_not_working",
			trackers: []qbittorrent.TorrentTracker{
				{Url: "http://announce.tracker1.com/announce", Status: qbittorrent.TrackerStatusOK},
				{Url: "http://tracker2.com/announce", Status: qbittorrent.TrackerStatusNotWorking, Message: "torrent not registered"},
			},
			expectedTrackerHost:  "tracker1.com",
			expectedTrackerError: "torrent not registered",
		},
		{
			name:                 "no_trackers",
			trackers:             []qbittorrent.TorrentTracker{},
			expectedTrackerHost:  "",
			expectedTrackerError: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, trackerError := qbitTrackerDetails(tt.trackers)
			assert.Equal(t, tt.expectedTrackerHost, host)
			assert.Equal(t, tt.expectedTrackerError, trackerError)
		})
	}
}

func TestQBittorrent_Torrent(t *testing.T) {
	added := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	completed := added.Add(2 * time.Hour)

	got := qbitTorrent(qbittorrent.Torrent{
		Hash:         "abc",
		Name:         "Some.Release",
		Tags:         "red, autoremove,,music",
		AddedOn:      added.Unix(),
		CompletionOn: completed.Unix(),
		Size:         4 << 30,
		Downloaded:   4 << 30,
		Uploaded:     8 << 30,
		DlSpeed:      0,
		UpSpeed:      125000,
		State:        qbittorrent.TorrentStateUploading,
	}, nil)

	assert.Equal(t, "abc", got.Hash)
	assert.Equal(t, []string{"red", "autoremove", "music"}, got.Labels)
	assert.True(t, got.StartedAt.Equal(added))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, got.FinishedAt.Equal(completed))
	assert.Equal(t, int64(1000000), got.UpRateBps)
	assert.InDelta(t, 2.0, got.Ratio(), 1e-9)
	assert.Equal(t, torrent.StateOK, got.State)
	assert.Empty(t, got.TrackerError)
}

func TestQBittorrent_TorrentIncomplete(t *testing.T) {
	got := qbitTorrent(qbittorrent.Torrent{
		Hash:         "abc",
		AddedOn:      time.Now().Unix(),
		CompletionOn: -1,
		State:        qbittorrent.TorrentStateDownloading,
	}, []qbittorrent.TorrentTracker{
		{Url: "https://tracker.example.org/announce", Status: qbittorrent.TrackerStatusNotWorking, Message: "Unregistered torrent"},
	})

	assert.Nil(t, got.FinishedAt)
	assert.Empty(t, got.Labels)
	assert.Equal(t, "Unregistered torrent", got.TrackerError)
	assert.Equal(t, torrent.StateError, got.State)
}

func TestQBittorrent_State(t *testing.T) {
	tests := []struct {
		state    qbittorrent.TorrentState
		expected torrent.State
	}{
		{qbittorrent.TorrentStateUploading, torrent.StateOK},
		{qbittorrent.TorrentStateStalledDl, torrent.StateOK},
		{qbittorrent.TorrentStatePausedUp, torrent.StatePaused},
		{qbittorrent.TorrentStatePausedDl, torrent.StatePaused},
		{qbittorrent.TorrentStateStoppedUp, torrent.StateStopped},
		{qbittorrent.TorrentStateStoppedDl, torrent.StateStopped},
		{qbittorrent.TorrentStateError, torrent.StateError},
		{qbittorrent.TorrentStateMissingFiles, torrent.StateError},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.expected, qbitState(tt.state, ""))
		})
	}
}

func TestParseTrackerDomain(t *testing.T) {
	tests := []struct {
		name           string
		trackerHost    string
		expectedDomain string
	}{
		{
			name:           "simple_url",
			trackerHost:    "http://tracker.com/announce",
			expectedDomain: "tracker.com",
		},
		{
			name:           "url_with_port",
			trackerHost:    "http://tracker.com:8080/announce",
			expectedDomain: "tracker.com",
		},
		{
			name:           "url_with_subdomain",
			trackerHost:    "http://announce.tracker.com/announce",
			expectedDomain: "tracker.com",
		},
		{
			name:           "empty_host",
			trackerHost:    "",
			expectedDomain: "",
		},
		{
			name:           "invalid_url",
			trackerHost:    "not-a-url",
			expectedDomain: "",
		},
		{
			name:           "ip_address",
			trackerHost:    "http://192.168.1.1:8080/announce",
			expectedDomain: "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedDomain, ParseTrackerDomain(tt.trackerHost))
		})
	}
}

func TestNewQBittorrent_RequiresUrl(t *testing.T) {
	_, err := NewQBittorrent(Settings{ClientName: "qbit"}, map[string]interface{}{"user": "admin"})
	assert.Error(t, err)

	c, err := NewQBittorrent(Settings{ClientName: "qbit"}, map[string]interface{}{
		"type": "qbittorrent",
		"url":  "http://localhost:8080",
		"user": "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "qBittorrent", c.Type())
	assert.Equal(t, "qbit", c.Name())
}

func TestQBittorrent_RemoveIdempotent(t *testing.T) {
	var (
		mu      sync.Mutex
		present = true
		deletes int
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session", Path: "/"})
		fmt.Fprint(w, "Ok.")
	})
	mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if present {
			fmt.Fprint(w, `[{"hash":"abc","name":"Some.Release"}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/v2/torrents/reannounce", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/api/v2/torrents/delete", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		deletes++
		present = false
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewQBittorrent(Settings{ClientName: "qbit"}, map[string]interface{}{
		"url":      srv.URL,
		"user":     "admin",
		"password": "adminadmin",
	})
	require.NoError(t, err)

	tor := &torrent.Torrent{Hash: "abc"}

	removed, err := c.RemoveTorrent(context.Background(), tor)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.RemoveTorrent(context.Background(), tor)
	require.NoError(t, err)
	assert.False(t, removed)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, deletes)
}

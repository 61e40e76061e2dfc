package room

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BioHazard786/watchsync/internal/protocol"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// snapshot is the on-disk form of a room's last known state.
type snapshot struct {
	Version      int                  `msgpack:"v"`
	SavedAt      time.Time            `msgpack:"saved_at"`
	Room         string               `msgpack:"room"`
	Video        *protocol.VideoData  `msgpack:"video,omitempty"`
	Queue        []protocol.VideoData `msgpack:"queue,omitempty"`
	PlayingIndex int                  `msgpack:"playing_index"`
	Members      []protocol.Member    `msgpack:"members,omitempty"`
	Roles        map[string]string    `msgpack:"roles,omitempty"`
	CurrentUser  string               `msgpack:"current_user,omitempty"`
	IsPlaying    bool                 `msgpack:"is_playing"`
	Timestamp    float64              `msgpack:"timestamp"`
	Permanent    bool                 `msgpack:"permanent"`
}

// SaveSnapshot writes s to path, creating parent directories. The file is
// replaced atomically.
func SaveSnapshot(path string, s State, savedAt time.Time) error {
	data, err := msgpack.Marshal(snapshot{
		Version:      snapshotVersion,
		SavedAt:      savedAt,
		Room:         s.Room,
		Video:        s.Video,
		Queue:        s.Queue,
		PlayingIndex: s.PlayingIndex,
		Members:      s.Members,
		Roles:        s.Roles,
		CurrentUser:  s.CurrentUser,
		IsPlaying:    s.IsPlaying,
		Timestamp:    s.Timestamp,
		Permanent:    s.Permanent,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. The returned state is
// marked stale. A missing file yields an error satisfying os.IsNotExist.
func LoadSnapshot(path string) (State, time.Time, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, time.Time{}, err
	}

	var snap snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return State{}, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return State{}, time.Time{}, fmt.Errorf("%w: %d", ErrSnapshotVersion, snap.Version)
	}

	return State{
		Room:         snap.Room,
		Video:        snap.Video,
		Queue:        snap.Queue,
		PlayingIndex: normalizeIndex(snap.PlayingIndex, len(snap.Queue)),
		Members:      snap.Members,
		Roles:        snap.Roles,
		CurrentUser:  snap.CurrentUser,
		IsPlaying:    snap.IsPlaying,
		Timestamp:    snap.Timestamp,
		Permanent:    snap.Permanent,
		Stale:        true,
	}, snap.SavedAt, nil
}

package room

import (
	"encoding/json"
	"testing"

	"github.com/BioHazard786/watchsync/internal/protocol"
)

func decodeSync(t *testing.T, raw string) protocol.SyncPayload {
	t.Helper()
	var p protocol.SyncPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("bad payload %s: %v", raw, err)
	}
	return p
}

func video(url string) protocol.VideoData {
	return protocol.VideoData{OriginalURL: url, Title: url}
}

func TestNewStoreDefaults(t *testing.T) {
	s := NewStore("abc")
	st := s.State()

	if st.Room != "abc" {
		t.Errorf("expected room abc, got %q", st.Room)
	}
	if st.PlayingIndex != NoIndex {
		t.Errorf("expected no playing index, got %d", st.PlayingIndex)
	}
	if st.Video != nil || st.Stale {
		t.Errorf("unexpected initial state: %+v", st)
	}
}

func TestSyncKeepsAbsentFields(t *testing.T) {
	s := NewStore("abc")
	s.ApplySync(decodeSync(t, `{
		"video_data": {"original_url": "https://v/1", "title": "one"},
		"members": [{"email": "a@x"}, {"email": "b@x"}],
		"queue": [{"original_url": "https://v/2"}],
		"roles": {"a@x": "admin"},
		"your_email": "b@x",
		"playing_index": 0,
		"is_playing": true,
		"timestamp": 12.5,
		"permanent": true
	}`))
	before := s.State()

	// every field absent
	s.ApplySync(decodeSync(t, `{}`))
	after := s.State()

	if after.Video.Identity() != "https://v/1" || after.Video.Title != "one" {
		t.Errorf("video lost: %+v", after.Video)
	}
	if len(after.Members) != 2 || after.Members[1].Email != "b@x" {
		t.Errorf("members lost: %+v", after.Members)
	}
	if len(after.Queue) != 1 || after.PlayingIndex != 0 {
		t.Errorf("queue lost: %+v / %d", after.Queue, after.PlayingIndex)
	}
	if after.Roles["a@x"] != protocol.RoleAdmin || after.CurrentUser != "b@x" {
		t.Errorf("identity lost: %+v %q", after.Roles, after.CurrentUser)
	}
	if after.IsPlaying != before.IsPlaying || after.Timestamp != 12.5 || !after.Permanent {
		t.Errorf("playback fields lost: %+v", after)
	}
}

func TestSyncNullVideoKeepsPrior(t *testing.T) {
	s := NewStore("abc")
	s.ApplySync(decodeSync(t, `{"video_data": {"original_url": "https://v/1"}}`))

	if changed := s.ApplySync(decodeSync(t, `{"video_data": null}`)); changed {
		t.Error("null video must not count as a change")
	}
	if s.State().Video.Identity() != "https://v/1" {
		t.Error("null video_data erased the current video")
	}
}

func TestSyncPresentFieldsOverwrite(t *testing.T) {
	s := NewStore("abc")
	s.ApplySync(decodeSync(t, `{"members": [{"email": "a@x"}], "is_playing": true, "timestamp": 4}`))
	s.ApplySync(decodeSync(t, `{"members": [], "is_playing": false, "timestamp": 0}`))

	st := s.State()
	if len(st.Members) != 0 {
		t.Errorf("explicit empty members should replace, got %+v", st.Members)
	}
	if st.IsPlaying || st.Timestamp != 0 {
		t.Errorf("explicit false/zero should replace, got playing=%v ts=%v", st.IsPlaying, st.Timestamp)
	}
}

func TestSyncReportsVideoChange(t *testing.T) {
	s := NewStore("abc")

	if !s.ApplySync(decodeSync(t, `{"video_data": {"original_url": "https://v/1"}}`)) {
		t.Error("first video should be a change")
	}
	if s.ApplySync(decodeSync(t, `{"video_data": {"original_url": "https://v/1", "title": "other"}}`)) {
		t.Error("same identity should not be a change")
	}
	if !s.ApplySync(decodeSync(t, `{"video_data": {"original_url": "https://v/2"}}`)) {
		t.Error("new identity should be a change")
	}
}

func TestQueueUpdateThenSyncWithoutQueue(t *testing.T) {
	s := NewStore("abc")
	queue := []protocol.VideoData{video("A"), video("B")}
	idx := 1
	s.SetQueue(&queue, &idx)

	s.ApplySync(decodeSync(t, `{"is_playing": true, "timestamp": 3}`))

	st := s.State()
	if len(st.Queue) != 2 || st.Queue[0].OriginalURL != "A" || st.Queue[1].OriginalURL != "B" {
		t.Fatalf("queue changed: %+v", st.Queue)
	}
	if st.PlayingIndex != 1 {
		t.Errorf("expected playing index 1, got %d", st.PlayingIndex)
	}
}

func TestPlayingIndexNormalized(t *testing.T) {
	tests := []struct {
		name  string
		queue int
		index int
		want  int
	}{
		{"valid", 3, 2, 2},
		{"past end", 2, 2, NoIndex},
		{"negative", 2, -5, NoIndex},
		{"empty queue", 0, 0, NoIndex},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore("abc")
			queue := make([]protocol.VideoData, tt.queue)
			idx := tt.index
			s.SetQueue(&queue, &idx)
			if got := s.State().PlayingIndex; got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestShrinkingQueueDropsIndex(t *testing.T) {
	s := NewStore("abc")
	queue := []protocol.VideoData{video("A"), video("B"), video("C")}
	idx := 2
	s.SetQueue(&queue, &idx)

	s.ApplySync(decodeSync(t, `{"queue": [{"original_url": "A"}]}`))
	if got := s.State().PlayingIndex; got != NoIndex {
		t.Errorf("index should be cleared when queue shrinks, got %d", got)
	}
}

func TestStateIsACopy(t *testing.T) {
	s := NewStore("abc")
	s.SetRoles(map[string]string{"a@x": protocol.RoleAdmin})
	s.SetVideo(&protocol.VideoData{OriginalURL: "https://v/1"})

	st := s.State()
	st.Roles["a@x"] = protocol.RoleUser
	st.Video.OriginalURL = "mutated"

	again := s.State()
	if again.Roles["a@x"] != protocol.RoleAdmin || again.Video.OriginalURL != "https://v/1" {
		t.Error("caller mutation leaked into the store")
	}
}

func TestApplyResolutionGuard(t *testing.T) {
	resolvedA := &protocol.VideoData{OriginalURL: "A", StreamURL: "https://cdn/a.m3u8"}

	t.Run("guarded discards stale result", func(t *testing.T) {
		s := NewStore("abc")
		s.SetVideo(&protocol.VideoData{OriginalURL: "A"})
		s.SetVideo(&protocol.VideoData{OriginalURL: "B"})

		if s.ApplyResolution("A", resolvedA, true) {
			t.Fatal("stale resolution applied")
		}
		if s.State().Video.Identity() != "B" {
			t.Errorf("current video replaced: %+v", s.State().Video)
		}
	})

	t.Run("unguarded applies stale result", func(t *testing.T) {
		s := NewStore("abc")
		s.SetVideo(&protocol.VideoData{OriginalURL: "A"})
		s.SetVideo(&protocol.VideoData{OriginalURL: "B"})

		if !s.ApplyResolution("A", resolvedA, false) {
			t.Fatal("unguarded resolution should apply")
		}
		if s.State().Video.StreamURL != "https://cdn/a.m3u8" {
			t.Errorf("expected resolved A, got %+v", s.State().Video)
		}
	})

	t.Run("current result keeps server attributes", func(t *testing.T) {
		s := NewStore("abc")
		s.SetVideo(&protocol.VideoData{OriginalURL: "A", AddedBy: "a@x", Pinned: true})

		if !s.ApplyResolution("A", &protocol.VideoData{StreamURL: "https://cdn/a.m3u8"}, true) {
			t.Fatal("current resolution should apply")
		}
		v := s.State().Video
		if v.OriginalURL != "A" || v.AddedBy != "a@x" || !v.Pinned {
			t.Errorf("server attributes lost: %+v", v)
		}
	})
}

func TestSubscribe(t *testing.T) {
	s := NewStore("abc")

	var seen []State
	unsubscribe := s.Subscribe(func(st State) { seen = append(seen, st) })

	s.SetPermanent(true)
	s.SetPlayback(true, 7)
	unsubscribe()
	s.SetPermanent(false)

	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
	if !seen[0].Permanent || seen[1].Timestamp != 7 {
		t.Errorf("unexpected notifications: %+v", seen)
	}
}

func TestRestoreMarksStaleUntilSync(t *testing.T) {
	s := NewStore("abc")
	s.Restore(State{
		Room:         "other",
		Video:        &protocol.VideoData{OriginalURL: "A"},
		PlayingIndex: 4,
	})

	st := s.State()
	if !st.Stale || st.Room != "abc" || st.PlayingIndex != NoIndex {
		t.Errorf("unexpected restored state: %+v", st)
	}

	s.ApplySync(decodeSync(t, `{"timestamp": 1}`))
	if s.State().Stale {
		t.Error("sync should clear the stale flag")
	}
	if s.State().Video.Identity() != "A" {
		t.Error("restored video should survive a partial sync")
	}
}

func TestCanModerate(t *testing.T) {
	s := NewStore("abc")
	s.ApplySync(decodeSync(t, `{"your_email": "m@x", "roles": {"m@x": "moderator", "u@x": "user"}}`))

	if !s.State().CanModerate() {
		t.Error("moderator should moderate")
	}

	s.ApplySync(decodeSync(t, `{"your_email": "u@x"}`))
	if s.State().CanModerate() {
		t.Error("plain user should not moderate")
	}
}

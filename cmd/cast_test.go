package cmd

import (
	"testing"

	"github.com/BioHazard786/watchsync/internal/media"
	"github.com/BioHazard786/watchsync/internal/protocol"
)

func TestConfirmed(t *testing.T) {
	queue := []protocol.VideoData{
		{OriginalURL: "https://a.test/1.mp4"},
		{OriginalURL: "https://a.test/2.mp4"},
	}

	if n := confirmed(queue, []media.Source{{URL: "https://a.test/2.mp4"}, {URL: "https://a.test/1.mp4"}}); n != 2 {
		t.Errorf("expected both sources confirmed, got %d", n)
	}
	if n := confirmed(queue, []media.Source{{URL: "https://a.test/1.mp4"}, {URL: "https://a.test/3.mp4"}}); n != 1 {
		t.Errorf("expected one source confirmed, got %d", n)
	}
	if n := confirmed(nil, nil); n != 0 {
		t.Errorf("expected nothing confirmed, got %d", n)
	}
}

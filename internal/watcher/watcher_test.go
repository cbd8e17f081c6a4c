package watcher

import (
	"testing"

	"github.com/streamvault/streamvault/internal/models"
	"github.com/streamvault/streamvault/internal/scanactor"
)

type sentCmd struct {
	libraryID models.LibraryID
	cmd       scanactor.Command
}

type recordingRouter struct {
	sent []sentCmd
}

func (r *recordingRouter) Send(libraryID models.LibraryID, cmd scanactor.Command) {
	r.sent = append(r.sent, sentCmd{libraryID, cmd})
}

func TestHandleOverflowFansOutOneEventPerLibraryRoot(t *testing.T) {
	libA := models.NewLibraryID()
	libB := models.NewLibraryID()
	router := &recordingRouter{}
	w := &Watcher{
		router: router,
		libraryRoots: map[string]watchedRoot{
			"/media/movies": {libraryID: libA, rootID: 0},
			"/media/tv":     {libraryID: libB, rootID: 0},
		},
	}

	w.handleOverflow()

	if len(router.sent) != 2 {
		t.Fatalf("expected 2 sends (one per library root), got %d", len(router.sent))
	}
	for _, s := range router.sent {
		cmd, ok := s.cmd.(scanactor.FsEventsCmd)
		if !ok {
			t.Fatalf("expected FsEventsCmd, got %T", s.cmd)
		}
		if len(cmd.Events) != 1 || !cmd.Events[0].IsOverflow {
			t.Fatalf("expected a single IsOverflow event, got %+v", cmd.Events)
		}
	}
}

func TestIsMediaExtension(t *testing.T) {
	cases := map[string]bool{
		".mkv": true, ".mp4": true, ".jpg": false, ".nfo": false, "": false,
	}
	for ext, want := range cases {
		if got := isMediaExtension(ext); got != want {
			t.Errorf("isMediaExtension(%q) = %v, want %v", ext, got, want)
		}
	}
}

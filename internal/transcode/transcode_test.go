package transcode

import (
	"os"
	"testing"

	"github.com/streamvault/streamvault/internal/models"
)

func mkdirAllT(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}

func writeFileT(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIsHDR(t *testing.T) {
	cases := []struct {
		name string
		meta *models.TechnicalMetadata
		want bool
	}{
		{"nil", nil, false},
		{"8bit sdr", &models.TechnicalMetadata{BitDepth: 8, ColorTransfer: "bt709", ColorPrimaries: "bt709"}, false},
		{"10bit alone", &models.TechnicalMetadata{BitDepth: 10, ColorTransfer: "bt709", ColorPrimaries: "bt709"}, true},
		{"pq transfer", &models.TechnicalMetadata{BitDepth: 8, ColorTransfer: "smpte2084", ColorPrimaries: "bt709"}, true},
		{"hlg transfer", &models.TechnicalMetadata{BitDepth: 8, ColorTransfer: "arib-std-b67", ColorPrimaries: "bt709"}, true},
		{"bt2020 primaries", &models.TechnicalMetadata{BitDepth: 8, ColorTransfer: "bt709", ColorPrimaries: "bt2020nc"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsHDR(c.meta); got != c.want {
				t.Errorf("IsHDR(%+v) = %v, want %v", c.meta, got, c.want)
			}
		})
	}
}

func TestAggregateMasterStatus(t *testing.T) {
	cases := []struct {
		name         string
		variants     []VariantStatus
		wantStatus   Status
		wantProgress float64
	}{
		{"empty", nil, StatusPending, 0},
		{
			"any failed dominates",
			[]VariantStatus{{Status: StatusCompleted}, {Status: StatusFailed}},
			StatusFailed, 0,
		},
		{
			"all completed",
			[]VariantStatus{{Status: StatusCompleted}, {Status: StatusCompleted}},
			StatusCompleted, 1,
		},
		{
			"processing excludes pending from denominator",
			[]VariantStatus{
				{Status: StatusProcessing, Progress: 0.5},
				{Status: StatusQueued, Progress: 0},
			},
			StatusProcessing, 0.5,
		},
		{
			"processing averages active variants",
			[]VariantStatus{
				{Status: StatusProcessing, Progress: 0.4},
				{Status: StatusProcessing, Progress: 0.8},
			},
			StatusProcessing, 0.6,
		},
		{
			"all pending",
			[]VariantStatus{{Status: StatusQueued}, {Status: StatusPending}},
			StatusPending, 0,
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, progress := AggregateMasterStatus(c.variants)
			if status != c.wantStatus {
				t.Errorf("status = %v, want %v", status, c.wantStatus)
			}
			if diff := progress - c.wantProgress; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("progress = %v, want %v", progress, c.wantProgress)
			}
		})
	}
}

func TestPriorityQueueOrdering(t *testing.T) {
	q := NewPriorityQueue()
	q.Submit(&Job{ID: "low-1", Priority: PriorityLow})
	q.Submit(&Job{ID: "crit-1", Priority: PriorityCritical})
	q.Submit(&Job{ID: "normal-1", Priority: PriorityNormal})
	q.Submit(&Job{ID: "crit-2", Priority: PriorityCritical})

	var order []string
	for {
		j, ok := q.TryDequeue()
		if !ok {
			break
		}
		order = append(order, j.ID)
	}

	want := []string{"crit-1", "crit-2", "normal-1", "low-1"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, order[i], want[i])
		}
	}
}

func TestSelectInitialVariants(t *testing.T) {
	p := NewPlanner(NewCacheManager(t.TempDir(), 0, 0))
	variants := p.GenerateVariants(1920, 1080)
	initial := p.SelectInitialVariants(variants)
	if len(initial) != 2 {
		t.Fatalf("expected 2 initial variants, got %d", len(initial))
	}
	names := map[string]bool{initial[0].Name: true, initial[1].Name: true}
	if !names["720p"] || !names["original"] {
		t.Errorf("expected 720p+original, got %v", names)
	}
}

func TestProbeCachePresenceShortCircuits(t *testing.T) {
	dir := t.TempDir()
	cache := NewCacheManager(dir, 0, 0)
	p := NewPlanner(cache)

	mediaID := "media-1"
	variants := []ProfileVariant{{Name: "720p"}, {Name: "original"}}

	if p.ProbeCachePresence(mediaID, variants) {
		t.Fatal("expected false before any cache files exist")
	}

	for _, v := range variants {
		path := cache.GetCachePath(mediaID, v.Name)
		mkdirAllT(t, path)
		writeFileT(t, path+"/playlist.m3u8", "#EXTM3U\n")
	}
	mkdirAllT(t, dir+"/"+mediaID)
	writeFileT(t, dir+"/"+mediaID+"/master.m3u8", "#EXTM3U\n")

	if !p.ProbeCachePresence(mediaID, variants) {
		t.Fatal("expected true once all variants and master playlist exist")
	}
}

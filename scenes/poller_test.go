package scenes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Runetap54/edit-stream-manager-sub000/apperrors"
	"github.com/Runetap54/edit-stream-manager-sub000/models"
	"github.com/Runetap54/edit-stream-manager-sub000/provider"
	"github.com/Runetap54/edit-stream-manager-sub000/storage"
)

type stubProvider struct {
	statusCalls int
	status      *provider.JobStatus
	statusErr   error
}

func (s *stubProvider) Submit(ctx context.Context, req provider.SubmitRequest) (string, error) {
	return "", fmt.Errorf("unexpected submit")
}

func (s *stubProvider) Status(ctx context.Context, jobID string) (*provider.JobStatus, error) {
	s.statusCalls++
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return s.status, nil
}

func newTestStorage(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &storage.Client{
		BaseURL:       srv.URL,
		PrivateBucket: "media",
		PublicBucket:  "media-public",
		HTTPClient:    srv.Client(),
	}
}

func TestTickTerminalGenerationSkipsProvider(t *testing.T) {
	db := newTestDB(t)
	_, gen := seedSceneWithGeneration(t, db, models.GenerationStatusCompleted)

	prov := &stubProvider{}
	p := &Poller{DB: db, Provider: prov}

	got, err := p.Tick(context.Background(), 1, gen.ID)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got.Status != models.GenerationStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, models.GenerationStatusCompleted)
	}
	if prov.statusCalls != 0 {
		t.Errorf("provider polled %d times for a terminal generation, want 0", prov.statusCalls)
	}
}

func TestTickCompletedArchivesAsset(t *testing.T) {
	db := newTestDB(t)
	scene, gen := seedSceneWithGeneration(t, db, models.GenerationStatusProcessing)

	var uploadedKey string
	mux := http.NewServeMux()
	mux.HandleFunc("/renders/out.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mp4-bytes"))
	})
	mux.HandleFunc("/object/media/", func(w http.ResponseWriter, r *http.Request) {
		uploadedKey = strings.TrimPrefix(r.URL.Path, "/object/media/")
	})
	stor := newTestStorage(t, mux)

	prov := &stubProvider{status: &provider.JobStatus{
		ID:    "job-1",
		State: provider.StateCompleted,
		Video: &provider.Video{URL: stor.BaseURL + "/renders/out.mp4"},
	}}
	p := &Poller{DB: db, Provider: prov, Storage: stor}

	got, err := p.Tick(context.Background(), 1, gen.ID)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got.Status != models.GenerationStatusCompleted {
		t.Fatalf("status = %q, want %q", got.Status, models.GenerationStatusCompleted)
	}
	wantKey := fmt.Sprintf("%d/%d/renders/scene-%d/gen-%d.mp4", scene.UserID, scene.ProjectID, scene.ID, gen.ID)
	if got.VideoKey != wantKey {
		t.Errorf("video key = %q, want %q", got.VideoKey, wantKey)
	}
	if uploadedKey != wantKey {
		t.Errorf("uploaded key = %q, want %q", uploadedKey, wantKey)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want 100", got.Progress)
	}

	var reloaded models.Scene
	if err := db.First(&reloaded, scene.ID).Error; err != nil {
		t.Fatalf("reload scene: %v", err)
	}
	if reloaded.Status != models.SceneStatusReady {
		t.Errorf("scene status = %q, want %q", reloaded.Status, models.SceneStatusReady)
	}
}

func TestTickCompletedWithMissingAssetMarksArchiveError(t *testing.T) {
	db := newTestDB(t)
	scene, gen := seedSceneWithGeneration(t, db, models.GenerationStatusProcessing)

	stor := newTestStorage(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	prov := &stubProvider{status: &provider.JobStatus{
		ID:    "job-1",
		State: provider.StateCompleted,
		Video: &provider.Video{URL: stor.BaseURL + "/renders/out.mp4"},
	}}
	p := &Poller{DB: db, Provider: prov, Storage: stor}

	got, err := p.Tick(context.Background(), 1, gen.ID)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got.Status != models.GenerationStatusError {
		t.Fatalf("status = %q, want %q", got.Status, models.GenerationStatusError)
	}
	if got.ErrorCode != apperrors.CodeArchive {
		t.Errorf("error code = %q, want %q", got.ErrorCode, apperrors.CodeArchive)
	}
	if got.VideoKey != "" {
		t.Errorf("video key = %q, want empty", got.VideoKey)
	}

	var reloaded models.Scene
	if err := db.First(&reloaded, scene.ID).Error; err != nil {
		t.Fatalf("reload scene: %v", err)
	}
	if reloaded.Status != models.SceneStatusError {
		t.Errorf("scene status = %q, want %q", reloaded.Status, models.SceneStatusError)
	}
}

func TestTickTransientErrorLeavesGenerationRunning(t *testing.T) {
	db := newTestDB(t)
	_, gen := seedSceneWithGeneration(t, db, models.GenerationStatusProcessing)

	prov := &stubProvider{statusErr: apperrors.New(apperrors.CodeNetwork, "connection reset")}
	p := &Poller{DB: db, Provider: prov}

	got, err := p.Tick(context.Background(), 1, gen.ID)
	if err == nil {
		t.Fatal("Tick returned nil error for a transient poll failure")
	}
	if got == nil || got.Status != models.GenerationStatusProcessing {
		t.Fatalf("generation left in %v, want %q", got, models.GenerationStatusProcessing)
	}

	var reloaded models.Generation
	if err := db.First(&reloaded, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if reloaded.Status != models.GenerationStatusProcessing {
		t.Errorf("stored status = %q, want %q", reloaded.Status, models.GenerationStatusProcessing)
	}
}

// Once one of the poller and the webhook path lands a terminal state,
// the other's conditional update must match zero rows.
func TestTerminalGenerationIsNeverOverwritten(t *testing.T) {
	db := newTestDB(t)
	_, gen := seedSceneWithGeneration(t, db, models.GenerationStatusProcessing)

	p := &Poller{DB: db}
	if _, err := p.Fail(gen, apperrors.CodeUpstream, "render failed"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	won, err := transitionGeneration(db, gen.ID, models.GenerationStatusCompleted, map[string]interface{}{
		"video_key": "late.mp4",
	})
	if err != nil {
		t.Fatalf("transitionGeneration: %v", err)
	}
	if won {
		t.Error("transition out of a terminal state was applied")
	}

	var reloaded models.Generation
	if err := db.First(&reloaded, gen.ID).Error; err != nil {
		t.Fatalf("reload generation: %v", err)
	}
	if reloaded.Status != models.GenerationStatusError {
		t.Errorf("status = %q, want %q", reloaded.Status, models.GenerationStatusError)
	}
	if reloaded.VideoKey != "" {
		t.Errorf("video key = %q, want empty", reloaded.VideoKey)
	}
	if reloaded.ErrorCode != apperrors.CodeUpstream {
		t.Errorf("error code = %q, want %q", reloaded.ErrorCode, apperrors.CodeUpstream)
	}
}

package backup

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/givlyn/backupd/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) Record(ctx context.Context, report *RunReport) error {
	args := m.Called(ctx, report)
	return args.Error(0)
}

type collectingObserver struct {
	mu      sync.Mutex
	reports []*RunReport
}

func (o *collectingObserver) ObserveRun(r *RunReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
}

func testConfig(t *testing.T, root string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir: t.TempDir(),
		GitHub: config.GitHubConfig{
			Token:  "ghp_test",
			Owner:  "givlyn",
			Repo:   "backup",
			Branch: testBranch,
		},
		Walk: config.WalkConfig{
			Root:             root,
			IgnoreTokens:     config.DefaultIgnoreTokens,
			IgnoreFile:       config.DefaultIgnoreFile,
			BinaryExtensions: config.DefaultBinaryExtensions,
		},
		Retry: config.RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second},
	}
}

func newTestService(t *testing.T, cfg *config.Config, store *fakeGitStore, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(testPolicy(nil)), WithClock(fixedClock)}, opts...)
	svc, err := NewService(cfg, store, opts...)
	require.NoError(t, err)
	return svc
}

func TestServiceRun_HundredFilesThreeChanged(t *testing.T) {
	root := t.TempDir()
	local := map[string][]byte{}
	for i := 0; i < 100; i++ {
		local[fmt.Sprintf("src/pages/page%03d.tsx", i)] = []byte(fmt.Sprintf("export const Page%d = () => null\n", i))
	}
	remote := map[string][]byte{}
	for k, v := range local {
		remote[k] = v
	}
	local["src/pages/page001.tsx"] = []byte("changed\n")
	local["src/pages/page002.tsx"] = []byte("changed too\n")
	delete(remote, "src/pages/page003.tsx")
	remote["deleted/locally.txt"] = []byte("still on the remote\n")
	local["node_modules/left-pad/index.js"] = []byte("ignored\n")
	writeTree(t, root, local)

	store := newFakeGitStore()
	parent := store.seed(testBranch, remote)

	observer := &collectingObserver{}
	recorder := &mockRecorder{}
	recorder.On("Record", mock.Anything, mock.AnythingOfType("*backup.RunReport")).Return(nil).Once()

	svc := newTestService(t, testConfig(t, root), store, WithObserver(observer), WithRecorder(recorder))
	report, err := svc.Run(context.Background(), TriggerAPI)
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, Counts{
		Total:         100,
		Reused:        97,
		Uploaded:      3,
		Modified:      2,
		Added:         1,
		BytesUploaded: int64(len("changed\n") + len("changed too\n") + len("export const Page3 = () => null\n")),
	}, report.Counts)
	assert.Equal(t, "97.0%", report.Efficiency())
	assert.Equal(t, 97, report.APICallsSaved())
	assert.Equal(t, ContentID(parent), report.BaseCommit)
	assert.Len(t, report.ShortCommit(), 7)
	assert.Equal(t, "givlyn/backup@main", report.Target)

	assert.Equal(t, 3, store.callCount("CreateBlob"))
	assert.Equal(t, 1, store.callCount("CreateTree"))
	assert.Equal(t, 1, store.callCount("CreateCommit"))
	assert.Equal(t, 1, store.callCount("UpdateRef"))

	tip := store.tipCommit(testBranch)
	assert.Equal(t, string(report.Commit), tip.SHA)
	assert.Contains(t, tip.Message, "Modified: 2")
	assert.Contains(t, tip.Message, "New: 1")

	files := store.branchFiles(testBranch)
	assert.Equal(t, []byte("changed\n"), files["src/pages/page001.tsx"])
	assert.Contains(t, files, "deleted/locally.txt", "deletions are not propagated")
	assert.NotContains(t, files, "node_modules/left-pad/index.js")

	require.Len(t, observer.reports, 1)
	assert.Same(t, report, observer.reports[0])
	recorder.AssertExpectations(t)
}

func TestServiceRun_NoChangesIsNoOp(t *testing.T) {
	root := t.TempDir()
	files := map[string][]byte{"a.txt": []byte("a\n"), "img/logo.png": {0x89, 0x50}}
	writeTree(t, root, files)

	store := newFakeGitStore()
	parent := store.seed(testBranch, files)

	report, err := newTestService(t, testConfig(t, root), store).Run(context.Background(), TriggerCLI)
	require.NoError(t, err)

	assert.True(t, report.NoChanges())
	assert.Equal(t, "no changes", report.Message())
	assert.Equal(t, 2, report.Counts.Reused)
	assert.Equal(t, "100.0%", report.Efficiency())
	assert.Empty(t, report.Commit)

	assert.Zero(t, store.writeCalls())
	assert.Equal(t, 1, store.callCount("GetRef"))
	assert.Equal(t, parent, store.tipCommit(testBranch).SHA)
}

func TestServiceRun_AllUploadsFailedSkipsCommit(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"a.txt": []byte("v2\n"), "b.txt": []byte("new\n")})

	store := newFakeGitStore()
	parent := store.seed(testBranch, map[string][]byte{"a.txt": []byte("v1\n")})
	store.failBlob = func([]byte) error { return errFakeUnavailable }

	report, err := newTestService(t, testConfig(t, root), store).Run(context.Background(), TriggerAPI)
	require.NoError(t, err)

	assert.True(t, report.NoChanges())
	assert.Equal(t, 2, report.Counts.Failed)
	require.Len(t, report.Failures, 2)
	assert.Zero(t, store.callCount("CreateTree"))
	assert.Equal(t, parent, store.tipCommit(testBranch).SHA)
}

func TestServiceRun_MissingCredentials(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.GitHub.Token = ""
	store := newFakeGitStore()
	observer := &collectingObserver{}

	report, err := newTestService(t, cfg, store, WithObserver(observer)).Run(context.Background(), TriggerAPI)
	assert.ErrorIs(t, err, ErrMissingCredentials)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Zero(t, store.callCount("GetRef"))
	assert.Len(t, observer.reports, 1)
}

func TestServiceRun_RemoteReadFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"a.txt": []byte("a\n")})
	store := newFakeGitStore()

	report, err := newTestService(t, testConfig(t, root), store).Run(context.Background(), TriggerAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote read failed")
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, err.Error(), report.Error)
	assert.Zero(t, store.writeCalls())
}

func TestServiceRun_WalkFailure(t *testing.T) {
	store := newFakeGitStore()
	store.seed(testBranch, map[string][]byte{"a.txt": []byte("a\n")})
	cfg := testConfig(t, t.TempDir())
	cfg.Walk.Root = cfg.Walk.Root + "/missing"

	_, err := newTestService(t, cfg, store).Run(context.Background(), TriggerAPI)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local walk failed")
	assert.Zero(t, store.writeCalls())
}

func TestServiceRun_SecondRunWhileHeld(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	store := newFakeGitStore()
	store.seed(testBranch, nil)
	locker := NewMemoryLocker()

	release, err := locker.Acquire(context.Background(), cfg.LockKey())
	require.NoError(t, err)
	defer release()

	report, err := newTestService(t, cfg, store, WithLocker(locker)).Run(context.Background(), TriggerSchedule)
	assert.ErrorIs(t, err, ErrBackupInProgress)
	assert.Equal(t, StatusSkipped, report.Status)
	assert.Zero(t, store.callCount("GetRef"))
}

func TestServiceRun_ReleasesLockOnError(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	store := newFakeGitStore()
	locker := NewMemoryLocker()
	svc := newTestService(t, cfg, store, WithLocker(locker))

	_, err := svc.Run(context.Background(), TriggerAPI)
	require.Error(t, err)

	release, err := locker.Acquire(context.Background(), cfg.LockKey())
	require.NoError(t, err)
	release()
}

func TestServiceRun_ConcurrentModification(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string][]byte{"a.txt": []byte("mine\n")})

	store := newFakeGitStore()
	store.seed(testBranch, map[string][]byte{"a.txt": []byte("base\n")})
	store.beforeGetRef = func(call int) {
		// another writer pushes after our snapshot was taken
		if call == 2 {
			store.moveBranch(testBranch)
		}
	}

	report, err := newTestService(t, testConfig(t, root), store).Run(context.Background(), TriggerAPI)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Zero(t, store.callCount("UpdateRef"))
	assert.Equal(t, "someone else", store.tipCommit(testBranch).Message)
}

func TestNewService_RetryPolicyFromConfig(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	cfg.Retry.BaseDelay = 0
	svc, err := NewService(cfg, newFakeGitStore())
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), svc.policy.Delay(0))
	assert.Equal(t, time.Duration(0), svc.policy.Delay(2))

	cfg.Retry.BaseDelay = 500 * time.Millisecond
	svc, err = NewService(cfg, newFakeGitStore())
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, svc.policy.Delay(0))
	assert.Equal(t, time.Second, svc.policy.Delay(1))
}

func TestRunReport(t *testing.T) {
	r := &RunReport{Status: StatusSuccess, Commit: "0123456789abcdef", Counts: Counts{Total: 3, Reused: 1, Modified: 1, Added: 1}}
	assert.Equal(t, "0123456", r.ShortCommit())
	assert.Equal(t, "33.3%", r.Efficiency())
	assert.Equal(t, "Backup complete: 1 modified, 1 new", r.Message())

	empty := &RunReport{Status: StatusNoChanges}
	assert.Equal(t, "0.0%", empty.Efficiency())
}

func TestNewService_InvalidGlob(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Walk.IgnoreGlobs = []string{"[bad"}

	_, err := NewService(cfg, newFakeGitStore())
	assert.ErrorIs(t, err, ErrInvalidGlob)
}

package loader_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
	"github.com/fairyhunter13/scrape-fleet/internal/service/loader"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

func TestReadItems(t *testing.T) {
	path := writeFile(t, "items.txt", []byte("100\n\n  200  \nnot-a-number\n300\n"))

	items, err := loader.ReadItems(discard(), path)
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200, 300}, items)
}

func TestReadItemsEmptyFile(t *testing.T) {
	path := writeFile(t, "items.txt", nil)

	items, err := loader.ReadItems(discard(), path)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestReadItemsMissingFile(t *testing.T) {
	_, err := loader.ReadItems(discard(), filepath.Join(t.TempDir(), "absent.txt"))
	require.Error(t, err)
}

func TestReadItemsRejectsBinary(t *testing.T) {
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)
	path := writeFile(t, "items.txt", png)

	_, err := loader.ReadItems(discard(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Contains(t, err.Error(), "sniffs as")
}

func TestReadProxies(t *testing.T) {
	body := `# fleet proxies
10.0.0.1:3128:user:pass

not a proxy line
10.0.0.2:99999:user:pass
:8080:u:p
10.0.0.3:port:u:p
10.0.0.4:8080::
`
	path := writeFile(t, "proxies.txt", []byte(body))

	proxies, err := loader.ReadProxies(discard(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"10.0.0.1:3128:user:pass",
		"10.0.0.4:8080::", // empty user and password are allowed
	}, proxies)
}

func TestNewBatchID(t *testing.T) {
	a, b := loader.NewBatchID(), loader.NewBatchID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

// loaderTasks scripts Count results per call and records inserts.
type loaderTasks struct {
	counts    []int64
	inserted  [][]int64
	maxAtt    int
	deleted   int64
	wiped     bool
	insertErr error
}

func (f *loaderTasks) Acquire(domain.Context, string) (*domain.Task, error) { return nil, nil }
func (f *loaderTasks) MarkCompleted(domain.Context, int64) error            { return nil }
func (f *loaderTasks) Release(domain.Context, int64) error                  { return nil }

func (f *loaderTasks) InsertItems(_ domain.Context, items []int64, maxAttempts int) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, items)
	f.maxAtt = maxAttempts
	return nil
}

func (f *loaderTasks) Count(domain.Context) (int64, error) {
	n := f.counts[0]
	f.counts = f.counts[1:]
	return n, nil
}

func (f *loaderTasks) DeleteAll(domain.Context) (int64, error) {
	f.wiped = true
	return f.deleted, nil
}

type loaderProxies struct {
	counts   []int64
	inserted [][]string
	deleted  int64
	wiped    bool
}

func (f *loaderProxies) Acquire(domain.Context, string) (*domain.Proxy, error) { return nil, nil }
func (f *loaderProxies) Release(domain.Context, string) error                  { return nil }
func (f *loaderProxies) MarkBlocked(domain.Context, string) error              { return nil }

func (f *loaderProxies) Insert(_ domain.Context, proxies []string) error {
	f.inserted = append(f.inserted, proxies)
	return nil
}

func (f *loaderProxies) Count(domain.Context) (int64, error) {
	n := f.counts[0]
	f.counts = f.counts[1:]
	return n, nil
}

func (f *loaderProxies) DeleteAll(domain.Context) (int64, error) {
	f.wiped = true
	return f.deleted, nil
}

func TestLoadTasksAppend(t *testing.T) {
	repo := &loaderTasks{counts: []int64{10, 12}}

	rep, err := loader.LoadTasks(context.Background(), discard(), repo, []int64{100, 200, 200}, 5, loader.Append)
	require.NoError(t, err)

	assert.False(t, repo.wiped)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, []int64{100, 200, 200}, repo.inserted[0])
	assert.Equal(t, 5, repo.maxAtt)

	assert.Len(t, rep.BatchID, 26)
	assert.Equal(t, 3, rep.Read)
	assert.Equal(t, int64(2), rep.Added)
	assert.Equal(t, int64(1), rep.Skipped, "duplicates count as skipped")
	assert.Equal(t, int64(12), rep.Total)
	assert.Zero(t, rep.Deleted)
}

func TestLoadTasksOverwrite(t *testing.T) {
	repo := &loaderTasks{counts: []int64{0, 3}, deleted: 7}

	rep, err := loader.LoadTasks(context.Background(), discard(), repo, []int64{1, 2, 3}, 5, loader.Overwrite)
	require.NoError(t, err)

	assert.True(t, repo.wiped)
	assert.Equal(t, int64(7), rep.Deleted)
	assert.Equal(t, int64(3), rep.Added)
	assert.Zero(t, rep.Skipped)
	assert.Equal(t, int64(3), rep.Total)
}

func TestLoadTasksNothingToLoad(t *testing.T) {
	_, err := loader.LoadTasks(context.Background(), discard(), &loaderTasks{}, nil, 5, loader.Append)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestLoadTasksInsertFailure(t *testing.T) {
	repo := &loaderTasks{counts: []int64{0}, insertErr: errors.New("db down")}

	_, err := loader.LoadTasks(context.Background(), discard(), repo, []int64{1}, 5, loader.Append)
	require.Error(t, err)
}

func TestLoadProxiesAppend(t *testing.T) {
	repo := &loaderProxies{counts: []int64{2, 3}}

	rep, err := loader.LoadProxies(context.Background(), discard(), repo,
		[]string{"10.0.0.1:3128:u:p", "10.0.0.1:3128:u:p"}, loader.Append)
	require.NoError(t, err)

	assert.False(t, repo.wiped)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, int64(1), rep.Added)
	assert.Equal(t, int64(1), rep.Skipped)
	assert.Equal(t, int64(3), rep.Total)
}

func TestLoadProxiesOverwrite(t *testing.T) {
	repo := &loaderProxies{counts: []int64{0, 2}, deleted: 4}

	rep, err := loader.LoadProxies(context.Background(), discard(), repo,
		[]string{"10.0.0.1:3128:u:p", "10.0.0.2:3128:u:p"}, loader.Overwrite)
	require.NoError(t, err)

	assert.True(t, repo.wiped)
	assert.Equal(t, int64(4), rep.Deleted)
	assert.Equal(t, int64(2), rep.Added)
	assert.Equal(t, int64(2), rep.Total)
}

func TestLoadProxiesNothingToLoad(t *testing.T) {
	_, err := loader.LoadProxies(context.Background(), discard(), &loaderProxies{}, nil, loader.Append)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

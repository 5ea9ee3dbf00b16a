// Package loader reads bootstrap files and seeds the task and proxy
// tables, in append or overwrite mode. Every load runs under a ULID
// batch id for log correlation.
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/scrape-fleet/internal/domain"
)

// Mode selects how a load treats existing rows.
type Mode string

const (
	// Append keeps existing rows; duplicates are skipped by the store.
	Append Mode = "append"
	// Overwrite deletes every row before inserting.
	Overwrite Mode = "overwrite"
)

// Report summarizes one load for the CLI epilogue.
type Report struct {
	BatchID string
	Read    int
	Added   int64
	Skipped int64
	Deleted int64
	Total   int64
}

var batchEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for ULID entropy.

// NewBatchID tags one load run.
func NewBatchID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now()), batchEntropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}

// sniffText reads the whole file and refuses content that does not
// sniff as text. Bootstrap files are small, reading them fully is fine.
func sniffText(path string) ([]byte, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- operator-provided data file
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return raw, nil
	}
	mtype := mimetype.Detect(raw)
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return raw, nil
		}
	}
	return nil, fmt.Errorf("%w: %s sniffs as %s, expected a text file", domain.ErrInvalidArgument, path, mtype)
}

// ReadItems reads one item id per line. Blank lines are skipped,
// non-integer lines are warned and dropped.
func ReadItems(log *slog.Logger, path string) ([]int64, error) {
	raw, err := sniffText(path)
	if err != nil {
		return nil, err
	}

	var items []int64
	skipped := 0
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			log.Warn("loader_skip_line",
				slog.String("path", path),
				slog.Int("line", line),
				slog.String("value", text),
				slog.String("reason", "not an integer"))
			skipped++
			continue
		}
		items = append(items, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	log.Info("loader_file_read",
		slog.String("path", path),
		slog.Int("valid", len(items)),
		slog.Int("skipped", skipped))
	return items, nil
}

// proxyRow is the validation shape of one proxies file line. User and
// password may be anything, the empty string included.
type proxyRow struct {
	Host string `validate:"required"`
	Port int    `validate:"min=1,max=65535"`
}

var checkRow = validator.New()

func checkProxyLine(raw string) error {
	parts := strings.Split(raw, ":")
	if len(parts) != 4 {
		return fmt.Errorf("%w: want host:port:user:pass", domain.ErrInvalidArgument)
	}
	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return fmt.Errorf("%w: port %q is not a number", domain.ErrInvalidArgument, parts[1])
	}
	row := proxyRow{Host: strings.TrimSpace(parts[0]), Port: port}
	if err := checkRow.Struct(row); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

// ReadProxies reads "host:port:user:pass" rows. Blank lines and "#"
// comments are skipped, malformed rows are warned and dropped.
func ReadProxies(log *slog.Logger, path string) ([]string, error) {
	raw, err := sniffText(path)
	if err != nil {
		return nil, err
	}

	var proxies []string
	skipped := 0
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := checkProxyLine(text); err != nil {
			log.Warn("loader_skip_line",
				slog.String("path", path),
				slog.Int("line", line),
				slog.String("value", text),
				slog.Any("reason", err))
			skipped++
			continue
		}
		proxies = append(proxies, text)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	log.Info("loader_file_read",
		slog.String("path", path),
		slog.Int("valid", len(proxies)),
		slog.Int("skipped", skipped))
	return proxies, nil
}

// LoadTasks seeds the tasks table. Added and Skipped come from the
// count delta, so duplicates inside the file count as skipped too.
func LoadTasks(ctx domain.Context, log *slog.Logger, repo domain.TaskRepository, items []int64, maxAttempts int, mode Mode) (Report, error) {
	if len(items) == 0 {
		return Report{}, fmt.Errorf("%w: no valid items to load", domain.ErrInvalidArgument)
	}
	rep := Report{BatchID: NewBatchID(), Read: len(items)}
	log = log.With(slog.String("batch_id", rep.BatchID))

	if mode == Overwrite {
		deleted, err := repo.DeleteAll(ctx)
		if err != nil {
			return rep, err
		}
		rep.Deleted = deleted
	}
	before, err := repo.Count(ctx)
	if err != nil {
		return rep, err
	}
	if err := repo.InsertItems(ctx, items, maxAttempts); err != nil {
		return rep, err
	}
	after, err := repo.Count(ctx)
	if err != nil {
		return rep, err
	}
	rep.Added = after - before
	rep.Skipped = int64(len(items)) - rep.Added
	rep.Total = after

	log.Info("loader_tasks_loaded",
		slog.String("mode", string(mode)),
		slog.Int64("added", rep.Added),
		slog.Int64("skipped", rep.Skipped),
		slog.Int64("deleted", rep.Deleted),
		slog.Int64("total", rep.Total))
	return rep, nil
}

// LoadProxies seeds the proxies table the same way LoadTasks seeds
// tasks.
func LoadProxies(ctx domain.Context, log *slog.Logger, repo domain.ProxyRepository, proxies []string, mode Mode) (Report, error) {
	if len(proxies) == 0 {
		return Report{}, fmt.Errorf("%w: no valid proxies to load", domain.ErrInvalidArgument)
	}
	rep := Report{BatchID: NewBatchID(), Read: len(proxies)}
	log = log.With(slog.String("batch_id", rep.BatchID))

	if mode == Overwrite {
		deleted, err := repo.DeleteAll(ctx)
		if err != nil {
			return rep, err
		}
		rep.Deleted = deleted
	}
	before, err := repo.Count(ctx)
	if err != nil {
		return rep, err
	}
	if err := repo.Insert(ctx, proxies); err != nil {
		return rep, err
	}
	after, err := repo.Count(ctx)
	if err != nil {
		return rep, err
	}
	rep.Added = after - before
	rep.Skipped = int64(len(proxies)) - rep.Added
	rep.Total = after

	log.Info("loader_proxies_loaded",
		slog.String("mode", string(mode)),
		slog.Int64("added", rep.Added),
		slog.Int64("skipped", rep.Skipped),
		slog.Int64("deleted", rep.Deleted),
		slog.Int64("total", rep.Total))
	return rep, nil
}

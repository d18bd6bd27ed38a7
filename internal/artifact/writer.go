package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"novacred-engine/internal/clean"
	"novacred-engine/internal/config"
	"novacred-engine/internal/domain"
	"novacred-engine/internal/metrics"
	"novacred-engine/internal/report"
	"novacred-engine/internal/store"
	"novacred-engine/internal/table"
)

const (
	CleanCSV       = "df_clean.csv"
	CleanJSON      = "df_clean.json"
	DroppedSSNCSV  = "dropped_duplicate_ssn.csv"
	DroppedSSNJSON = "dropped_duplicate_ssn.json"
	DroppedIDCSV   = "dropped_duplicate_id.csv"
	DroppedIDJSON  = "dropped_duplicate_id.json"
	ChangesCSV     = "changes.csv"
	LockFile       = ".lock"
)

// droppedLogs splits the dropped-record log by reason. SSN conflicts and
// repeated ids never share a file.
var droppedLogs = []struct {
	reason    string
	csv, json string
}{
	{clean.RuleDuplicateSSN, DroppedSSNCSV, DroppedSSNJSON},
	{clean.RuleDuplicateID, DroppedIDCSV, DroppedIDJSON},
}

var ErrLocked = errors.New("output directory is locked by another run")

// runNamespace scopes run ids so they never collide with other SHA-1 uuids.
var runNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("novacred-engine/cleaner/run"))

// RunID derives a stable id from the input digest and the reference date:
// the same input cleaned under the same audit date always gets the same id.
func RunID(inputSHA256, referenceDate string) string {
	return uuid.NewSHA1(runNamespace, []byte(inputSHA256+"\x00"+referenceDate)).String()
}

// Run is everything one pass produced, plus where it came from.
type Run struct {
	ID            string
	InputPath     string
	InputSHA256   string
	ReferenceDate string
	InputCount    int
	Formats       clean.FormatAudit
	Result        *clean.Result
}

type Writer struct {
	Outputs config.Outputs
	Logger  *slog.Logger
}

func (w *Writer) logger() *slog.Logger {
	if w.Logger == nil {
		return slog.Default()
	}
	return w.Logger
}

// Lock takes the output directory for this process. Call the returned
// function to release it.
func (w *Writer) Lock() (func() error, error) {
	if err := os.MkdirAll(w.Outputs.Dir, 0o755); err != nil {
		return nil, err
	}
	fl := flock.New(filepath.Join(w.Outputs.Dir, LockFile))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fl.Path(), err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, fl.Path())
	}
	return fl.Unlock, nil
}

type job struct {
	name  string
	write func(ctx context.Context, path string) error
}

// WriteAll writes every enabled artifact for run concurrently and returns
// the paths written, sorted. File artifacts replace their previous version
// atomically; the audit database replaces the rows of run.ID in one
// transaction.
func (w *Writer) WriteAll(ctx context.Context, run Run) ([]string, error) {
	if run.Result == nil {
		return nil, errors.New("write artifacts: nil result")
	}
	if err := os.MkdirAll(w.Outputs.Dir, 0o755); err != nil {
		return nil, err
	}

	res := run.Result
	var jobs []job
	if w.Outputs.CSV {
		jobs = append(jobs,
			job{CleanCSV, func(_ context.Context, p string) error {
				h, rows := table.Flatten(res.Clean)
				return writeAtomic(p, func(f io.Writer) error { return table.WriteCSV(f, h, rows) })
			}},
			job{ChangesCSV, func(_ context.Context, p string) error {
				h, rows := table.FlattenChanges(res.Changes)
				return writeAtomic(p, func(f io.Writer) error { return table.WriteCSV(f, h, rows) })
			}},
		)
		for _, l := range droppedLogs {
			dropped := res.DroppedFor(l.reason)
			jobs = append(jobs, job{l.csv, func(_ context.Context, p string) error {
				h, rows := table.FlattenDropped(dropped)
				return writeAtomic(p, func(f io.Writer) error { return table.WriteCSV(f, h, rows) })
			}})
		}
	}
	if w.Outputs.JSON {
		jobs = append(jobs, job{CleanJSON, func(_ context.Context, p string) error {
			return writeAtomic(p, func(f io.Writer) error { return writeJSON(f, cleanEntries(res.Clean)) })
		}})
		for _, l := range droppedLogs {
			dropped := res.DroppedFor(l.reason)
			jobs = append(jobs, job{l.json, func(_ context.Context, p string) error {
				return writeAtomic(p, func(f io.Writer) error { return writeJSON(f, droppedEntries(dropped)) })
			}})
		}
	}
	if w.Outputs.SQLite {
		jobs = append(jobs, job{store.FileName, func(ctx context.Context, p string) error {
			db, err := store.Open(p)
			if err != nil {
				return err
			}
			defer db.Close()
			return store.SaveRun(ctx, db.Pool, store.RunInsert{
				RunID:         run.ID,
				InputPath:     run.InputPath,
				InputSHA256:   run.InputSHA256,
				ReferenceDate: run.ReferenceDate,
				InputCount:    run.InputCount,
				Result:        res,
			})
		}})
	}
	if w.Outputs.Report {
		jobs = append(jobs, job{report.FileName, func(_ context.Context, p string) error {
			s := report.Summarize(res, report.Meta{
				RunID:         run.ID,
				InputPath:     run.InputPath,
				InputSHA256:   run.InputSHA256,
				InputCount:    run.InputCount,
				ReferenceDate: run.ReferenceDate,
				Formats:       run.Formats,
			})
			return writeAtomic(p, func(f io.Writer) error { return report.Render(f, s) })
		}})
	}
	if w.Outputs.Metrics {
		jobs = append(jobs, job{metrics.FileName, func(_ context.Context, p string) error {
			m := metrics.New()
			m.Observe(res)
			return m.WriteTextfile(p)
		}})
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	var written []string
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p := filepath.Join(w.Outputs.Dir, j.name)
			if err := j.write(gctx, p); err != nil {
				return fmt.Errorf("write %s: %w", j.name, err)
			}
			w.logger().Debug("artifact written", "path", p)
			mu.Lock()
			written = append(written, p)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(written)
	w.logger().Info("artifacts written", "dir", w.Outputs.Dir, "count", len(written), "run", run.ID)
	return written, nil
}

// writeAtomic writes through path.tmp and renames it over path, so readers
// see either the old file or the complete new one.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CleanEntry is one record of df_clean.json: the record itself plus the
// email verdict, which is true, false or null when there was no email.
type CleanEntry struct {
	domain.Record
	EmailValid *bool `json:"email_valid"`
}

func cleanEntries(recs []domain.Record) []CleanEntry {
	out := make([]CleanEntry, len(recs))
	for i, r := range recs {
		out[i] = CleanEntry{Record: r, EmailValid: clean.EmailValid(r)}
	}
	return out
}

// DroppedEntry is one line of the dropped-record log. Original holds the
// record exactly as it appeared in the input.
type DroppedEntry struct {
	SourceIndex int             `json:"source_index"`
	ID          string          `json:"_id"`
	Reason      string          `json:"reason"`
	KeptID      string          `json:"kept_id"`
	Original    json.RawMessage `json:"original"`
}

func droppedEntries(dropped []clean.DroppedRecord) []DroppedEntry {
	out := make([]DroppedEntry, 0, len(dropped))
	for _, d := range dropped {
		raw := json.RawMessage(d.Raw)
		if len(raw) == 0 {
			b, err := json.Marshal(d.Original)
			if err == nil {
				raw = b
			}
		}
		out = append(out, DroppedEntry{
			SourceIndex: d.Index,
			ID:          d.ID,
			Reason:      d.Reason,
			KeptID:      d.KeptID,
			Original:    raw,
		})
	}
	return out
}

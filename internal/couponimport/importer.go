package couponimport

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/coupon"
)

// Upserter stores imported coupons. Re-importing a code replaces its rules and
// keeps its usage; Upsert returns coupon.ErrLimitBelowUsage when the new limit
// is below that usage.
type Upserter interface {
	Upsert(ctx context.Context, c *coupon.Coupon) error
}

// Config tunes an Importer. Zero fields take defaults.
type Config struct {
	// Workers parse and upsert batches concurrently.
	Workers   int
	BatchSize int
	// ExpectedCodes sizes the per-file bloom filter.
	ExpectedCodes     uint
	FalsePositiveRate float64
	Now               func() time.Time
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.ExpectedCodes == 0 {
		c.ExpectedCodes = 1_000_000
	}
	if c.FalsePositiveRate <= 0 {
		c.FalsePositiveRate = 0.001
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Stats summarizes a run.
type Stats struct {
	Rows       int64
	Imported   int64
	Duplicates int64
	Invalid    int64
}

type counters struct {
	rows, imported, duplicates, invalid atomic.Int64
}

func (c *counters) stats() Stats {
	return Stats{
		Rows:       c.rows.Load(),
		Imported:   c.imported.Load(),
		Duplicates: c.duplicates.Load(),
		Invalid:    c.invalid.Load(),
	}
}

// Importer loads coupon files into an Upserter. Rows repeating a code already
// seen in the same run are skipped; the first occurrence in file order wins.
type Importer struct {
	dst Upserter
	cfg Config
	log *slog.Logger
}

// New creates an Importer.
func New(dst Upserter, cfg Config, log *slog.Logger) *Importer {
	cfg.setDefaults()
	return &Importer{dst: dst, cfg: cfg, log: log}
}

// screen is the pass 1 summary of one file.
type screen struct {
	filter *bloom.BloomFilter
	// repeats holds codes the filter reported before they were added: real
	// repeats within the file plus false positives.
	repeats map[string]struct{}
	rows    int64
}

// Run imports files. Pass 1 builds a bloom filter per file concurrently.
// Pass 2 streams the files in order; only codes the filters flag as possible
// duplicates are tracked exactly, so memory stays proportional to the
// duplicates rather than to the input.
func (im *Importer) Run(ctx context.Context, files []string) (Stats, error) {
	screens := make([]*screen, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			s, err := im.screenFile(gctx, path)
			if err != nil {
				return errors.Wrapf(err, "screen %s", path)
			}
			im.log.Info("pass 1 complete", slog.String("file", path), slog.Int64("rows", s.rows),
				slog.Int("repeats", len(s.repeats)))
			screens[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}

	var (
		cnt     counters
		claimed = map[string]struct{}{}
		batch   = make([][]string, 0, im.cfg.BatchSize)
		now     = im.cfg.Now()
	)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(im.cfg.Workers)
	flush := func() {
		rows := batch
		batch = make([][]string, 0, im.cfg.BatchSize)
		g.Go(func() error { return im.load(gctx, rows, now, &cnt) })
	}

	for idx, path := range files {
		err := eachRecord(gctx, path, func(rec []string) error {
			cnt.rows.Add(1)
			if code := coupon.NormalizeCode(rec[colCode]); code != "" && suspect(screens, idx, code) {
				if _, dup := claimed[code]; dup {
					cnt.duplicates.Add(1)
					im.log.Warn("duplicate code skipped", slog.String("code", code), slog.String("file", path))
					return nil
				}
				claimed[code] = struct{}{}
			}
			batch = append(batch, rec)
			if len(batch) == im.cfg.BatchSize {
				flush()
			}
			return nil
		})
		if err != nil {
			_ = g.Wait()
			return cnt.stats(), errors.Wrapf(err, "import %s", path)
		}
	}
	if len(batch) > 0 {
		flush()
	}
	if err := g.Wait(); err != nil {
		return cnt.stats(), err
	}
	return cnt.stats(), nil
}

func (im *Importer) screenFile(ctx context.Context, path string) (*screen, error) {
	s := &screen{
		filter:  bloom.NewWithEstimates(im.cfg.ExpectedCodes, im.cfg.FalsePositiveRate),
		repeats: map[string]struct{}{},
	}
	err := eachRecord(ctx, path, func(rec []string) error {
		s.rows++
		code := coupon.NormalizeCode(rec[colCode])
		if code != "" && s.filter.TestOrAddString(code) {
			s.repeats[code] = struct{}{}
		}
		return nil
	})
	return s, err
}

// suspect reports whether code may occur more than once across all files.
func suspect(screens []*screen, idx int, code string) bool {
	if _, ok := screens[idx].repeats[code]; ok {
		return true
	}
	for j, s := range screens {
		if j != idx && s.filter.TestString(code) {
			return true
		}
	}
	return false
}

func (im *Importer) load(ctx context.Context, rows [][]string, now time.Time, cnt *counters) error {
	for _, rec := range rows {
		c, err := ParseRecord(rec, now)
		if err != nil {
			cnt.invalid.Add(1)
			im.log.Warn("invalid row skipped", slog.String("code", rec[colCode]), slog.String("error", err.Error()))
			continue
		}
		if err := im.dst.Upsert(ctx, c); err != nil {
			if errors.Is(err, coupon.ErrLimitBelowUsage) {
				cnt.invalid.Add(1)
				im.log.Warn("usage limit below redemptions, row skipped", slog.String("code", c.Code))
				continue
			}
			return errors.Wrapf(err, "upsert %s", c.Code)
		}
		cnt.imported.Add(1)
	}
	return nil
}

// eachRecord streams the CSV rows of path, gunzipping files ending in .gz.
func eachRecord(ctx context.Context, path string, fn func(rec []string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(err, "gzip reader")
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	for first := true; ; first = false {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read csv")
		}
		if first && isHeader(rec) {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Package digest keeps payload digests of past decode runs in a pebble
// database so later runs can report which entries are new or changed.
package digest

import (
	"encoding/binary"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/dbcache/pkg/decoder"
	"github.com/ssargent/dbcache/pkg/metrics"
)

const (
	prefixDigest = 'd'
	keySize      = 1 + 4*4
)

var lastRunKey = []byte("r/last")

// Change classifies an entry against the stored digests
type Change uint8

const (
	ChangeNew Change = iota
	ChangeChanged
	ChangeUnchanged
)

func (c Change) String() string {
	switch c {
	case ChangeNew:
		return "new"
	case ChangeChanged:
		return "changed"
	default:
		return "unchanged"
	}
}

// Entry is the diff outcome for one decode result
type Entry struct {
	Result   *decoder.Result
	Change   Change
	Previous string // stored digest for ChangeChanged
}

// RunInfo describes a committed run
type RunInfo struct {
	ID      ksuid.KSUID
	Entries int
}

// Time returns when the run was started
func (r RunInfo) Time() time.Time {
	return r.ID.Time()
}

// StoreConfig holds configuration for the digest store
type StoreConfig struct {
	Dir     string
	Logger  log.Logger
	Metrics *metrics.Metrics
}

// Store is a pebble-backed digest store
type Store struct {
	db      *pebble.DB
	logger  log.Logger
	metrics *metrics.Metrics
}

// Open opens or creates the store in config.Dir
func Open(config StoreConfig) (*Store, error) {
	db, err := pebble.Open(config.Dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening digest store %s", config.Dir)
	}
	s := &Store{db: db, logger: config.Logger, metrics: config.Metrics}
	if s.logger == nil {
		s.logger = log.NewNopLogger()
	}
	return s, nil
}

// entryKey is the table hash, record id, push id and unique id, big endian
func entryKey(r *decoder.Result) []byte {
	h := r.Entry.Header
	key := make([]byte, keySize)
	key[0] = prefixDigest
	binary.BigEndian.PutUint32(key[1:], h.TableHash)
	binary.BigEndian.PutUint32(key[5:], h.RecordID)
	binary.BigEndian.PutUint32(key[9:], uint32(h.PushID))
	binary.BigEndian.PutUint32(key[13:], h.UniqueID)
	return key
}

func (s *Store) get(key []byte) (string, bool, error) {
	data, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()

	return string(data), true, nil
}

// Diff compares each result's digest with the stored one
func (s *Store) Diff(results []*decoder.Result) ([]Entry, error) {
	out := make([]Entry, 0, len(results))
	for _, r := range results {
		prev, ok, err := s.get(entryKey(r))
		if err != nil {
			return nil, errors.Wrap(err, "reading digest")
		}

		e := Entry{Result: r, Change: ChangeUnchanged}
		switch {
		case !ok:
			e.Change = ChangeNew
		case prev != r.Digest:
			e.Change = ChangeChanged
			e.Previous = prev
		}
		if s.metrics != nil {
			s.metrics.RecordDigest(e.Change.String())
		}
		out = append(out, e)
	}
	return out, nil
}

// Commit stores the digests of entries and records runID as the last run.
// Unchanged entries are skipped.
func (s *Store) Commit(runID string, entries []Entry) error {
	id, err := ksuid.Parse(runID)
	if err != nil {
		return errors.Wrapf(err, "invalid run id %q", runID)
	}

	b := s.db.NewBatch()
	defer b.Close()

	written := 0
	for _, e := range entries {
		if e.Change == ChangeUnchanged {
			continue
		}
		if err := b.Set(entryKey(e.Result), []byte(e.Result.Digest), nil); err != nil {
			return err
		}
		written++
	}

	run := make([]byte, len(id)+4)
	copy(run, id.Bytes())
	binary.BigEndian.PutUint32(run[len(id):], uint32(len(entries)))
	if err := b.Set(lastRunKey, run, nil); err != nil {
		return err
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "committing digests")
	}
	level.Debug(s.logger).Log("msg", "committed digests", "run_id", runID, "entries", len(entries), "written", written)
	return nil
}

// LastRun returns the most recently committed run
func (s *Store) LastRun() (RunInfo, bool, error) {
	data, closer, err := s.db.Get(lastRunKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return RunInfo{}, false, nil
	}
	if err != nil {
		return RunInfo{}, false, err
	}
	defer closer.Close()

	if len(data) != len(ksuid.Nil)+4 {
		return RunInfo{}, false, errors.Errorf("corrupt run record of %d bytes", len(data))
	}
	id, err := ksuid.FromBytes(data[:len(ksuid.Nil)])
	if err != nil {
		return RunInfo{}, false, err
	}
	return RunInfo{ID: id, Entries: int(binary.BigEndian.Uint32(data[len(ksuid.Nil):]))}, true, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

package stats

import (
	"database/sql"
	"fmt"
	"sync"

	// Registers the sqlite3 driver used below.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/tebeka/atexit"

	"github.com/vnetsim/vnetsim/sim"
)

// Writer persists recorded samples to a SQLite database, batching inserts
// and flushing on simulation exit. A run that does not ask for persistence
// simply never constructs one; Recorder works standalone.
type Writer struct {
	mu sync.Mutex

	db            *sql.DB
	sampleStmt    *sql.Stmt
	rttStmt       *sql.Stmt
	dbName        string
	batchSize     int
	pendingSample []Sample
	pendingRTT    []RTTSample
}

// NewWriter creates a Writer backed by a SQLite file at path. If path is
// empty, Init generates a name unique to this process with rs/xid, the
// same generator that supplies fabric MAC suffixes and parallel-run event
// ids elsewhere in the core.
func NewWriter(path string) *Writer {
	w := &Writer{
		dbName:    path,
		batchSize: 10000,
	}

	atexit.Register(func() { w.Flush() })

	return w
}

// Init opens the database connection and creates the sample/rtt tables.
func (w *Writer) Init() error {
	if w.dbName == "" {
		w.dbName = "vnetsim_stats_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", w.dbName)
	if err != nil {
		return fmt.Errorf("stats: open %s: %w", w.dbName, err)
	}

	w.db = db

	if err := w.exec(`
		CREATE TABLE IF NOT EXISTS sample (
			counter VARCHAR(64) NOT NULL,
			source  VARCHAR(200) NOT NULL,
			time    FLOAT NOT NULL
		)
	`); err != nil {
		return err
	}

	if err := w.exec(`
		CREATE TABLE IF NOT EXISTS rtt_sample (
			source VARCHAR(200) NOT NULL,
			time   FLOAT NOT NULL,
			rtt    FLOAT NOT NULL
		)
	`); err != nil {
		return err
	}

	sampleStmt, err := db.Prepare(`INSERT INTO sample VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("stats: prepare sample insert: %w", err)
	}
	w.sampleStmt = sampleStmt

	rttStmt, err := db.Prepare(`INSERT INTO rtt_sample VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("stats: prepare rtt insert: %w", err)
	}
	w.rttStmt = rttStmt

	return nil
}

func (w *Writer) exec(query string) error {
	_, err := w.db.Exec(query)
	if err != nil {
		return fmt.Errorf("stats: exec %q: %w", query, err)
	}

	return nil
}

// WriteSample buffers a sample for eventual persistence.
func (w *Writer) WriteSample(s Sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pendingSample = append(w.pendingSample, s)
	if len(w.pendingSample) >= w.batchSize {
		w.flushSamplesLocked()
	}
}

// WriteRTT buffers an RTT sample for eventual persistence.
func (w *Writer) WriteRTT(s RTTSample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pendingRTT = append(w.pendingRTT, s)
	if len(w.pendingRTT) >= w.batchSize {
		w.flushRTTLocked()
	}
}

// OnSimulationEnd flushes when the engine finishes, so a run's database
// is complete even before process exit.
func (w *Writer) OnSimulationEnd(_ sim.VTimeInSec) {
	w.Flush()
}

// Flush writes every buffered sample to the database.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.flushSamplesLocked()
	w.flushRTTLocked()
}

func (w *Writer) flushSamplesLocked() {
	if len(w.pendingSample) == 0 || w.db == nil {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		return
	}

	for _, s := range w.pendingSample {
		_, _ = tx.Stmt(w.sampleStmt).Exec(string(s.Counter), s.Source, float64(s.Time))
	}

	_ = tx.Commit()
	w.pendingSample = nil
}

func (w *Writer) flushRTTLocked() {
	if len(w.pendingRTT) == 0 || w.db == nil {
		return
	}

	tx, err := w.db.Begin()
	if err != nil {
		return
	}

	for _, s := range w.pendingRTT {
		_, _ = tx.Stmt(w.rttStmt).Exec(s.Source, float64(s.Time), float64(s.RTT))
	}

	_ = tx.Commit()
	w.pendingRTT = nil
}

// Close flushes pending writes and closes the database connection.
func (w *Writer) Close() error {
	w.Flush()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.db == nil {
		return nil
	}

	return w.db.Close()
}

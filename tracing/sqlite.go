package tracing

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/tebeka/atexit"
)

// SQLiteTraceWriter is a writer that writes trace data to a SQLite database.
type SQLiteTraceWriter struct {
	*sql.DB

	lock          sync.Mutex
	statement     *sql.Stmt
	stepStatement *sql.Stmt

	dbName           string
	tasksToWriteToDB []Task
	batchSize        int
}

// NewSQLiteTraceWriter creates a new SQLiteTraceWriter. If path is empty, a
// unique name is picked when the database is created. Buffered tasks are
// flushed when the program exits through atexit.
func NewSQLiteTraceWriter(path string) *SQLiteTraceWriter {
	w := &SQLiteTraceWriter{
		dbName:    path,
		batchSize: 1000,
	}

	atexit.Register(func() {
		if err := w.Flush(); err != nil {
			logrus.WithError(err).Error("flushing trace failed")
		}
	})

	return w
}

// FileName returns the name of the database file.
func (t *SQLiteTraceWriter) FileName() string {
	return t.dbName + ".sqlite3"
}

// Init creates the database and its tables.
func (t *SQLiteTraceWriter) Init() error {
	if err := t.createDatabase(); err != nil {
		return err
	}

	if err := t.createTables(); err != nil {
		return err
	}

	return t.prepareStatements()
}

// Write buffers a task. The buffer is flushed when it reaches the batch size.
func (t *SQLiteTraceWriter) Write(task Task) {
	t.lock.Lock()
	t.tasksToWriteToDB = append(t.tasksToWriteToDB, task)
	full := len(t.tasksToWriteToDB) >= t.batchSize
	t.lock.Unlock()

	if full {
		if err := t.Flush(); err != nil {
			logrus.WithError(err).Error("flushing trace failed")
		}
	}
}

// Flush writes all the buffered tasks to the database.
func (t *SQLiteTraceWriter) Flush() error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.tasksToWriteToDB) == 0 || t.DB == nil {
		return nil
	}

	tx, err := t.Begin()
	if err != nil {
		return err
	}

	for _, task := range t.tasksToWriteToDB {
		if err := t.insertTask(tx, task); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert task %s: %w", task.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	t.tasksToWriteToDB = nil

	return nil
}

func (t *SQLiteTraceWriter) insertTask(tx *sql.Tx, task Task) error {
	_, err := tx.Stmt(t.statement).Exec(
		task.ID,
		task.ParentID,
		task.Kind,
		task.What,
		task.Where,
		seconds(task.StartTime),
		seconds(task.EndTime),
	)
	if err != nil {
		return err
	}

	for _, step := range task.Steps {
		_, err := tx.Stmt(t.stepStatement).Exec(
			task.ID, step.What, seconds(step.Time))
		if err != nil {
			return err
		}
	}

	return nil
}

func seconds(tm time.Time) float64 {
	if tm.IsZero() {
		return 0
	}

	return float64(tm.UnixNano()) / 1e9
}

func (t *SQLiteTraceWriter) createDatabase() error {
	if t.dbName == "" {
		t.dbName = "iopata_trace_" + xid.New().String()
	}

	filename := t.FileName()

	_, err := os.Stat(filename)
	if err == nil {
		return fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return err
	}

	t.DB = db

	logrus.WithField("file", filename).Info("trace is collected in database")

	return nil
}

func (t *SQLiteTraceWriter) createTables() error {
	for _, query := range []string{
		`create table trace
		(
			task_id    varchar(200) not null,
			parent_id  varchar(200),
			kind       varchar(100),
			what       varchar(100),
			location   varchar(100),
			start_time float        not null,
			end_time   float        default 0
		);`,
		`create index trace_task_id_uindex on trace (task_id);`,
		`create index trace_kind_index on trace (kind);`,
		`create index trace_location_index on trace (location);`,
		`create table trace_step
		(
			task_id varchar(200) not null,
			what    varchar(100),
			time    float
		);`,
		`create index trace_step_task_id_index on trace_step (task_id);`,
	} {
		if _, err := t.Exec(query); err != nil {
			return fmt.Errorf("execute %q: %w", query, err)
		}
	}

	return nil
}

func (t *SQLiteTraceWriter) prepareStatements() error {
	stmt, err := t.Prepare(`INSERT INTO trace VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}

	t.statement = stmt

	stmt, err = t.Prepare(`INSERT INTO trace_step VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}

	t.stepStatement = stmt

	return nil
}

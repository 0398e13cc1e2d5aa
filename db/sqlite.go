package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mllab/session"
)

var database *sql.DB

// InitDB initializes the SQLite database used for the training-run and
// prediction audit log.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        session_id TEXT NOT NULL,
        mode VARCHAR(20),
        task VARCHAR(20),
        samples INTEGER,
        features INTEGER,
        classes INTEGER,
        final_loss REAL,
        val_loss REAL,
        val_accuracy REAL,
        duration_ms INTEGER,
        trained_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        UNIQUE(run_id)
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        mode VARCHAR(20),
        label TEXT,
        confidence REAL,
        value REAL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err = database.Exec(query)
	return err
}

// Close closes the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	return database.Close()
}

// Store implements session.Recorder on top of the sqlite audit log.
type Store struct{}

// NewStore returns the recorder. InitDB must have run first.
func NewStore() *Store { return &Store{} }

func (s *Store) RecordRun(run session.RunRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_runs
        (run_id, session_id, mode, task, samples, features, classes, final_loss, val_loss, val_accuracy, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.SessionID, run.Mode, run.Task, run.Samples, run.Features,
		run.Classes, run.FinalLoss, run.ValLoss, run.ValAcc, run.DurationMS)
	return err
}

func (s *Store) RecordPrediction(p session.PredictionRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO predictions (session_id, mode, label, confidence, value)
        VALUES (?, ?, ?, ?, ?)`,
		p.SessionID, p.Mode, p.Label, p.Confidence, p.Value)
	return err
}

// TrainingRun is one persisted run row.
type TrainingRun struct {
	RunID      string    `json:"run_id"`
	SessionID  string    `json:"session_id"`
	Mode       string    `json:"mode"`
	Task       string    `json:"task"`
	Samples    int       `json:"samples"`
	Features   int       `json:"features"`
	Classes    int       `json:"classes"`
	FinalLoss  float64   `json:"final_loss"`
	ValLoss    float64   `json:"val_loss"`
	ValAcc     float64   `json:"val_accuracy"`
	DurationMS int64     `json:"duration_ms"`
	TrainedAt  time.Time `json:"trained_at"`
}

// QueryTrainingRuns returns the most recent runs, newest first.
func QueryTrainingRuns(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT run_id, session_id, mode, task, samples, features, classes,
               final_loss, val_loss, val_accuracy, duration_ms, trained_at
        FROM training_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []TrainingRun
	for rows.Next() {
		var r TrainingRun
		if err := rows.Scan(&r.RunID, &r.SessionID, &r.Mode, &r.Task, &r.Samples, &r.Features,
			&r.Classes, &r.FinalLoss, &r.ValLoss, &r.ValAcc, &r.DurationMS, &r.TrainedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

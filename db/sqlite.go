package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"vaprisk/ml"
	"vaprisk/risk"
)

var database *sql.DB

// InitDB initializes the SQLite database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS assessments (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        probability REAL,
        risk_level VARCHAR(20),
        protocol VARCHAR(20),
        model_kind VARCHAR(20),
        head_of_bed REAL,
        vent_hours REAL,
        apache_ii REAL,
        age REAL,
        gerd REAL,
        icu_days REAL,
        gcs REAL,
        created_at DATETIME
    );
    CREATE TABLE IF NOT EXISTS model_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        event VARCHAR(20),
        path VARCHAR(255),
        kind VARCHAR(20),
        fingerprint VARCHAR(32),
        created_at DATETIME
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
	err := database.Close()
	database = nil
	return err
}

// AssessmentRow is one persisted assessment.
type AssessmentRow struct {
	ID          int64              `json:"id"`
	Probability float64            `json:"probability"`
	RiskLevel   string             `json:"risk_level"`
	Protocol    string             `json:"protocol"`
	ModelKind   string             `json:"model_kind"`
	Features    ml.PatientFeatures `json:"features"`
	CreatedAt   time.Time          `json:"created_at"`
}

// SaveAssessment appends a completed assessment to the history table.
func SaveAssessment(a *risk.Assessment) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO assessments
        (probability, risk_level, protocol, model_kind, head_of_bed, vent_hours, apache_ii, age, gerd, icu_days, gcs, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Probability, string(a.RiskLevel), string(a.Protocol.Tier), string(a.ModelKind),
		a.Features.HeadOfBed, a.Features.VentHours, a.Features.ApacheII, a.Features.Age,
		a.Features.GERD, a.Features.ICUDays, a.Features.GCS, a.CreatedAt)
	return err
}

// QueryAssessments returns the most recent assessments, newest first.
func QueryAssessments(limit int) ([]AssessmentRow, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT id, probability, risk_level, protocol, model_kind,
               head_of_bed, vent_hours, apache_ii, age, gerd, icu_days, gcs, created_at
        FROM assessments ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]AssessmentRow, 0, limit)
	for rows.Next() {
		var row AssessmentRow
		if err := rows.Scan(&row.ID, &row.Probability, &row.RiskLevel, &row.Protocol, &row.ModelKind,
			&row.Features.HeadOfBed, &row.Features.VentHours, &row.Features.ApacheII, &row.Features.Age,
			&row.Features.GERD, &row.Features.ICUDays, &row.Features.GCS, &row.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// SaveModelEvent records a model load, upload or invalidation.
func SaveModelEvent(event string, info ml.ModelInfo) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO model_events (event, path, kind, fingerprint, created_at)
        VALUES (?, ?, ?, ?, ?)`,
		event, info.Path, string(info.Kind), info.Fingerprint, time.Now())
	return err
}

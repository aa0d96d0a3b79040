package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// PredictionRecord is one row of the prediction log.
type PredictionRecord struct {
	ID              int64     `json:"id"`
	Age             int       `json:"age"`
	Gender          string    `json:"gender"`
	BMI             float64   `json:"bmi"`
	Children        int       `json:"children"`
	Smoker          string    `json:"smoker"`
	Region          string    `json:"region"`
	Charge          float64   `json:"charge"`
	ModelGeneration uint64    `json:"model_generation"`
	CreatedAt       time.Time `json:"created_at"`
}

// InitDB initializes the SQLite database
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        age INTEGER NOT NULL,
        gender TEXT NOT NULL,
        bmi REAL NOT NULL,
        children INTEGER NOT NULL,
        smoker TEXT NOT NULL,
        region TEXT NOT NULL,
        charge REAL NOT NULL,
        model_generation INTEGER NOT NULL DEFAULT 0,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return err
	}

	database = conn
	return nil
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

func SavePrediction(rec PredictionRecord) (int64, error) {
	if database == nil {
		return 0, errors.New("database not initialized")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := database.Exec(`
        INSERT INTO predictions (
            age, gender, bmi, children, smoker, region, charge, model_generation, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Age, rec.Gender, rec.BMI, rec.Children, rec.Smoker, rec.Region,
		rec.Charge, int64(rec.ModelGeneration), rec.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentPredictions returns up to limit rows, newest first.
func RecentPredictions(limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := database.Query(`
        SELECT id, age, gender, bmi, children, smoker, region, charge, model_generation, created_at
        FROM predictions
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var generation int64
		if err := rows.Scan(&rec.ID, &rec.Age, &rec.Gender, &rec.BMI, &rec.Children, &rec.Smoker,
			&rec.Region, &rec.Charge, &generation, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ModelGeneration = uint64(generation)
		records = append(records, rec)
	}
	return records, rows.Err()
}

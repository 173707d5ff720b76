package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// LoadFromSIS reads the roster for a class from the faculty's student
// information system (MariaDB). The SIS schema is external; we only read the
// class membership join.
func LoadFromSIS(ctx context.Context, dsn string, classID int64) (*Roster, error) {
	if dsn == "" {
		return nil, errors.New("SIS DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SIS database: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping SIS database: %w", err)
	}

	query := `
		SELECT s.id, s.full_name
		FROM students s
		JOIN class_students cs ON cs.student_id = s.id
		WHERE cs.class_id = ?
	`
	rows, err := db.QueryContext(ctx, query, classID)
	if err != nil {
		return nil, fmt.Errorf("query class roster: %w", err)
	}
	defer rows.Close()

	names := make(map[int64]string)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan roster row: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roster rows: %w", err)
	}

	if len(names) == 0 {
		return nil, fmt.Errorf("class %d has no enrolled students", classID)
	}
	return New(names), nil
}

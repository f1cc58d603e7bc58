package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/examdesk/incidentd/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Fixtures inserts the reference rows incidents point at: institutions,
// exams with their course and venue, scripts and users. Every natural key
// gets a uuid suffix so tests sharing a database do not collide.
type Fixtures struct {
	db *pgxpool.Pool
}

// NewFixtures creates a fixture writer over db.
func NewFixtures(db *pgxpool.Pool) *Fixtures {
	return &Fixtures{db: db}
}

// UniqueName returns prefix followed by a short random suffix.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// Institution creates an institution and returns its id.
func (f *Fixtures) Institution(t *testing.T) int64 {
	t.Helper()
	return f.insert(t, `INSERT INTO institutions (name) VALUES ($1) RETURNING id`, UniqueName("institution"))
}

// Exam creates an exam under a new faculty, department and course of the
// institution and returns the exam id.
func (f *Fixtures) Exam(t *testing.T, institutionID int64) int64 {
	t.Helper()

	facultyID := f.insert(t,
		`INSERT INTO faculties (institution_id, name) VALUES ($1, $2) RETURNING id`,
		institutionID, UniqueName("faculty"))
	departmentID := f.insert(t,
		`INSERT INTO departments (faculty_id, name) VALUES ($1, $2) RETURNING id`,
		facultyID, UniqueName("department"))
	courseID := f.insert(t,
		`INSERT INTO courses (department_id, code, name) VALUES ($1, $2, $3) RETURNING id`,
		departmentID, UniqueName("CSC"), "Data Structures")
	venueID := f.insert(t,
		`INSERT INTO venues (name, location) VALUES ($1, $2) RETURNING id`,
		UniqueName("hall"), "North campus")

	return f.insert(t,
		`INSERT INTO exams (course_id, venue_id, title, exam_date) VALUES ($1, $2, $3, $4) RETURNING id`,
		courseID, venueID, "Final examination", time.Now().UTC().Truncate(time.Second))
}

// Script creates an answer script for the exam and returns its id.
func (f *Fixtures) Script(t *testing.T, examID int64) int64 {
	t.Helper()
	return f.insert(t,
		`INSERT INTO scripts (exam_id, code, student_id, status) VALUES ($1, $2, $3, $4) RETURNING id`,
		examID, UniqueName("script"), UniqueName("student"), "COLLECTED")
}

// User creates a user with the role and returns its id.
func (f *Fixtures) User(t *testing.T, role domain.Role, firstName, lastName string) int64 {
	t.Helper()
	return f.insert(t,
		`INSERT INTO users (first_name, last_name, email, role) VALUES ($1, $2, $3, $4) RETURNING id`,
		firstName, lastName, UniqueName("user")+"@example.edu", string(role))
}

func (f *Fixtures) insert(t *testing.T, query string, args ...any) int64 {
	t.Helper()
	var id int64
	if err := f.db.QueryRow(context.Background(), query, args...).Scan(&id); err != nil {
		t.Fatalf("insert fixture: %v", err)
	}
	return id
}

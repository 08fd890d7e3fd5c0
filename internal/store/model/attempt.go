package model

import "time"

// Attempt is one upstream call attempt: primary or backup, streamed or not.
// One caller invocation produces one or more attempts sharing InvocationID.
type Attempt struct {
	ID            string    `db:"id"`
	InvocationID  string    `db:"invocation_id"`
	Model         string    `db:"model"`
	Attempt       int       `db:"attempt"`
	EndpointClass string    `db:"endpoint_class"` // "primary" or "backup-N"
	Streamed      bool      `db:"streamed"`
	Outcome       string    `db:"outcome"` // "success" or "failure"
	ErrorKind     string    `db:"error_kind"`
	Detail        string    `db:"detail"`
	ElapsedMS     int64     `db:"elapsed_ms"`
	CreatedAt     time.Time `db:"created_at"`
}

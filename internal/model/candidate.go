package model

import "time"

// Candidate is an exam taker.
type Candidate struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CandidateLoginRequest is the payload for a candidate starting an attempt.
// A successful login creates (or resumes) the exam session directly.
type CandidateLoginRequest struct {
	ExamID      string `json:"exam_id" binding:"required,uuid"`
	Username    string `json:"username" binding:"required,min=1,max=100"`
	Password    string `json:"password" binding:"required,min=4,max=100"`
	Fingerprint string `json:"fingerprint" binding:"required,min=8,max=200"`
}

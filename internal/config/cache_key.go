package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// CandidateLoginKey returns the cache key holding a candidate's active JWT ID.
func (r *CacheKeyStruct) CandidateLoginKey(candidateID int) string {
	return fmt.Sprintf("login:candidate:%d", candidateID)
}

// SessionAnswersKey returns the cache key for a session's live answer state.
func (r *CacheKeyStruct) SessionAnswersKey(token string) string {
	return fmt.Sprintf("session:%s:answers", token)
}

// ExamPayloadKey returns the cache key for an exam's candidate-facing payload.
func (r *CacheKeyStruct) ExamPayloadKey(examID string) string {
	return fmt.Sprintf("exam:%s:payload", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam's
// live proctor monitor feed.
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()

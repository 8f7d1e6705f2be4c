package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionKey returns the key holding a session document
func (r *CacheKeyStruct) SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// SessionLogKey returns the sorted-set key holding a session's violation log
func (r *CacheKeyStruct) SessionLogKey(sessionID string) string {
	return fmt.Sprintf("session:%s:log", sessionID)
}

// SessionIndexKey returns the set of every known session id
func (r *CacheKeyStruct) SessionIndexKey() string {
	return "sessions:index"
}

// QuestionSetKey returns the key holding a question set document
func (r *CacheKeyStruct) QuestionSetKey(questionSetID string) string {
	return fmt.Sprintf("question_set:%s", questionSetID)
}

// QuestionSetIndexKey returns the sorted set of question set ids ordered by creation time
func (r *CacheKeyStruct) QuestionSetIndexKey() string {
	return "question_sets:index"
}

// MonitorChannel returns the Redis PubSub channel name for a question set monitor
func (r *CacheKeyStruct) MonitorChannel(questionSetID string) string {
	return fmt.Sprintf("question_set:%s:monitor", questionSetID)
}

// GlobalMonitorChannel carries events for every session regardless of question set
func (r *CacheKeyStruct) GlobalMonitorChannel() string {
	return "sessions:monitor"
}

var CacheKey = NewCacheKeyStruct()

package engine

import "studyline/internal/domain"

// sessionModality maps a session type to the topic-status flag it completes.
// Theory and review sessions touch the topic without completing a modality.
var sessionModality = map[string]string{
	"pdf":       "pdf",
	"video":     "video",
	"law":       "law",
	"questions": "questions",
	"summary":   "summary",
}

// ApplyStudy returns a copy of the status map with the topic's flags advanced
// for the given session type. Flags only ever move from false to true, and any
// recorded study clears pending, even when the type maps to no modality.
func ApplyStudy(statuses domain.StatusMap, topicID, sessionType string) domain.StatusMap {
	next := make(domain.StatusMap, len(statuses)+1)
	for id, st := range statuses {
		next[id] = st
	}
	st, ok := next[topicID]
	if !ok {
		st = domain.TopicStatus{Pending: true}
	}
	st.Pending = false
	switch sessionModality[sessionType] {
	case "pdf":
		st.PDF = true
	case "video":
		st.Video = true
	case "law":
		st.Law = true
	case "questions":
		st.Questions = true
	case "summary":
		st.Summary = true
	}
	next[topicID] = st
	return next
}

// ValidSessionType reports whether t is a recognized study session type.
func ValidSessionType(t string) bool {
	switch t {
	case "theory", "pdf", "video", "questions", "law", "summary", "review":
		return true
	}
	return false
}

package ai

import (
	"fmt"

	"studyline/internal/domain"
)

// FallbackQuiz returns generic self-assessment questions for a topic, used
// when the model is unreachable or returns garbage. The answer key marks the
// strongest self-assessment as correct so scoring still works.
func FallbackQuiz(topic string, count int) []domain.QuizQuestion {
	templates := []domain.QuizQuestion{
		{
			Question:      fmt.Sprintf("Which statement best describes your command of %q?", topic),
			Options:       []string{"I can explain it to someone else", "I recognize it but cannot apply it", "I have only skimmed it", "I have not studied it yet"},
			CorrectAnswer: 0,
			Explanation:   "Being able to teach a topic is the strongest sign of mastery.",
		},
		{
			Question:      fmt.Sprintf("When did you last solve practice questions on %q?", topic),
			Options:       []string{"This week", "This month", "Over a month ago", "Never"},
			CorrectAnswer: 0,
			Explanation:   "Recent retrieval practice is the best predictor of exam recall.",
		},
		{
			Question:      fmt.Sprintf("Could you outline the main subdivisions of %q from memory?", topic),
			Options:       []string{"Yes, completely", "Most of them", "Only a few", "No"},
			CorrectAnswer: 0,
			Explanation:   "Reconstructing the structure from memory exercises the same recall the exam demands.",
		},
		{
			Question:      fmt.Sprintf("Have you written your own summary of %q?", topic),
			Options:       []string{"Yes, and revised it", "Yes, once", "Started one", "No"},
			CorrectAnswer: 0,
			Explanation:   "A revised summary in your own words consolidates the material.",
		},
		{
			Question:      fmt.Sprintf("How often do you miss questions about %q in mock exams?", topic),
			Options:       []string{"Rarely", "Sometimes", "Often", "I have not taken mocks covering it"},
			CorrectAnswer: 0,
			Explanation:   "Mock exam error rate localizes the topics that still need work.",
		},
	}
	if count <= 0 || count > len(templates) {
		count = len(templates)
	}
	return templates[:count]
}

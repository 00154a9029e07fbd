package catalogue

import "time"

const (
	SubjectGeneral = "عمومی"
	SubjectEnglish = "English"
	SubjectMath    = "ریاضی"
)

func defaultBookDocument(now time.Time) *BookDocument {
	return &BookDocument{
		Meta: Meta{Created: now},
		Books: []Book{
			{ID: "en-g12", Title: "English — صنف 12", Grade: IntPtr(12), Subject: SubjectEnglish, Language: "دری/پشتو", Source: "MOE", URL: "https://moe.gov.af/sites/default/files/2020-03/G12-Ps-English.pdf"},
			{ID: "en-g11", Title: "English — صنف 11", Grade: IntPtr(11), Subject: SubjectEnglish, Language: "دری/پشتو", Source: "MOE", URL: "https://moe.gov.af/sites/default/files/2020-03/G11-Ps-English.pdf"},
			{ID: "en-g10", Title: "English — صنف 10", Grade: IntPtr(10), Subject: SubjectEnglish, Language: "دری/پشتو", Source: "MOE", URL: "https://moe.gov.af/sites/default/files/2020-03/G10-Ps-English.pdf"},
			{ID: "math-g9", Title: "ریاضی — صنف 9", Grade: IntPtr(9), Subject: SubjectMath, Language: "دری", Source: "MOE", URL: "https://moe.gov.af/sites/default/files/2020-03/G9-Ps-English.pdf"},
		},
	}
}

func defaultQuizDocument(now time.Time) *QuizDocument {
	return &QuizDocument{
		Meta: Meta{Created: now},
		Quizzes: []Quiz{
			{
				ID:      "g9-math-1",
				Grade:   IntPtr(9),
				Subject: SubjectMath,
				Title:   "ریاضی — نمونه سوال ۱",
				Questions: []Question{
					{Prompt: "2 + 3 = ؟", Options: []string{"3", "4", "5", "6"}, AnswerIndex: 2, Explanation: "2 + 3 حاصلش 5 است."},
					{Prompt: "5 * 6 = ؟", Options: []string{"11", "30", "20", "35"}, AnswerIndex: 1, Explanation: "5 ضرب در 6 برابر 30 میشود."},
				},
			},
			{
				ID:      "g12-english-1",
				Grade:   IntPtr(12),
				Subject: SubjectEnglish,
				Title:   "انگلیسی — نمونه سوال ۱",
				Questions: []Question{
					{Prompt: "Choose the correct plural: 'child'", Options: []string{"childs", "childes", "children", "childer"}, AnswerIndex: 2, Explanation: "Correct plural is 'children'."},
				},
			},
		},
	}
}

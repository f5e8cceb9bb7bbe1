package worlds

type PayloadKind string

const (
	PayloadText      PayloadKind = "text"
	PayloadQuiz      PayloadKind = "quiz"
	PayloadFillBlank PayloadKind = "fill_blank"
	PayloadMatching  PayloadKind = "matching"
)

// InteractionPayload is the interactive body of a module. Exactly one of the
// kind-specific fields is populated.
type InteractionPayload struct {
	Kind      PayloadKind     `json:"kind" validate:"required,oneof=text quiz fill_blank matching"`
	Text      string          `json:"text,omitempty"`
	Questions []QuizQuestion  `json:"questions,omitempty" validate:"dive"`
	Blanks    []FillBlankItem `json:"blanks,omitempty" validate:"dive"`
	Pairs     []MatchingPair  `json:"pairs,omitempty" validate:"dive"`
}

type QuizQuestion struct {
	Question    string   `json:"question" validate:"required"`
	Options     []string `json:"options" validate:"min=2,dive,required"`
	AnswerIndex int      `json:"answer_index" validate:"gte=0"`
	Explanation string   `json:"explanation,omitempty"`
}

type FillBlankItem struct {
	Sentence string `json:"sentence" validate:"required"`
	Answer   string `json:"answer" validate:"required"`
	Hint     string `json:"hint,omitempty"`
}

type MatchingPair struct {
	Left  string `json:"left" validate:"required"`
	Right string `json:"right" validate:"required"`
}

// ItemCount is the number of interactive items for the payload's kind.
func (p InteractionPayload) ItemCount() int {
	switch p.Kind {
	case PayloadText:
		if p.Text == "" {
			return 0
		}
		return 1
	case PayloadQuiz:
		return len(p.Questions)
	case PayloadFillBlank:
		return len(p.Blanks)
	case PayloadMatching:
		return len(p.Pairs)
	default:
		return 0
	}
}

package ws

import "encoding/json"

// MessageType constants for WebSocket protocol.
const (
	// Client -> Server
	TypeStartExam       = "start_exam"
	TypeSelectAnswer    = "select_answer"
	TypeToggleFlag      = "toggle_flag"
	TypeNavigate        = "navigate"
	TypeSubmitSection   = "submit_section"
	TypeRequestSnapshot = "request_snapshot"

	// Server -> Client
	TypeExamSnapshot   = "exam_snapshot"
	TypeSectionChanged = "section_changed"
	TypeExamComplete   = "exam_complete"
	TypeError          = "error"
)

// Message wraps all WebSocket payloads with type and optional request ID.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID string          `json:"request_id,omitempty"`
}

// NewMessage marshals payload into a typed message.
func NewMessage(msgType string, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: msgType, Payload: raw}, nil
}

// Client Messages (incoming)

type StartExamPayload struct {
	// SessionID picks a session created over HTTP. Empty creates or resumes
	// the candidate's session.
	SessionID string `json:"session_id,omitempty"`
	Profile   string `json:"profile,omitempty"`
}

type SelectAnswerPayload struct {
	SessionID     string `json:"session_id" validate:"required"`
	SectionID     string `json:"section_id" validate:"required"`
	QuestionIndex int    `json:"question_index" validate:"gte=0"`
	OptionIndex   int    `json:"option_index" validate:"gte=0"`
}

type ToggleFlagPayload struct {
	SessionID     string `json:"session_id" validate:"required"`
	SectionID     string `json:"section_id" validate:"required"`
	QuestionIndex int    `json:"question_index" validate:"gte=0"`
}

type NavigatePayload struct {
	SessionID string `json:"session_id" validate:"required"`
	// Direction is next, previous or goto.
	Direction     string `json:"direction" validate:"required,oneof=next previous goto"`
	QuestionIndex int    `json:"question_index,omitempty" validate:"gte=0"`
}

type SubmitSectionPayload struct {
	SessionID string `json:"session_id" validate:"required"`
	SectionID string `json:"section_id" validate:"required"`
}

type RequestSnapshotPayload struct {
	SessionID string `json:"session_id" validate:"required"`
}

// Server Messages (outgoing)

type SnapshotPayload struct {
	SessionID             string          `json:"session_id"`
	Version               uint64          `json:"version"`
	Phase                 string          `json:"phase"`
	SectionIndex          int             `json:"section_index"`
	SectionCount          int             `json:"section_count"`
	SectionID             string          `json:"section_id"`
	SectionName           string          `json:"section_name"`
	ExpectedQuestionCount int             `json:"expected_question_count"`
	QuestionIndex         int             `json:"question_index"`
	TimeRemainingSeconds  int             `json:"time_remaining_seconds"`
	TimerRunning          bool            `json:"timer_running"`
	Loading               bool            `json:"loading"`
	FetchFailed           bool            `json:"fetch_failed"`
	Questions             []QuestionView  `json:"questions"`
	Answers               []*int          `json:"answers"`
	Flags                 []bool          `json:"flags"`
	Result                json.RawMessage `json:"result,omitempty"`
}

// QuestionView is a question as shown to the candidate. The answer key is
// only filled in once the exam is over.
type QuestionView struct {
	ID                 string   `json:"id"`
	Text               string   `json:"text"`
	Options            []string `json:"options"`
	CorrectOptionIndex *int     `json:"correct_option_index,omitempty"`
	Explanation        string   `json:"explanation,omitempty"`
}

type SectionChangedPayload struct {
	SessionID     string `json:"session_id"`
	FromIndex     int    `json:"from_index"`
	ToIndex       int    `json:"to_index"`
	FromSectionID string `json:"from_section_id"`
	ToSectionID   string `json:"to_section_id"`
	Trigger       string `json:"trigger"`
	At            string `json:"at"`
}

type ExamCompletePayload struct {
	SessionID   string          `json:"session_id"`
	Trigger     string          `json:"trigger"`
	CompletedAt string          `json:"completed_at"`
	Result      json.RawMessage `json:"result"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

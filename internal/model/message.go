package model

// SystemSender is the sender id on every message the service generates.
const SystemSender = "System"

// Message is delivered to a participant through Proxy.Observe. Chat messages
// are relayed verbatim as their Action; everything else is a system message
// that may carry a board update.
type Message struct {
	SenderID    string  `json:"id"`
	Text        string  `json:"text"`
	EpisodeDone bool    `json:"episode_done,omitempty"`
	Action      *Action `json:"action,omitempty"`
	Board       *Board  `json:"task_data,omitempty"`
}

// Board is the task data that drives the participant's UI.
type Board struct {
	Status      Status          `json:"board_status,omitempty"`
	NumMsgs     *int            `json:"num_msgs,omitempty"`
	Items       int             `json:"items,omitempty"`
	Issues      []string        `json:"issues,omitempty"`
	Value2Issue map[Tier]string `json:"value2issue,omitempty"`
	Deal        *Deal           `json:"deal_data,omitempty"`
	SurveyLink  string          `json:"survey_link,omitempty"`
}

// SystemMessage builds a message from the service.
func SystemMessage(text string, board *Board) Message {
	return Message{SenderID: SystemSender, Text: text, Board: board}
}

// RelayMessage wraps a participant's chat action for delivery to the counterpart.
func RelayMessage(a *Action) Message {
	return Message{SenderID: a.SenderID, Text: a.Text, Action: a}
}

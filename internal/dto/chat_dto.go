package dto

// CommandResponse is the structured outcome of a chat or profile command.
type CommandResponse struct {
	Outcome   string `json:"outcome"`
	PartnerID string `json:"partner_id,omitempty"`
}

type MessageRequest struct {
	Text string `json:"text"`
}

type FilterRequest struct {
	Gender string `json:"gender"`
	AgeMin int    `json:"age_min"`
	AgeMax int    `json:"age_max"`
}

type GenderRequest struct {
	Gender string `json:"gender"`
}

type AgeRequest struct {
	Age int `json:"age"`
}

type InputRequest struct {
	Text string `json:"text"`
}

type MeResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PartnerID     string `json:"partner_id,omitempty"`
	AwaitingInput string `json:"awaiting_input,omitempty"`
	Gender        string `json:"gender,omitempty"`
	Age           *int   `json:"age,omitempty"`
	IsPremium     bool   `json:"is_premium"`
	GenderFilter  string `json:"gender_filter"`
	AgeMin        int    `json:"age_min"`
	AgeMax        int    `json:"age_max"`
	TotalChats    int    `json:"total_chats"`
	TotalMessages int    `json:"total_messages"`
	// NextRemaining is -1 while premium is active.
	NextRemaining int  `json:"next_remaining"`
	IsBanned      bool `json:"is_banned"`
}

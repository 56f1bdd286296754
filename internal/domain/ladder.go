package domain

// LadderEntry is one row of the rating ladder.
type LadderEntry struct {
	Rank     int64    `json:"rank"`
	Player   Identity `json:"player"`
	Rating   uint32   `json:"rating"`
	Username string   `json:"username,omitempty"`
	Tier     string   `json:"tier,omitempty"`
}

// GameReport is the outcome of reporting a finished game in one step.
type GameReport struct {
	Change RatingChange `json:"change"`
	Result GameResult   `json:"result"`
}

package public

import (
	"github.com/tallyledger/tally/foundation/blockchain/database"
)

type act struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name,omitempty"`
	Balance uint64             `json:"balance"`
}

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []act  `json:"accounts"`
}

type tx struct {
	From      database.AccountID `json:"from"`
	FromName  string             `json:"from_name,omitempty"`
	To        database.AccountID `json:"to"`
	ToName    string             `json:"to_name,omitempty"`
	Amount    uint64             `json:"amount"`
	TimeStamp uint64             `json:"timestamp"`
	Sig       string             `json:"sig"`
}

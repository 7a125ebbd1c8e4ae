package models

// EventNewTransaction is the event name broadcast to live subscribers when a
// swap is persisted for the first time.
const EventNewTransaction = "onNewTransaction"

// TransactionEvent is the realtime payload for a newly persisted transaction:
// the wallet's profile metadata merged with the transaction fields.
type TransactionEvent struct {
	Event   string             `json:"event"`
	Msg     string             `json:"msg"`
	Content TransactionContent `json:"content"`
}

// TransactionContent carries the profile and swap details of one event.
type TransactionContent struct {
	Transaction
	Name     string `json:"name,omitempty"`
	Twitter  string `json:"twitter,omitempty"`
	Telegram string `json:"telegram,omitempty"`
	Website  string `json:"website,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// NewTransactionEvent builds the broadcast payload for a persisted swap.
func NewTransactionEvent(wallet *TrackedWallet, tx *Transaction) *TransactionEvent {
	content := TransactionContent{Transaction: *tx}
	if wallet != nil {
		content.Name = wallet.Name
		content.Twitter = wallet.Twitter
		content.Telegram = wallet.Telegram
		content.Website = wallet.Website
		content.ImageURL = wallet.ImageURL
	}
	return &TransactionEvent{Event: EventNewTransaction, Msg: "New Transaction", Content: content}
}

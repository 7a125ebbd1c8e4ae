package models

import "time"

// TrackedWallet is a registered wallet profile together with the chains it
// should be polled on. The wallet address is stored in lowercase canonical
// form and is unique across the directory.
type TrackedWallet struct {
	Name      string    `json:"name" db:"name"`
	Wallet    string    `json:"wallet" db:"wallet"`
	Twitter   string    `json:"twitter,omitempty" db:"twitter"`
	Telegram  string    `json:"telegram,omitempty" db:"telegram"`
	Website   string    `json:"website,omitempty" db:"website"`
	ImageURL  string    `json:"imageUrl,omitempty" db:"image_url"`
	Chains    []string  `json:"chains" db:"chains"`
	Temporal  bool      `json:"temporal" db:"temporal"` // ephemeral wallets removed by the cleanup sweep
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

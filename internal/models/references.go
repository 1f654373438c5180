package models

import "time"

// Cacamba holds a single image locator in ImageURL.
type Cacamba struct {
	ID        string    `json:"id"`
	Numero    string    `json:"numero"`
	Tipo      string    `json:"tipo"`
	ImageURL  string    `json:"image_url"`
	OrderID   string    `json:"order_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Order holds an ordered list of image locators. Duplicate entries are kept
// as written.
type Order struct {
	ID         string    `json:"id"`
	ClientName string    `json:"client_name"`
	Status     string    `json:"status"`
	ImageURLs  []string  `json:"image_urls"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

package entity

type OfferType string

const (
	OfferCash   OfferType = "cash"
	OfferBarter OfferType = "barter"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// OfferPayload is the structured proposal carried inside a message of type
// "offer". The carrier message's content holds a human-readable rendering
// for clients that only display text; the metadata envelope holds this
// struct. Status changes are expressed as new offer messages, never by
// mutating an existing one.
type OfferPayload struct {
	OfferType        OfferType   `json:"offer_type"`
	OfferValue       float64     `json:"offer_value,omitempty"`
	OfferItems       string      `json:"offer_items,omitempty"`
	OfferDescription string      `json:"offer_description"`
	ProductID        string      `json:"product_id"`
	ProductName      string      `json:"product_name"`
	ProductImageURL  string      `json:"product_image_url,omitempty"`
	ProductPrice     float64     `json:"product_price,omitempty"`
	Status           OfferStatus `json:"status"`
}

package service

import (
	"strconv"
	"strings"

	"tradepost/internal/domain/entity"
	"tradepost/pkg/errors"
)

// Metadata envelope keys for offer messages.
const (
	metaOfferType        = "offer_type"
	metaOfferValue       = "offer_value"
	metaOfferItems       = "offer_items"
	metaOfferDescription = "offer_description"
	metaProductID        = "product_id"
	metaProductName      = "product_name"
	metaProductImageURL  = "product_image_url"
	metaProductPrice     = "product_price"
	metaOfferStatus      = "status"
)

// OfferCodec renders an OfferPayload into a carrier message: a
// human-readable content template for clients that display text verbatim,
// plus the structured payload in the metadata envelope. Decoding prefers
// the metadata and only falls back to parsing the template.
type OfferCodec struct{}

func NewOfferCodec() *OfferCodec {
	return &OfferCodec{}
}

// Encode validates the payload and produces the content template and
// metadata envelope. An empty status defaults to pending.
func (c *OfferCodec) Encode(offer entity.OfferPayload) (string, map[string]interface{}, error) {
	if offer.Status == "" {
		offer.Status = entity.OfferPending
	}
	if err := c.validate(offer); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("Offer: " + offer.ProductName + "\n")
	b.WriteString("Price: Rp " + formatPrice(offer.ProductPrice) + "\n")
	b.WriteString("Product ID: " + offer.ProductID + "\n")
	b.WriteString("Image: " + orDash(offer.ProductImageURL) + "\n")
	b.WriteString("Type: " + string(offer.OfferType) + "\n")
	if offer.OfferType == entity.OfferCash {
		b.WriteString("Value: Rp " + formatPrice(offer.OfferValue) + "\n")
	} else {
		b.WriteString("Items: " + offer.OfferItems + "\n")
	}
	b.WriteString("Description: " + offer.OfferDescription + "\n")
	b.WriteString("Status: " + string(offer.Status))

	metadata := map[string]interface{}{
		metaOfferType:        string(offer.OfferType),
		metaOfferValue:       offer.OfferValue,
		metaOfferItems:       offer.OfferItems,
		metaOfferDescription: offer.OfferDescription,
		metaProductID:        offer.ProductID,
		metaProductName:      offer.ProductName,
		metaProductImageURL:  offer.ProductImageURL,
		metaProductPrice:     offer.ProductPrice,
		metaOfferStatus:      string(offer.Status),
	}

	return b.String(), metadata, nil
}

// Decode returns the structured payload for an offer message, or nil for
// any other message. Absence is not an error; callers treat nil as "not an
// offer".
func (c *OfferCodec) Decode(message *entity.Message) *entity.OfferPayload {
	if message == nil || message.Type != entity.MessageOffer {
		return nil
	}
	if offer := c.fromMetadata(message.Metadata); offer != nil {
		return offer
	}
	return c.fromTemplate(message.Content)
}

func (c *OfferCodec) validate(offer entity.OfferPayload) error {
	switch offer.OfferType {
	case entity.OfferCash:
		if offer.OfferValue <= 0 {
			return errors.Validation("A cash offer requires a positive value", nil)
		}
	case entity.OfferBarter:
		if strings.TrimSpace(offer.OfferItems) == "" {
			return errors.Validation("A barter offer requires the offered items", nil)
		}
	default:
		return errors.Validation("Offer type must be cash or barter", nil)
	}

	if strings.TrimSpace(offer.OfferDescription) == "" {
		return errors.Validation("Offer description is required", nil)
	}
	if offer.ProductID == "" {
		return errors.Validation("Offer product id is required", nil)
	}
	if offer.ProductName == "" {
		return errors.Validation("Offer product name is required", nil)
	}

	switch offer.Status {
	case entity.OfferPending, entity.OfferAccepted, entity.OfferRejected:
	default:
		return errors.Validation("Unknown offer status", nil)
	}

	return nil
}

func (c *OfferCodec) fromMetadata(metadata map[string]interface{}) *entity.OfferPayload {
	if metadata == nil {
		return nil
	}
	offerType, ok := metadata[metaOfferType].(string)
	if !ok {
		return nil
	}

	return &entity.OfferPayload{
		OfferType:        entity.OfferType(offerType),
		OfferValue:       asFloat(metadata[metaOfferValue]),
		OfferItems:       asString(metadata[metaOfferItems]),
		OfferDescription: asString(metadata[metaOfferDescription]),
		ProductID:        asString(metadata[metaProductID]),
		ProductName:      asString(metadata[metaProductName]),
		ProductImageURL:  asString(metadata[metaProductImageURL]),
		ProductPrice:     asFloat(metadata[metaProductPrice]),
		Status:           entity.OfferStatus(asString(metadata[metaOfferStatus])),
	}
}

// fromTemplate loosely parses the content template for messages written by
// clients that never filled the metadata envelope. Unknown lines are
// skipped; a template without a recognizable type line is not an offer.
func (c *OfferCodec) fromTemplate(content string) *entity.OfferPayload {
	offer := &entity.OfferPayload{}
	seenType := false

	for _, line := range strings.Split(content, "\n") {
		key, value, found := strings.Cut(line, ": ")
		if !found {
			continue
		}
		if value == "-" {
			value = ""
		}
		switch key {
		case "Offer":
			offer.ProductName = value
		case "Price":
			offer.ProductPrice = parsePrice(value)
		case "Product ID":
			offer.ProductID = value
		case "Image":
			offer.ProductImageURL = value
		case "Type":
			offer.OfferType = entity.OfferType(value)
			seenType = true
		case "Value":
			offer.OfferValue = parsePrice(value)
		case "Items":
			offer.OfferItems = value
		case "Description":
			offer.OfferDescription = value
		case "Status":
			offer.Status = entity.OfferStatus(value)
		}
	}

	if !seenType {
		return nil
	}
	return offer
}

func formatPrice(price float64) string {
	str := strconv.FormatFloat(price, 'f', 0, 64)

	n := len(str)
	if n <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteString(",")
		}
		result.WriteRune(digit)
	}

	return result.String()
}

func parsePrice(value string) float64 {
	value = strings.TrimPrefix(value, "Rp ")
	value = strings.ReplaceAll(value, ",", "")
	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return price
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

// asFloat tolerates the numeric kinds Firestore hands back.
func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

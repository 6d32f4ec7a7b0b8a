package models

// CartItem is one checkout cart line referencing a ticket type.
type CartItem struct {
	TicketType string `json:"ticketType"`
	Quantity   int    `json:"quantity"`
}

// CustomerInfo is the purchaser's contact block on a checkout submission.
type CustomerInfo struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Message   string `json:"message"`
}

// Registration is one attendee entry; registrations are matched to cart
// lines positionally by ticket type.
type Registration struct {
	TicketType string `json:"ticketType"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
}

// CheckoutRequest is the create-pending-transaction payload.
type CheckoutRequest struct {
	CartItems       []CartItem     `json:"cartItems"`
	CustomerInfo    CustomerInfo   `json:"customerInfo"`
	Registrations   []Registration `json:"registrations"`
	CartFingerprint string         `json:"cartFingerprint"`
}

// TotalQuantity sums the cart line quantities.
func (r *CheckoutRequest) TotalQuantity() int {
	total := 0
	for _, item := range r.CartItems {
		total += item.Quantity
	}
	return total
}

package dto

// CheckoutDTO is a hosted checkout page to redirect the user to
type CheckoutDTO struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// WebhookAckDTO acknowledges a processor webhook delivery
type WebhookAckDTO struct {
	Received bool   `json:"received"`
	Handled  bool   `json:"handled"`
	Type     string `json:"type,omitempty"`
}

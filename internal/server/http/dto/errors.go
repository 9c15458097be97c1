package dto

// ErrorResponse is returned for failed API requests.
type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	BookID    int64  `json:"bookId,omitempty"`
	Available *int   `json:"available,omitempty"`
}

// WebhookAck is the acknowledgement body expected by the payment gateway.
type WebhookAck struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

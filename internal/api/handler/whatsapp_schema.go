package handler

type sessionResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
	// QR is the raw pairing code; QRCode the same code as a PNG data URL.
	QR     string `json:"qr,omitempty"`
	QRCode string `json:"qrCode,omitempty"`
}

type sendMessageRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type sendMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	To        string `json:"to"`
	Replayed  bool   `json:"replayed,omitempty"`
}

type apiStatusResponse struct {
	Success   bool   `json:"success"`
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
}

package domain

// PaymentStatus mirrors the payment processor's payment intent status.
type PaymentStatus string

const (
	PaymentStatusRequiresConfirmation PaymentStatus = "requires_confirmation"
	PaymentStatusRequiresCapture      PaymentStatus = "requires_capture"
	PaymentStatusSucceeded            PaymentStatus = "succeeded"
	PaymentStatusCanceled             PaymentStatus = "canceled"
)

// PaymentMethod represents the payment method for a ride.
type PaymentMethod string

const PaymentMethodCard PaymentMethod = "card"

// CancellationReasonRequestedByCustomer is the void reason sent to the processor.
const CancellationReasonRequestedByCustomer = "requested_by_customer"

// PaymentInfo is the denormalized payment intent mirror kept on a ride.
type PaymentInfo struct {
	Method                PaymentMethod `json:"method,omitempty"`
	PaymentIntentID       string        `json:"paymentIntentId,omitempty"`
	Status                PaymentStatus `json:"status,omitempty"`
	AmountAuthorizedCents int64         `json:"amountAuthorizedCents,omitempty"`
	AmountCapturedCents   int64         `json:"amountCapturedCents,omitempty"`
	Currency              string        `json:"currency,omitempty"`
}

// CustomerParams are the attributes used to create a processor customer.
type CustomerParams struct {
	RiderUID       string
	Email          string
	Name           string
	IdempotencyKey string
}

// AuthorizationParams describe a manual-capture authorization request.
type AuthorizationParams struct {
	AmountCents    int64
	Currency       string
	CustomerID     string
	ReceiptEmail   string
	IdempotencyKey string
	Metadata       map[string]string
}

// Authorization is the processor's answer to an authorization request.
type Authorization struct {
	ID           string
	ClientSecret string
	Status       PaymentStatus
	AmountCents  int64
	Currency     string
}

// PaymentIntent is the processor-side view returned by capture and cancel.
type PaymentIntent struct {
	ID                  string
	Status              PaymentStatus
	AmountCents         int64
	AmountCapturedCents int64
	Currency            string
	RideID              string
}

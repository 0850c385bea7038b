package live

// Event types pushed to admin subscribers
const (
	EventRentalRequested       = "rental:requested"
	EventRentalApproved        = "rental:approved"
	EventRentalRejected        = "rental:rejected"
	EventRentalReturnRequested = "rental:return_requested"
	EventRentalCompleted       = "rental:completed"
	EventRentalExtended        = "rental:extended"

	EventTransactionSubmitted = "transaction:submitted"
	EventTransactionApproved  = "transaction:approved"
	EventTransactionRejected  = "transaction:rejected"

	EventTicketCreated = "ticket:created"
)

// Event is the JSON envelope written to each subscriber.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type RentalEvent struct {
	RentalID int    `json:"rental_id"`
	ItemID   int    `json:"item_id"`
	ItemName string `json:"item_name"`
	UserName string `json:"user_name"`
	Status   string `json:"status"`
}

type TransactionEvent struct {
	TransactionID string `json:"transaction_id"`
	UserID        int    `json:"user_id"`
	PackageName   string `json:"package_name"`
	Status        string `json:"status"`
}

type TicketEvent struct {
	TicketID int    `json:"ticket_id"`
	UserID   int    `json:"user_id"`
	Subject  string `json:"subject"`
}

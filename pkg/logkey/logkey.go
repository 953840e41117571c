package logkey

const (
	TraceID = "TRACE ID"
	ERROR   = "ERROR"

	UserID            = "UserID"
	ItemID            = "ItemID"
	ConversationID    = "ConversationID"
	PurchaseRequestID = "PurchaseRequestID"
	RequestNumber     = "RequestNumber"
	IdempotencyKey    = "IdempotencyKey"
	Kind              = "Kind"
)

package enum

// ── Order lifecycle (CHECK constrained in DB) ──

const (
	OrderStatusPending    = "pending"
	OrderStatusInProgress = "in_progress"
	OrderStatusFulfilled  = "fulfilled"
	OrderStatusCancelled  = "cancelled"
)

// OrderStatuses lists every valid status, in lifecycle order.
// Returned verbatim in the INVALID_STATUS error payload.
var OrderStatuses = []string{
	OrderStatusPending,
	OrderStatusInProgress,
	OrderStatusFulfilled,
	OrderStatusCancelled,
}

// ── Catalog ──

const (
	ProductMini     = "mini"
	ProductStandard = "standard"
	ProductPremium  = "premium"
)

// ── Machine-readable error codes (wire compatible with the legacy API) ──

const (
	CodeMissingFields    = "MISSING_FIELDS"
	CodeInvalidEmail     = "INVALID_EMAIL"
	CodeInvalidPhone     = "INVALID_PHONE"
	CodeInvalidAddress   = "INVALID_ADDRESS"
	CodeNotesTooShort    = "NOTES_TOO_SHORT"
	CodeInvalidCart      = "INVALID_CART"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeInvalidFileType  = "INVALID_FILE_TYPE"
	CodeTooManyFiles     = "TOO_MANY_FILES"
	CodeEmptyItems       = "EMPTY_ITEMS"
	CodeInvalidProductID = "INVALID_PRODUCT_ID"
	CodeInvalidQty       = "INVALID_QTY"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeNoPhotos         = "NO_PHOTOS"
	CodeRateLimited      = "RATE_LIMITED"
	CodeServerError      = "SERVER_ERROR"
)

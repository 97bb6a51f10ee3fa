package dynamo

// DynamoDB attribute names used in key, filter and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldID          = "id"
	fieldPhoneNumber = "phone_number"
	fieldOTPCode     = "otp_code"
	fieldVerified    = "verified"
	fieldVerifiedAt  = "verified_at"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldKind        = "kind"
)

// itemKind is the constant partition value of indexKindID.
const itemKind = "verification"

// indexPhoneCreated lists a phone number's records ordered by creation time.
const indexPhoneCreated = "phone_number-created_at-index"

// indexKindID lists every record by id. ULIDs sort by creation time, so a
// descending query is newest first.
const indexKindID = "kind-id-index"

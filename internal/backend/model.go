package backend

import "time"

const (
	// TipFree marks a tip visible to every user.
	TipFree = "FREE"
	// TipPaid marks a tip that must be purchased.
	TipPaid = "PAID"

	// TipPending is the lifecycle status of an unsettled tip.
	TipPending = "PENDING"
	// TipWin marks a settled winning tip.
	TipWin = "WIN"
	// TipLoss marks a settled losing tip.
	TipLoss = "LOSS"

	// ApplicationPending is the status of an unreviewed provider application.
	ApplicationPending = "PENDING"
	// ApplicationApproved marks an accepted provider application.
	ApplicationApproved = "APPROVED"
	// ApplicationRejected marks a declined provider application.
	ApplicationRejected = "REJECTED"
)

// Identity is the authenticated principal as known to the auth collaborator.
// The client holds a read-only copy; the backend owns the record.
type Identity struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// Profile carries the user-facing display attributes stored one-to-one with
// an identity.
type Profile struct {
	ID             string
	DisplayName    string
	AvatarURL      string
	Specialization string
}

// Capabilities are the authorization flags derived for an identity. A missing
// row reads as the zero value: no capabilities, not an error.
type Capabilities struct {
	CanPublish         bool
	CanSell            bool
	CanReceivePayments bool
}

// Tip is a published betting recommendation. Status is mutated only by the
// backend; the client never deletes tips.
type Tip struct {
	ID         string
	ProviderID string
	Sport      string
	League     string
	Event      string
	Market     string
	Selection  string
	Odds       float64
	Stake      int
	Confidence int
	Type       string
	Status     string
	Result     string
	CreatedAt  time.Time

	// Provider is populated on feed reads when the owning profile row was
	// joined; nil when the join produced nothing.
	Provider *Profile
}

// Application is a request to become a verified provider. One per user;
// status transitions happen server-side.
type Application struct {
	ID     string
	UserID string
	Bio    string
	Status string
}

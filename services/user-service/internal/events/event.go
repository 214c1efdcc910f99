// Package events emits user change events so downstream copies of user
// identity data can be brought back in sync.
package events

// Topic and routing key for user identity sync events. The order
// service consumes the same topic under its own consumer group.
const (
	Topic      = "user.sync"
	RoutingKey = "user.updated"
)

// ChangeEvent carries the before/after pair for both synced fields,
// even when only one of them changed (the unchanged field has
// old == new). There is no event id: consumers cannot deduplicate a
// redelivery, which is acceptable under the reconciler's match-on-old
// semantics.
type ChangeEvent struct {
	UserID     string `json:"userId"`
	OldEmail   string `json:"oldEmail"`
	NewEmail   string `json:"newEmail"`
	OldAddress string `json:"oldAddress"`
	NewAddress string `json:"newAddress"`
}

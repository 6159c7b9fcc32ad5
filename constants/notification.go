package constants

// NotificationKind classifies outbound customer notifications.
type NotificationKind string

const (
	NotifyConfirmation  NotificationKind = "confirmation"
	NotifyClarification NotificationKind = "clarification"
	NotifyProgress      NotificationKind = "progress"
	NotifyDelivery      NotificationKind = "delivery"
	NotifyError         NotificationKind = "error"
)

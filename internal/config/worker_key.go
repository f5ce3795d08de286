package config

type WorkerKeyStruct struct {
	PersistAuditQueue        string
	PersistNotificationQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAuditQueue:        "persist_audit_queue",
	PersistNotificationQueue: "persist_notification_queue",
}

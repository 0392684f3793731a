package service

// AuditRecorder enqueues transcript writes off the streaming path. Both
// calls return immediately; the enqueue order is the commit order, so a
// user row recorded before its assistant row also lands first.
type AuditRecorder interface {
	RecordUser(sessionID, content string)
	RecordAssistant(sessionID, content string)
}

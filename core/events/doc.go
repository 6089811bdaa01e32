// Package events defines the room scoped notifications emitted on the event bus.
//
// Available event names:
//   - schedule_confirmed: slots were written to personal calendars
//   - exchange_request_updated: an exchange or chain request changed status
//   - allocation_completed: an allocation run was persisted
//   - carry_over_advisory: a member kept missing quota for consecutive weeks
//   - analysis_updated: a dry-run allocation report was refreshed
//   - auto_confirm_armed: the auto-confirm deadline was set or cleared
package events

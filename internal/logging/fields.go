package logging

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType categorizes log records for filtering and alerting.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next step when a warning or error is logged.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldProject is the standardized key for project names.
	FieldProject = "project"
	// FieldService is the standardized key for supervised service names.
	FieldService = "service"
	// FieldSubscriber is the standardized key for bus subscriber identifiers.
	FieldSubscriber = "subscriber"
)

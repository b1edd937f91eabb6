package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldRunID         = "run_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldDurationHuman = "duration_human"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldOperation     = "operation"
	FieldOutcome       = "outcome"
	FieldRuleID        = "rule_id"
	FieldUserID        = "user_id"
	FieldDate          = "date"
	FieldStartDate     = "start_date"
	FieldEndDate       = "end_date"
	FieldFrequency     = "frequency"
	FieldDayRule       = "day_rule"
	FieldDayRuleKind   = "day_rule_kind"
	FieldTransactionID = "transaction_id"
	FieldAmount        = "amount"
	FieldCreated       = "created"
	FieldSkipped       = "skipped"
	FieldFailed        = "failed"
	FieldTotal         = "total"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentRecurring = "recurring"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentTrace     = "trace"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpProcessDate  = "process_date"
	OpProcessRange = "process_range"
	OpGenerate     = "generate"
	OpListRules    = "list_rules"
	OpCreateRule   = "create_rule"
	OpUpdateRule   = "update_rule"
	OpDeleteRule   = "delete_rule"
	OpSync         = "sync"
	OpShutdown     = "shutdown"
	OpStartup      = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRule adds the identifying fields of a recurring rule.
func (f LogFields) WithRule(ruleID int64, frequency, dayRule string) LogFields {
	f[FieldRuleID] = ruleID
	f[FieldFrequency] = frequency
	f[FieldDayRule] = dayRule
	return f
}

// WithCounts adds batch counters.
func (f LogFields) WithCounts(created, skipped, failed, total int) LogFields {
	f[FieldCreated] = created
	f[FieldSkipped] = skipped
	f[FieldFailed] = failed
	f[FieldTotal] = total
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}

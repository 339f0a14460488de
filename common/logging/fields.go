package logging

import "log/slog"

// Field names shared by every component so log queries stay uniform.
const (
	FieldService         = "service"
	FieldComponent       = "component"
	FieldRequestID       = "request_id"
	FieldActor           = "actor"
	FieldMethod          = "method"
	FieldPath            = "path"
	FieldStatus          = "status"
	FieldDuration        = "duration_ms"
	FieldError           = "error"
	FieldInvestigationID = "investigation_id"
	FieldEntityType      = "entity_type"
	FieldEntityValue     = "entity_value"
	FieldCaseID          = "case_id"
	FieldAnalyzer        = "analyzer"
	FieldSource          = "source"
	FieldCount           = "count"
)

func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

func Method(method string) slog.Attr {
	return slog.String(FieldMethod, method)
}

func Path(path string) slog.Attr {
	return slog.String(FieldPath, path)
}

func Status(code int) slog.Attr {
	return slog.Int(FieldStatus, code)
}

// Duration records elapsed milliseconds.
func Duration(ms int64) slog.Attr {
	return slog.Int64(FieldDuration, ms)
}

// Error records err's message; a nil error yields an empty value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}

func InvestigationID(id string) slog.Attr {
	return slog.String(FieldInvestigationID, id)
}

// Entity groups the type and value of an entity into two attributes.
func Entity(entityType, value string) slog.Attr {
	return slog.Group("entity",
		slog.String(FieldEntityType, entityType),
		slog.String(FieldEntityValue, value),
	)
}

func CaseID(id string) slog.Attr {
	return slog.String(FieldCaseID, id)
}

func Analyzer(name string) slog.Attr {
	return slog.String(FieldAnalyzer, name)
}

// Source names the evidence source a timeline fetch came from.
func Source(name string) slog.Attr {
	return slog.String(FieldSource, name)
}

func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}

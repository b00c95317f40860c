package logger

import "log/slog"

// Error records err under "error". A nil err yields an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// TenantID records the tenant under "tenant_id".
func TenantID(id string) slog.Attr {
	return slog.String("tenant_id", id)
}

// RequestID records the request under "request_id".
func RequestID(id string) slog.Attr {
	return slog.String("request_id", id)
}

// Component records the emitting subsystem under "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Tool records an MCP tool name under "tool".
func Tool(name string) slog.Attr {
	return slog.String("tool", name)
}

// Duration records an elapsed time under "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Group creates a group attribute.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

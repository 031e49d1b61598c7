package auth

import "context"

type contextKey string

const (
	contextKeyRole    contextKey = "auth.role"
	contextKeySubject contextKey = "auth.subject"
	contextKeyName    contextKey = "auth.name"
	contextKeyToken   contextKey = "auth.token"
)

// WithIdentity stores the operator identity in context.
func WithIdentity(ctx context.Context, subject, name string, role Role) context.Context {
	ctx = context.WithValue(ctx, contextKeySubject, subject)
	ctx = context.WithValue(ctx, contextKeyName, name)
	ctx = context.WithValue(ctx, contextKeyRole, role)
	return ctx
}

// WithToken stores the raw session token so outbound calls can forward it.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}

// RoleFromContext extracts role from context.
func RoleFromContext(ctx context.Context) Role {
	if ctx == nil {
		return ""
	}
	value := ctx.Value(contextKeyRole)
	if role, ok := value.(Role); ok {
		return role
	}
	if role, ok := value.(string); ok {
		if normalized, valid := NormalizeRole(role); valid {
			return normalized
		}
	}
	return ""
}

// SubjectFromContext extracts subject from context.
func SubjectFromContext(ctx context.Context) string {
	return stringValue(ctx, contextKeySubject)
}

// DisplayNameFromContext extracts the operator display name, falling back
// to the subject.
func DisplayNameFromContext(ctx context.Context) string {
	if name := stringValue(ctx, contextKeyName); name != "" {
		return name
	}
	return SubjectFromContext(ctx)
}

// TokenFromContext extracts the raw session token.
func TokenFromContext(ctx context.Context) string {
	return stringValue(ctx, contextKeyToken)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}

package tenant

import "context"

type contextKey string

const (
	keyStoreID   contextKey = "reva_store_id"
	keyStoreName contextKey = "reva_store_name"
	keyTurnID    contextKey = "reva_turn_id"
)

func WithStoreID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyStoreID, id)
}

func GetStoreID(ctx context.Context) string {
	if v, ok := ctx.Value(keyStoreID).(string); ok {
		return v
	}
	return ""
}

func WithStoreName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyStoreName, name)
}

func GetStoreName(ctx context.Context) string {
	if v, ok := ctx.Value(keyStoreName).(string); ok {
		return v
	}
	return ""
}

func WithTurnID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyTurnID, id)
}

func GetTurnID(ctx context.Context) string {
	if v, ok := ctx.Value(keyTurnID).(string); ok {
		return v
	}
	return ""
}

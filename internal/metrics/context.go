package metrics

import "context"

type tagsKey struct{}

// WithTags returns a context whose samples carry tags on top of any tags
// already set by a parent context.
func WithTags(ctx context.Context, tags Tags) context.Context {
	return context.WithValue(ctx, tagsKey{}, mergeTags(TagsFromContext(ctx), tags))
}

func TagsFromContext(ctx context.Context) Tags {
	tags, _ := ctx.Value(tagsKey{}).(Tags)
	return tags
}

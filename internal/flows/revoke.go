package flows

import "context"

// RevokeDeps captures logout and stale-session invalidation dependencies.
type RevokeDeps struct {
	Digest           func(token string) string
	DeleteByDigest   func(ctx context.Context, digest string) error
	DeleteByIdentity func(ctx context.Context, namespace, identityID, keepDigest string) (int, error)
}

// RunLogout deletes the session behind token.
func RunLogout(ctx context.Context, token string, deps RevokeDeps) error {
	return deps.DeleteByDigest(ctx, deps.Digest(token))
}

// RunInvalidateStale deletes every session of the identity except the one
// behind keepToken. An empty keepToken keeps none.
func RunInvalidateStale(ctx context.Context, namespace, identityID, keepToken string, deps RevokeDeps) (int, error) {
	keep := ""
	if keepToken != "" {
		keep = deps.Digest(keepToken)
	}
	return deps.DeleteByIdentity(ctx, namespace, identityID, keep)
}

package authcore

import "context"

type sourceAddrContextKey struct{}
type clientSigContextKey struct{}

// WithSourceAddr attaches the caller's network address to ctx. The engine
// stamps it onto every attempt record, and the distributed-attack scan
// groups failures by it.
func WithSourceAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, sourceAddrContextKey{}, addr)
}

// WithClientSignature attaches an opaque client signature (user agent,
// device fingerprint) to ctx for inclusion in attempt records.
func WithClientSignature(ctx context.Context, signature string) context.Context {
	return context.WithValue(ctx, clientSigContextKey{}, signature)
}

func sourceAddrFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	addr, _ := ctx.Value(sourceAddrContextKey{}).(string)
	return addr
}

func clientSignatureFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	signature, _ := ctx.Value(clientSigContextKey{}).(string)
	return signature
}

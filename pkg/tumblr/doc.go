// Package tumblr is a client for the Tumblr v2 API.
//
// Every call carries the api_key query parameter and a bearer credential
// from a CredentialSource, and runs through a Requester (normally an
// *executor.Executor) for spacing and retries. Responses arrive in the
// {meta, response} envelope; APICall unwraps it.
//
// Collections are read with APIArrayCall:
//
//	posts, err := client.APIArrayCall(ctx, tumblr.BlogPostsPath("staff"),
//		tumblr.PostsOptions(tumblr.Unlimited, 0, func(ctx context.Context, items []json.RawMessage) error {
//			return store(items)
//		}))
package tumblr

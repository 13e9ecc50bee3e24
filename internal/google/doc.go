// Package google manages the lifecycle of the Gmail OAuth credential.
//
// A FileStore persists the credential as Google authorized-user JSON so the
// file stays interchangeable with Google's own client libraries. A Flow
// turns whatever is on disk into a usable credential: it reuses a valid
// one, refreshes an expired one, or falls back to an interactive loopback
// authorization when nothing else works.
//
//	store := google.NewFileStore("token.json")
//	secrets := google.NewClientSecrets("config/client_secret.json")
//	flow := google.NewFlow(store,
//		google.NewOAuthRefresher(secrets),
//		google.NewLoopbackAuthorizer(secrets))
//	cred, err := flow.Credential(ctx)
//
// Concurrent callers of Flow.Credential share a single run of the flow.
package google

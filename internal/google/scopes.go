package google

import gmail "google.golang.org/api/gmail/v1"

// RequiredScopes are the OAuth scopes a stored credential must carry before
// it is used. They cover every operation the server exposes:
//   - gmail.modify: read-modify-write mailbox access
//   - gmail.compose: create drafts and send
//   - gmail.readonly: list, search and fetch
//
// The set is only used to validate and request credentials; it is not
// persisted separately.
var RequiredScopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailComposeScope,
	gmail.GmailReadonlyScope,
}

// hasScopes reports whether granted is a superset of required.
func hasScopes(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}

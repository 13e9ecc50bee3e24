// Package gmail_tools exposes the Gmail operations over MCP.
//
// Resources:
//   - test://hello: a static connectivity check
//   - gmail://inbox: the 10 most recent inbox messages
//   - gmail://drafts/{max_results}: recent drafts
//   - gmail://sent/{max_results}: recent sent messages
//
// Tools:
//   - get_emails, get_drafts, get_sent_emails: tool mirrors of the resources
//   - search_emails: list messages matching a Gmail query
//   - get_email_content: the body of one message, plain text preferred
//   - compose_email: save a plain text message as a draft or send it
//
// Every result is text. Operation failures are returned as "Error ..."
// strings rather than protocol errors, and authentication failures as
// "Failed to authenticate Gmail service".
package gmail_tools

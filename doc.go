// Package authsync keeps a marketplace client's view of who is signed in
// consistent across every consumer (navigation bar, route guards, forms) and
// with the backend session cookie.
//
// Session state:
//   - SessionStore holds the single SessionState (identity, initializing,
//     checking) and notifies subscribers with snapshots in version order.
//   - Every asynchronous operation takes a Ticket. A result only commits when
//     its ticket is still the latest of its kind and nothing started later has
//     committed, so a slow response can never overwrite a newer one.
//
// Provider:
//   - Provider is the only writer of the store. Refresh, Login, RegisterUser,
//     RegisterPartner, SetIdentity and Logout translate gateway results into
//     committed identities plus an Outcome carrying the message to show.
//   - Roles are resolved once, when the identity is built: explicit hints in
//     the response win, partner-only attributes come next, user is the default.
//   - Committed changes are validated against the phase graph, passed to
//     TransitionHooks and broadcast as ChangeEvents scoped to a role.
//
// Consumers:
//   - Navbar renders from provider updates and owns a StatusBanner whose
//     timer only clears the message it was started for.
//   - RouteGuard gates the partner dashboard and the home feed.
//
// Transport:
//   - HTTPGateway talks to the REST API with a cookie jar, classifies every
//     failure (transport, unauthorized, rejected, validation, cancelled) and
//     remembers the partner email in a HintStore.
package authsync

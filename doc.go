// Package accounts provides a multi-tenant account layer: guest sessions,
// signup with in-place guest promotion, database-backed session tokens,
// account membership with admin protections, and email invitations.
//
// Identity lifecycle:
//   - Every visitor gets a user row. Guests have a nil email and hold real
//     sessions, so browser state survives signup: promotion is an in-place
//     UPDATE that keeps the user id and the sessions pointing at it.
//   - Sessions are opaque random secrets stored server side. Logout expires
//     every live session of the user, on every device, in one statement.
//
// Accounts and memberships:
//   - Users join accounts through memberships carrying a role (admin, member,
//     read-only). Operations that could strand an account without any admin
//     run their checks and writes inside a single transaction.
//
// Invitations:
//   - InvitationStateMachine centralizes the pending/accepted/declined graph.
//     Accepting flips the status with a guarded UPDATE so two concurrent
//     accepts cannot both create a membership.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used across managers to
//     describe lifecycle, login, and invitation events. Sinks run best-effort
//     (errors are logged) so auditing never blocks the operation itself.
package accounts

// Package http provides HTTP handlers and middleware for the community event poll API.
//
// The router exposes the following endpoints:
//   - GET /api/events: every stored event, newest first. With ?view=board the
//     response is {"happeningSoon","upcoming","noDate","past"} instead.
//   - POST /api/events: suggests an event. Body: the `eventRequest` fields in
//     event_handler.go; eventDate is Unix milliseconds. Limited per suggester.
//   - PUT /api/events: corrective overwrite of a full event aggregate.
//   - DELETE /api/events with {"eventId"}, or DELETE /api/events/{id}.
//   - GET /api/events/{id}: {"event","interestPercentage","leaderboards"}.
//   - POST /api/events/{id}/votes: applies one funnel action. Body:
//     {"action":"interested"|"not_interested"|"slot"|"time","slot","time"}.
//     Duplicate-vote gating happens in the client ledger; the server only
//     validates and applies the counter delta.
//   - GET /api/users, POST /api/users: suggester names exchanging `userDTO`.
//   - GET /api/users/{name}/stats: the suggester's creations this month and in
//     total, the monthly limit, the last creation and the reset date. Times are
//     Unix milliseconds.
//   - GET /api/sync: schedule and last run. POST /api/sync runs the monthly
//     sync and requires `Authorization: Bearer <secret>`.
//   - GET /api/external-events: merged third-party listings with zero counters.
//   - GET /metrics and GET /healthz.
//
// Errors are returned as {"message","error_code","errors"}.
package http

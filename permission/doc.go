// Package permission implements the capability gate consulted by ops.
//
// A Descriptor names a capability Kind (read, write, net, env, run, hrtime,
// plugin), optionally narrowed to a path or a host. Each descriptor resolves
// to one of three states:
//
//	Granted  the action may proceed
//	Prompt   the user may be asked
//	Denied   the action fails with PermissionDenied
//
// Transitions are explicit. Prompt becomes Granted only through Grant
// (pre-authorization) or an accepted prompt; anything becomes Denied only
// through Revoke or a rejected prompt. Query never changes state.
//
// Scopes nest: a grant on /tmp covers /tmp/a/b, and an unscoped grant covers
// every path. The most specific matching scope decides, with a denial
// winning ties, so revoking /tmp under a global read grant leaves other paths
// readable while /tmp and everything under it is denied.
//
// Prompting requires an interactive Prompter. TerminalPrompter checks that
// both stdin and stderr are terminals; in any other context a Prompt state
// resolves to Denied at once instead of blocking.
package permission

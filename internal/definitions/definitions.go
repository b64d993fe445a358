package definitions

// slog attribute keys shared across the service.
const (
	ServiceKey   = "service"
	PackageKey   = "package"
	ComponentKey = "component"
)

const ServiceName = "agor"

// package names for logging
const (
	PackageWorktree     = "worktree"
	PackageSessionToken = "sessiontoken"
	PackageCredentials  = "credentials"
	PackageDaemon       = "daemon"
)

// component names for logging
const (
	ComponentMain = "main"

	ComponentDaemon = "daemon"

	ComponentGroupService    = "worktree group service"
	ComponentWorktreeHandler = "worktree handler"

	ComponentTokenService = "session token service"
	ComponentTokenSweeper = "session token sweeper"
	ComponentTokenHandler = "session token handler"

	ComponentDisconnectService  = "credential disconnect service"
	ComponentCredentialsStore   = "credentials repository"
	ComponentCredentialsHandler = "credentials handler"
)

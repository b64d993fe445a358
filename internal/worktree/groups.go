package worktree

import (
	"fmt"
	"log/slog"

	"github.com/agor-live/agor/internal/definitions"
	"github.com/tdeslauriers/carapace/pkg/validate"
)

// GroupService produces the OS command specifications for one worktree's
// shared group lifecycle. It never executes anything: callers run the
// returned commands and must treat a non-zero exit from any step as a
// partial-provisioning condition, retrying the whole sequence (safe, the
// commands are idempotent) or rolling back with DeleteGroup.
type GroupService interface {

	// CreateGroup returns the command that creates the OS group.
	CreateGroup(name string) Command

	// DeleteGroup returns the command that removes the OS group.
	DeleteGroup(name string) Command

	// AddUserToGroup returns the command that adds a user to the group.
	AddUserToGroup(user, name string) Command

	// RemoveUserFromGroup returns the command that removes a user from the group.
	RemoveUserFromGroup(user, name string) Command

	// GroupExists returns the query command whose exit code reports group existence.
	GroupExists(name string) Command

	// IsUserInGroup returns the query command whose exit code reports membership.
	IsUserInGroup(user, name string) Command

	// ListGroupMembers returns the query command that prints the group's member list.
	ListGroupMembers(name string) Command

	// SetDirectoryPolicy returns the ordered idempotent command sequence that
	// applies the group and mode to a directory tree.
	SetDirectoryPolicy(path, name, mode string) []Command

	// ProvisionCommands builds the full provisioning plan for a worktree:
	// derived group name, resolved mode, and the ordered command sequence
	// (group creation followed by directory policy).
	ProvisionCommands(worktreeId, path string, level AccessLevel) (*Provisioning, error)

	// TeardownCommands builds the teardown plan for a worktree's group.
	TeardownCommands(worktreeId string) (*Teardown, error)
}

// Provisioning is the command plan that realizes one worktree's shared group.
type Provisioning struct {
	WorktreeId string    `json:"worktree_id"`
	GroupName  string    `json:"group_name"`
	Mode       string    `json:"mode"`
	Commands   []Command `json:"commands"`
}

// Teardown is the command plan that removes one worktree's shared group.
type Teardown struct {
	WorktreeId string    `json:"worktree_id"`
	GroupName  string    `json:"group_name"`
	Commands   []Command `json:"commands"`
}

// NewGroupService creates a new GroupService interface instance returning
// a pointer to the underlying concrete implementation.
func NewGroupService() GroupService {
	return &groupService{
		logger: slog.Default().
			With(slog.String(definitions.ServiceKey, definitions.ServiceName)).
			With(slog.String(definitions.PackageKey, definitions.PackageWorktree)).
			With(slog.String(definitions.ComponentKey, definitions.ComponentGroupService)),
	}
}

var _ GroupService = (*groupService)(nil)

// groupService is the concrete implementation of the GroupService interface.
type groupService struct {
	logger *slog.Logger
}

func (s *groupService) CreateGroup(name string) Command {
	return Command(sudoPrefix + "groupadd " + name)
}

func (s *groupService) DeleteGroup(name string) Command {
	return Command(sudoPrefix + "groupdel " + name)
}

func (s *groupService) AddUserToGroup(user, name string) Command {
	return Command(sudoPrefix + "usermod -aG " + name + " " + user)
}

func (s *groupService) RemoveUserFromGroup(user, name string) Command {
	return Command(sudoPrefix + "gpasswd -d " + user + " " + name)
}

func (s *groupService) GroupExists(name string) Command {
	return Command("getent group " + name + " > /dev/null")
}

func (s *groupService) IsUserInGroup(user, name string) Command {
	return Command("id -nG " + user + " | grep -qw " + name)
}

func (s *groupService) ListGroupMembers(name string) Command {
	return Command("getent group " + name + " | cut -d: -f4")
}

// SetDirectoryPolicy delegates to the permission mode table's realize sequence.
func (s *groupService) SetDirectoryPolicy(path, name, mode string) []Command {
	return RealizeDirectoryPolicy(path, name, mode)
}

// ProvisionCommands is the concrete implementation of the interface method which
// builds the full provisioning plan for a worktree's shared group.
func (s *groupService) ProvisionCommands(worktreeId, path string, level AccessLevel) (*Provisioning, error) {

	// validate the worktree id is a valid uuid
	// redundant validation, but good practice
	if !validate.IsValidUuid(worktreeId) {
		return nil, fmt.Errorf("invalid worktree id format")
	}

	if path == "" {
		return nil, fmt.Errorf("worktree path is required")
	}

	name := DeriveGroupName(worktreeId)
	mode := ModeForDefault(level)

	commands := make([]Command, 0, 8)
	commands = append(commands, s.CreateGroup(name))
	commands = append(commands, s.SetDirectoryPolicy(path, name, mode)...)

	s.logger.Info(fmt.Sprintf("built provisioning plan for worktree %s: group %s, mode %s", worktreeId, name, mode))

	return &Provisioning{
		WorktreeId: worktreeId,
		GroupName:  name,
		Mode:       mode,
		Commands:   commands,
	}, nil
}

// TeardownCommands is the concrete implementation of the interface method which
// builds the teardown plan for a worktree's shared group.
func (s *groupService) TeardownCommands(worktreeId string) (*Teardown, error) {

	if !validate.IsValidUuid(worktreeId) {
		return nil, fmt.Errorf("invalid worktree id format")
	}

	name := DeriveGroupName(worktreeId)

	s.logger.Info(fmt.Sprintf("built teardown plan for worktree %s: group %s", worktreeId, name))

	return &Teardown{
		WorktreeId: worktreeId,
		GroupName:  name,
		Commands:   []Command{s.DeleteGroup(name)},
	}, nil
}

package domain

// Role is one of a fixed, closed set of roles. Roles are immutable once
// defined; permissions are granted to roles, never to users directly.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleArchitect  Role = "architect"
	RoleEngineer   Role = "engineer"
	RoleDesigner   Role = "designer"
	RoleClient     Role = "client"
	RoleViewer     Role = "viewer"
)

// Roles lists every defined role.
var Roles = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleArchitect,
	RoleEngineer,
	RoleDesigner,
	RoleClient,
	RoleViewer,
}

// Permission is a named fine-grained capability checked at the
// resource-operation boundary.
type Permission string

const (
	PermProjectCreate Permission = "project.create"
	PermProjectRead   Permission = "project.read"
	PermProjectUpdate Permission = "project.update"
	PermProjectDelete Permission = "project.delete"
	PermProjectManage Permission = "project.manage"

	PermFileUpload   Permission = "file.upload"
	PermFileDownload Permission = "file.download"
	PermFileDelete   Permission = "file.delete"
	PermFileAnalyze  Permission = "file.analyze"

	PermAIAnalyze  Permission = "ai.analyze"
	PermAIChat     Permission = "ai.chat"
	PermAIAdvanced Permission = "ai.advanced"

	PermUserCreate Permission = "user.create"
	PermUserRead   Permission = "user.read"
	PermUserUpdate Permission = "user.update"
	PermUserDelete Permission = "user.delete"
	PermUserManage Permission = "user.manage"

	PermSystemAdmin   Permission = "system.admin"
	PermSystemMonitor Permission = "system.monitor"
	PermSystemConfig  Permission = "system.config"
)

// rolePermissions is the static role -> permission mapping. It is defined
// once at process start and never mutated; super_admin holds every
// permission granted to any other role.
var rolePermissions = map[Role][]Permission{
	RoleSuperAdmin: {
		PermProjectCreate, PermProjectRead, PermProjectUpdate, PermProjectDelete, PermProjectManage,
		PermFileUpload, PermFileDownload, PermFileDelete, PermFileAnalyze,
		PermAIAnalyze, PermAIChat, PermAIAdvanced,
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete, PermUserManage,
		PermSystemAdmin, PermSystemMonitor, PermSystemConfig,
	},
	RoleAdmin: {
		PermProjectCreate, PermProjectRead, PermProjectUpdate, PermProjectDelete, PermProjectManage,
		PermFileUpload, PermFileDownload, PermFileDelete, PermFileAnalyze,
		PermAIAnalyze, PermAIChat, PermAIAdvanced,
		PermUserCreate, PermUserRead, PermUserUpdate, PermUserDelete,
		PermSystemMonitor,
	},
	RoleArchitect: {
		PermProjectCreate, PermProjectRead, PermProjectUpdate, PermProjectManage,
		PermFileUpload, PermFileDownload, PermFileDelete, PermFileAnalyze,
		PermAIAnalyze, PermAIChat, PermAIAdvanced,
		PermUserRead,
	},
	RoleEngineer: {
		PermProjectRead, PermProjectUpdate,
		PermFileUpload, PermFileDownload, PermFileAnalyze,
		PermAIAnalyze, PermAIChat,
		PermUserRead,
	},
	RoleDesigner: {
		PermProjectRead, PermProjectUpdate,
		PermFileUpload, PermFileDownload,
		PermAIAnalyze, PermAIChat,
	},
	RoleClient: {
		PermProjectRead,
		PermFileDownload,
		PermAIChat,
	},
	RoleViewer: {
		PermProjectRead,
		PermFileDownload,
	},
}

// PermissionsFor returns the permission set granted to a role. The lookup is
// pure and total: unknown roles get an empty set, defined roles always get a
// non-empty copy that callers may mutate freely.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// RoleHasPermission reports whether a role is granted a permission.
func RoleHasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// ValidRole reports whether the role belongs to the closed role set.
func ValidRole(role Role) bool {
	_, ok := rolePermissions[role]
	return ok
}

package rbac

const (
	PermSubmissionSubmit = "submission:submit"
	PermSubmissionSave   = "submission:save"
	PermProgressWrite    = "progress:write"
	PermProgressViewOwn  = "progress:view-own"
)

// Default policy. Instructors can submit on a trainee's behalf at the
// simulator console.
var RolePermissions = map[string][]string{
	"trainee": {
		PermSubmissionSubmit,
		PermSubmissionSave,
		PermProgressWrite,
		PermProgressViewOwn,
	},
	"instructor": {
		"submission:*",
		PermProgressViewOwn,
	},
	"admin": {
		"*", // everything
	},
}

package rbac

// Default policy for the grading workflow. Expand as needed.
var RolePermissions = map[string][]string{
	"submitter": {
		"submission:create",
		"submission:replace",
		"submission:phase",
		"notifications:read",
	},
	"grader": {
		"submission:read-assigned",
		"artifact:download",
		"correction:submit",
		"notifications:read",
	},
	"admin": {
		"*", // everything
	},
}

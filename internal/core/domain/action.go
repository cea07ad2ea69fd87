package domain

// PermissionAction enumerates the grantable verbs a permission name may
// carry in its second segment.
type PermissionAction string

const (
	ActionView      PermissionAction = "View"
	ActionCreate    PermissionAction = "Create"
	ActionUpdate    PermissionAction = "Update"
	ActionDelete    PermissionAction = "Delete"
	ActionExport    PermissionAction = "Export"
	ActionImport    PermissionAction = "Import"
	ActionManage    PermissionAction = "Manage"
	ActionExecute   PermissionAction = "Execute"
	ActionApprove   PermissionAction = "Approve"
	ActionConfigure PermissionAction = "Configure"
)

// Actions lists every known action in declaration order.
var Actions = []PermissionAction{
	ActionView,
	ActionCreate,
	ActionUpdate,
	ActionDelete,
	ActionExport,
	ActionImport,
	ActionManage,
	ActionExecute,
	ActionApprove,
	ActionConfigure,
}

// ActionInfo carries display metadata for an action. The UI consumes
// this; nothing here participates in authorization decisions.
type ActionInfo struct {
	Label string
	// Risk ranks how sensitive the action is for display purposes,
	// 1 lowest.
	Risk int
}

var actionInfos = map[PermissionAction]ActionInfo{
	ActionView:      {Label: "View", Risk: 1},
	ActionExport:    {Label: "Export", Risk: 2},
	ActionCreate:    {Label: "Create", Risk: 3},
	ActionUpdate:    {Label: "Update", Risk: 3},
	ActionImport:    {Label: "Import", Risk: 4},
	ActionApprove:   {Label: "Approve", Risk: 4},
	ActionExecute:   {Label: "Execute", Risk: 4},
	ActionDelete:    {Label: "Delete", Risk: 5},
	ActionManage:    {Label: "Manage", Risk: 5},
	ActionConfigure: {Label: "Configure", Risk: 5},
}

// ParseAction maps a name segment onto a known action.
func ParseAction(token string) (PermissionAction, error) {
	action := PermissionAction(token)
	if _, ok := actionInfos[action]; !ok {
		return "", NewValidationError("unknown permission action %q", token)
	}
	return action, nil
}

// IsValid reports whether the action is one of the known verbs.
func (a PermissionAction) IsValid() bool {
	_, ok := actionInfos[a]
	return ok
}

// Info returns display metadata for the action.
func (a PermissionAction) Info() (ActionInfo, bool) {
	info, ok := actionInfos[a]
	return info, ok
}

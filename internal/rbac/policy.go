package rbac

// Resource keys checked by handlers.
const (
	ResDashboard     = "dashboard"
	ResUsers         = "users"
	ResRoles         = "roles"
	ResPermissions   = "permissions"
	ResAcademies     = "academies"
	ResMemberships   = "memberships"
	ResCourses       = "courses"
	ResEnrollments   = "enrollments"
	ResAppointments  = "appointments"
	ResMessages      = "messages"
	ResNotifications = "notifications"
	ResSettings      = "settings"
)

var crud = []Action{ActionRead, ActionWrite, ActionCreate, ActionDelete}

// DefaultResources declares the protectable resources seeded on first boot.
func DefaultResources() []RegisteredResource {
	return []RegisteredResource{
		{Key: ResDashboard, Type: ResourcePage, Description: "Home dashboard", DefaultActions: []Action{ActionRead}},
		{Key: ResUsers, Type: ResourceEntity, Description: "User accounts", DefaultActions: append([]Action{}, crud...)},
		{Key: ResRoles, Type: ResourceEntity, Description: "Permission bundles", DefaultActions: append([]Action{}, crud...)},
		{Key: ResPermissions, Type: ResourceModule, Description: "Role permission matrices", DefaultActions: []Action{ActionRead, ActionManage}},
		{Key: ResAcademies, Type: ResourceEntity, Description: "Academies", DefaultActions: append([]Action{}, crud...)},
		{Key: ResMemberships, Type: ResourceEntity, Description: "Academy memberships", DefaultActions: []Action{ActionRead, ActionManage}},
		{Key: ResCourses, Type: ResourceEntity, Description: "Courses", DefaultActions: append([]Action{}, crud...)},
		{Key: ResEnrollments, Type: ResourceEntity, Description: "Course enrollments", DefaultActions: []Action{ActionRead, ActionCreate, ActionDelete}},
		{Key: ResAppointments, Type: ResourceEntity, Description: "Appointments", DefaultActions: append([]Action{}, crud...)},
		{Key: ResMessages, Type: ResourceModule, Description: "Direct messages", DefaultActions: []Action{ActionRead, ActionCreate, ActionDelete}},
		{Key: ResNotifications, Type: ResourceModule, Description: "Notifications", DefaultActions: []Action{ActionRead, ActionCreate}},
		{Key: ResSettings, Type: ResourcePage, Description: "Academy settings", DefaultActions: []Action{ActionRead, ActionWrite}},
	}
}

// DefaultMatrix returns the seeded policy matrix for role.
func DefaultMatrix(role UserRole) map[string][]Action {
	switch role {
	case RoleAdmin:
		matrix := make(map[string][]Action)
		for _, res := range DefaultResources() {
			matrix[res.Key] = []Action{ActionManage}
		}
		return matrix
	case RoleManager:
		return map[string][]Action{
			ResDashboard:     {ActionRead},
			ResUsers:         {ActionManage},
			ResRoles:         {ActionRead},
			ResPermissions:   {ActionRead},
			ResAcademies:     {ActionRead},
			ResMemberships:   {ActionManage},
			ResCourses:       {ActionManage},
			ResEnrollments:   {ActionManage},
			ResAppointments:  {ActionManage},
			ResMessages:      {ActionRead, ActionCreate, ActionDelete},
			ResNotifications: {ActionRead, ActionCreate},
			ResSettings:      {ActionRead, ActionWrite},
		}
	case RoleCoach:
		return map[string][]Action{
			ResDashboard:     {ActionRead},
			ResUsers:         {ActionRead},
			ResCourses:       {ActionRead, ActionWrite},
			ResEnrollments:   {ActionRead, ActionCreate},
			ResAppointments:  {ActionRead, ActionWrite, ActionCreate},
			ResMessages:      {ActionRead, ActionCreate},
			ResNotifications: {ActionRead, ActionCreate},
		}
	case RoleParent:
		return map[string][]Action{
			ResDashboard:     {ActionRead},
			ResUsers:         {ActionRead},
			ResCourses:       {ActionRead},
			ResEnrollments:   {ActionRead},
			ResAppointments:  {ActionRead, ActionCreate},
			ResMessages:      {ActionRead, ActionCreate},
			ResNotifications: {ActionRead},
		}
	case RolePlayer:
		return map[string][]Action{
			ResDashboard:     {ActionRead},
			ResCourses:       {ActionRead},
			ResEnrollments:   {ActionRead},
			ResAppointments:  {ActionRead},
			ResMessages:      {ActionRead, ActionCreate},
			ResNotifications: {ActionRead},
		}
	case RoleKid:
		return map[string][]Action{
			ResDashboard:     {ActionRead},
			ResCourses:       {ActionRead},
			ResNotifications: {ActionRead},
		}
	}
	return map[string][]Action{}
}

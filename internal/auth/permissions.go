package auth

// Role names known to the service. RoleClient is assigned to every
// registration; RoleAdmin is the only elevated role accepted from the
// administrative registration path.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// Capability tokens gating the administrative surface.
const (
	PermViewUsers        = "ver_usuarios"
	PermViewUser         = "ver_usuario"
	PermCreateUsers      = "crear_usuarios"
	PermUpdateUser       = "actualizar_usuario"
	PermDeleteUser       = "eliminar_usuario"
	PermViewRoles        = "ver_roles"
	PermCreateRoles      = "crear_roles"
	PermUpdateRole       = "actualizar_rol"
	PermDeleteRole       = "eliminar_rol"
	PermViewPermissions  = "ver_permisos"
	PermCreatePermission = "crear_permisos"
	PermUpdatePermission = "actualizar_permiso"
	PermDeletePermission = "eliminar_permiso"
	PermAssignRoles      = "asignar_roles"
	PermAssignPerms      = "asignar_permisos"
)

// BuiltinPermissions is the catalog ensured at startup.
var BuiltinPermissions = []Permission{
	{Name: PermViewUsers},
	{Name: PermViewUser},
	{Name: PermCreateUsers},
	{Name: PermUpdateUser},
	{Name: PermDeleteUser},
	{Name: PermViewRoles},
	{Name: PermCreateRoles},
	{Name: PermUpdateRole},
	{Name: PermDeleteRole},
	{Name: PermViewPermissions},
	{Name: PermCreatePermission},
	{Name: PermUpdatePermission},
	{Name: PermDeletePermission},
	{Name: PermAssignRoles},
	{Name: PermAssignPerms},
}

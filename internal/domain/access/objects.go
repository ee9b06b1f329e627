package access

import "github.com/google/uuid"

// ObjectType names an entity kind permissions may be granted on.
type ObjectType string

const (
	ObjectSystem        ObjectType = "system"
	ObjectStoragePool   ObjectType = "storage_pool"
	ObjectStorageDomain ObjectType = "storage_domain"
	ObjectDisk          ObjectType = "disk"
	ObjectQuota         ObjectType = "quota"
	ObjectNetwork       ObjectType = "network"
)

// ActionGroup is the permission unit a role bundles.
type ActionGroup string

const (
	ActionGroupCreateStoragePool    ActionGroup = "CREATE_STORAGE_POOL"
	ActionGroupEditStoragePool      ActionGroup = "EDIT_STORAGE_POOL_CONFIGURATION"
	ActionGroupDeleteStoragePool    ActionGroup = "DELETE_STORAGE_POOL"
	ActionGroupCreateDisk           ActionGroup = "CREATE_DISK"
	ActionGroupConfigureDiskStorage ActionGroup = "CONFIGURE_DISK_STORAGE"
	ActionGroupEditDiskProperties   ActionGroup = "EDIT_DISK_PROPERTIES"
	ActionGroupConsumeQuota         ActionGroup = "CONSUME_QUOTA"
	ActionGroupLogin                ActionGroup = "LOGIN"
)

var (
	// SystemObjectID is the root of the object hierarchy.
	SystemObjectID = uuid.MustParse("aaa00000-0000-0000-0000-123456789aaa")
	// EveryoneID is the sentinel principal every actor implicitly belongs to.
	EveryoneID = uuid.MustParse("eee00000-0000-0000-0000-123456789eee")
)

// Predefined role ids.
var (
	RoleSuperUser       = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	RoleDataCenterAdmin = uuid.MustParse("def00002-0000-0000-0000-def000000002")
	RoleDiskOperator    = uuid.MustParse("def0000a-0000-0000-0000-def00000000a")
	RoleDiskCreator     = uuid.MustParse("def0000a-0000-0000-0000-def00000000b")
	RoleQuotaConsumer   = uuid.MustParse("def0000a-0000-0000-0000-def000000010")
	RoleUserBasic       = uuid.MustParse("def0000a-0000-0000-0000-def000000011")
)

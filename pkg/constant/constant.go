package constant

// User roles carried in identity tokens
const (
	RoleCustomer = "customer"
	RoleProvider = "provider"
)

// Conversation status
const (
	ConvStatusPending   = "pending"
	ConvStatusActive    = "active"
	ConvStatusRejected  = "rejected"
	ConvStatusCompleted = "completed"
	ConvStatusCancelled = "cancelled"
)

// Message types
const (
	MsgTypeText   = "text"
	MsgTypeImage  = "image"
	MsgTypeSystem = "system"
)

// MaxContentLength is the content bound in runes after trimming
const MaxContentLength = 1000

// Message page sizes
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyOnline      = "online:%s" // online:{user_id}
	redisKeyPushChannel = "push"      // pub/sub channel shared by all instances
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "trato:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyOnline() string      { return redisKeyPrefix + redisKeyOnline }
func RedisKeyPushChannel() string { return redisKeyPrefix + redisKeyPushChannel }

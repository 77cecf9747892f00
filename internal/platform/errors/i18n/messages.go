package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
var enUSMessages = map[Code]string{
	"UNKNOWN":                        "Something went wrong. Please try again.",
	"AUTH_REQUIRED":                  "Please sign in to continue.",
	"AUTH_INVALID_TOKEN":             "Your session expired. Please sign in again.",
	"AUTH_INVALID_CREDENTIAL":        "Invalid username or password.",
	"AUTH_USERNAME_TAKEN":            "The username {{.Username}} is already taken.",
	"AUTH_USERNAME_INVALID":          "Usernames must be 3 to 24 letters, digits or underscores.",
	"AUTH_GUEST_FORBIDDEN":           "Guests cannot do that. Create an account first.",
	"CAMPAIGN_NAME_EMPTY":            "Campaign name is required.",
	"CAMPAIGN_INVITE_INVALID":        "Invite code {{.Code}} is not valid.",
	"CAMPAIGN_SETTINGS_INVALID":      "Campaign settings are invalid: {{.Reason}}",
	"CAMPAIGN_GM_REQUIRED":           "Only the GM can do that.",
	"CAMPAIGN_MEMBER_REQUIRED":       "You are not a member of this campaign.",
	"CAMPAIGN_MEMBER_KICKED":         "You were removed from this campaign.",
	"CAMPAIGN_INVALID_MEMBER_STATUS": "Unknown member status {{.Status}}.",
	"CAMPAIGN_FULL":                  "This campaign has no open seats.",
	"CHARACTER_NAME_EMPTY":           "Character name is required.",
	"CHARACTER_SHEET_INVALID":        "Character sheet is invalid: {{.Reason}}",
	"CHARACTER_REQUIRED":             "Create a character before joining a campaign.",
	"PROFILE_KEY_INVALID":            "Profile key {{.Key}} is not allowed.",
	"NOT_FOUND":                      "Not found.",
	"CONFLICT":                       "That already exists.",
	"QUOTA_EXCEEDED":                 "Local storage is full. Delete old backups to free space.",
	"DICE_FORMULA_INVALID":           "Dice formula {{.Formula}} is not valid.",
	"CHAT_BODY_EMPTY":                "Message is empty.",
	"CHAT_BODY_TOO_LONG":             "Message is too long.",
	"REALTIME_UNAVAILABLE":           "Realtime connection lost. Reload to reconnect.",
	"NETLINK_UNAVAILABLE":            "NetLink is offline. Your changes are kept locally.",
	"ARCHIVE_DISABLED":               "Cloud archive is not configured.",
}

var ptBRMessages = map[Code]string{
	"UNKNOWN":                 "Algo deu errado. Tente novamente.",
	"AUTH_REQUIRED":           "Entre para continuar.",
	"AUTH_INVALID_TOKEN":      "Sua sessão expirou. Entre novamente.",
	"AUTH_INVALID_CREDENTIAL": "Usuário ou senha inválidos.",
	"CAMPAIGN_INVITE_INVALID": "Código de convite {{.Code}} inválido.",
	"CAMPAIGN_GM_REQUIRED":    "Apenas o mestre pode fazer isso.",
	"CHARACTER_REQUIRED":      "Crie um personagem antes de entrar em uma campanha.",
	"QUOTA_EXCEEDED":          "Armazenamento local cheio. Apague backups antigos.",
	"REALTIME_UNAVAILABLE":    "Conexão em tempo real perdida. Recarregue para reconectar.",
	"NETLINK_UNAVAILABLE":     "NetLink está offline. Suas alterações ficam salvas localmente.",
}

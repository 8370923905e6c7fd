package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config represents the application configuration
type Config struct {
	Reddit struct {
		ClientID             string   `koanf:"client_id"`
		ClientSecret         string   `koanf:"client_secret"`
		Username             string   `koanf:"username"`
		Password             string   `koanf:"password"`
		UserAgent            string   `koanf:"user_agent"`
		SubmissionSubreddits []string `koanf:"submission_subreddits"`
		CommentSubreddits    []string `koanf:"comment_subreddits"`
		BotAccounts          []string `koanf:"bot_accounts"`
		WikiDomains          []string `koanf:"wiki_domains"`
		RequestsPerMinute    int      `koanf:"requests_per_minute"`
	} `koanf:"reddit"`

	Crom struct {
		APIEndpoint  string `koanf:"api_endpoint"`
		AuthEndpoint string `koanf:"auth_endpoint"`
		ClientID     string `koanf:"client_id"`
		ClientSecret string `koanf:"client_secret"`
	} `koanf:"crom"`

	Server struct {
		Port int `koanf:"port"`
	} `koanf:"server"`

	Logging struct {
		Level string `koanf:"level"`
	} `koanf:"logging"`
}

// Subreddits enrolled in the "articles mentioned in this submission" feature.
var defaultSubmissionSubreddits = []string{
	"dankmemesfromsite19",
	"scp",
	"tale",
}

// Subreddits enrolled for comment replies.
var defaultCommentSubreddits = []string{
	"dankmemesfromsite19",
	"nuscp",
	"okbubbyredacted",
	"okbuddyredacted",
	"scp",
	"scp682",
	"scpart",
	"scpbertstrips",
	"scpcontainmentbreach",
	"scpeuclid",
	"scpostcrusaders",
	"tale",
}

// Reddit users the bot will not reply to.
var defaultBotAccounts = []string{
	"automoderator",
	"magic_eye_bot",
	"maximagebot",
	"repostsleuthbot",
	"sneakpeekbot",
	"the-noided-android",
	"the-paranoid-android",
}

// Domains that trigger a URL lookup for submissions. Mirror domains such as
// scpwiki.com are folded into scp-wiki.wikidot.com during permalink
// normalization before this list is consulted.
var defaultWikiDomains = []string{
	"fondationscp.wikidot.com",
	"fondazionescp.wikidot.com",
	"lafundacionscp.wikidot.com",
	"scp-cs.wikidot.com",
	"scp-el.wikidot.com",
	"scp-id.wikidot.com",
	"scp-int.wikidot.com",
	"scp-jp.wikidot.com",
	"scp-pl.wikidot.com",
	"scp-pt-br.wikidot.com",
	"scp-ru.wikidot.com",
	"scp-th.wikidot.com",
	"scp-ukrainian.wikidot.com",
	"scp-vn.wikidot.com",
	"scp-wiki-cn.wikidot.com",
	"scp-wiki-de.wikidot.com",
	"scp-wiki.wikidot.com",
	"scp-zh-tr.wikidot.com",
	"scpko.wikidot.com",
	"wanderers-library-cs.wikidot.com",
	"wanderers-library-jp.wikidot.com",
	"wanderers-library-ko.wikidot.com",
	"wanderers-library-pl.wikidot.com",
	"wanderers-library-vn.wikidot.com",
	"wanderers-library.wikidot.com",
}

// LoadConfig loads the configuration from a file
func LoadConfig(configPath string) (*Config, error) {
	var k = koanf.New(".")

	// Set up default configuration
	k.Load(confmap.Provider(map[string]interface{}{
		"reddit.user_agent":            "crombird (SCP wiki lookup bot)",
		"reddit.submission_subreddits": defaultSubmissionSubreddits,
		"reddit.comment_subreddits":    defaultCommentSubreddits,
		"reddit.bot_accounts":          defaultBotAccounts,
		"reddit.wiki_domains":          defaultWikiDomains,
		"reddit.requests_per_minute":   60,
		"crom.api_endpoint":          "https://api.crom.avn.sh/graphql",
		"crom.auth_endpoint":         "https://auth.crom.avn.sh/oauth2/token",
		"server.port":                8080,
		"logging.level":              "info",
	}, "."), nil)

	// Load from TOML file if it exists
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		// Try to load from default locations
		defaultPaths := []string{"./crombird.toml", "$HOME/.crombird.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	// Load from environment variables with prefix CROMBIRD_
	k.Load(env.Provider("CROMBIRD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "CROMBIRD_")
		return strings.Replace(strings.ToLower(s), "__", ".", -1)
	}), nil)

	// Unmarshal into Config struct
	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig initializes a new configuration file
func InitConfig(configPath string) error {
	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	// Create sample configuration
	sampleConfig := `# Crombird Configuration

[reddit]
client_id = "your-reddit-client-id"
client_secret = "your-reddit-client-secret"
username = "CromBird"
password = "your-reddit-password"
user_agent = "crombird (SCP wiki lookup bot)"
submission_subreddits = [` + tomlStrings(defaultSubmissionSubreddits) + `]
comment_subreddits = [` + tomlStrings(defaultCommentSubreddits) + `]
bot_accounts = [` + tomlStrings(defaultBotAccounts) + `]
wiki_domains = [` + tomlStrings(defaultWikiDomains) + `]

[crom]
api_endpoint = "https://api.crom.avn.sh/graphql"
auth_endpoint = "https://auth.crom.avn.sh/oauth2/token"
client_id = "your-crom-client-id"
client_secret = "your-crom-client-secret"

[server]
port = 8080

[logging]
level = "info"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

func tomlStrings(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, fmt.Sprintf("%q", value))
	}
	return strings.Join(quoted, ", ")
}

// Validate validates the configuration
func Validate(config *Config) error {
	if config.Reddit.ClientID == "" || config.Reddit.ClientSecret == "" {
		return fmt.Errorf("reddit client_id and client_secret are required")
	}

	if config.Reddit.Username == "" || config.Reddit.Password == "" {
		return fmt.Errorf("reddit username and password are required")
	}

	if len(config.Reddit.SubmissionSubreddits) == 0 {
		return fmt.Errorf("at least one submission subreddit is required")
	}

	if config.Crom.ClientID == "" || config.Crom.ClientSecret == "" {
		return fmt.Errorf("crom client_id and client_secret are required")
	}

	return nil
}

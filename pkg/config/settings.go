package config

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Setting names as stored by the host application
const (
	KeyAPIKey             = "apikey"
	KeyAllowIPAddr        = "allowipaddr"
	KeyDefaultUserIDField = "defaultuseridfield"
	KeyLoginRedirect      = "loginredirect"
	KeyPasswordURL        = "passwordurl"
	KeyProfileURL         = "profileurl"
	KeyMaxRequestAge      = "maxrequestage"
	KeySiteGuest          = "siteguest"
	KeySiteAdmins         = "siteadmins"
	KeyWWWRoot            = "wwwroot"
)

// PluginKeys are the settings owned by the login bridge
var PluginKeys = []string{
	KeyAPIKey,
	KeyAllowIPAddr,
	KeyDefaultUserIDField,
	KeyLoginRedirect,
	KeyPasswordURL,
	KeyProfileURL,
	KeyMaxRequestAge,
}

// SiteKeys are the host site settings the bridge reads
var SiteKeys = []string{KeySiteGuest, KeySiteAdmins, KeyWWWRoot}

var (
	// ErrNoSettings is returned when the settings source holds nothing
	ErrNoSettings = errors.New("no apilogin settings found")
	// ErrNoAPIKey is returned when settings load but carry no api key
	ErrNoAPIKey = errors.New("apilogin api key is not configured")
)

// Settings is the durable configuration read on every request
type Settings struct {
	APIKey             string
	AllowIPAddr        []string
	DefaultUserIDField string
	LoginRedirect      string
	PasswordURL        string
	ProfileURL         string
	// MaxRequestAge rejects signed requests older than this; zero disables the check
	MaxRequestAge time.Duration

	SiteGuest  int64
	SiteAdmins []int64
	WWWRoot    string
}

// SettingsReader loads the current settings
type SettingsReader interface {
	Load(ctx context.Context) (*Settings, error)
}

var listSeparator = regexp.MustCompile(`\s*[,;]\s*`)

// SplitList splits a comma or semicolon separated setting, dropping empty items
func SplitList(raw string) []string {
	var out []string
	for _, item := range listSeparator.Split(strings.TrimSpace(raw), -1) {
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// FromMap builds Settings from raw name/value pairs.
// A missing api key is an error; the bridge never runs unsigned.
func FromMap(values map[string]string) (*Settings, error) {
	s := &Settings{
		APIKey:             strings.TrimSpace(values[KeyAPIKey]),
		AllowIPAddr:        SplitList(values[KeyAllowIPAddr]),
		DefaultUserIDField: strings.TrimSpace(values[KeyDefaultUserIDField]),
		LoginRedirect:      strings.TrimSpace(values[KeyLoginRedirect]),
		PasswordURL:        strings.TrimSpace(values[KeyPasswordURL]),
		ProfileURL:         strings.TrimSpace(values[KeyProfileURL]),
		WWWRoot:            strings.TrimRight(strings.TrimSpace(values[KeyWWWRoot]), "/"),
	}

	if s.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	if raw := strings.TrimSpace(values[KeyMaxRequestAge]); raw != "" {
		secs, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("invalid %s setting: %q", KeyMaxRequestAge, raw)
		}
		s.MaxRequestAge = time.Duration(secs) * time.Second
	}

	if raw := strings.TrimSpace(values[KeySiteGuest]); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s setting: %q", KeySiteGuest, raw)
		}
		s.SiteGuest = id
	}

	for _, item := range SplitList(values[KeySiteAdmins]) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s setting: %q", KeySiteAdmins, item)
		}
		s.SiteAdmins = append(s.SiteAdmins, id)
	}

	return s, nil
}

// IPAllowed reports whether ip is on the allow-list. An empty list allows nothing.
func (s *Settings) IPAllowed(ip string) bool {
	for _, allowed := range s.AllowIPAddr {
		if allowed == ip {
			return true
		}
	}
	return false
}

// IsSiteAdmin reports whether id is a local site administrator
func (s *Settings) IsSiteAdmin(id int64) bool {
	for _, admin := range s.SiteAdmins {
		if admin == id {
			return true
		}
	}
	return false
}

// IsGuest reports whether the account is the site guest
func (s *Settings) IsGuest(id int64, username string) bool {
	return username == "guest" || (s.SiteGuest != 0 && s.SiteGuest == id)
}

// CanChangePassword reports whether passwords are changed locally
func (s *Settings) CanChangePassword() bool {
	return s.PasswordURL == ""
}

// CanEditProfile reports whether profiles are edited locally
func (s *Settings) CanEditProfile() bool {
	return s.ProfileURL == ""
}

// DashboardURL is where a signed-in user lands when nothing else is requested
func (s *Settings) DashboardURL() string {
	return s.WWWRoot + "/my/"
}

// ResolveURL makes a configured URL absolute against wwwroot
func (s *Settings) ResolveURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || s.WWWRoot == "" {
		return raw
	}
	base, err := url.Parse(s.WWWRoot + "/")
	if err != nil {
		return raw
	}
	return base.ResolveReference(u).String()
}

// GenerateAPIKey returns a random key suitable for the apikey setting
func GenerateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

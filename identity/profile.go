package identity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-social-auth/core"
)

const (
	googleIssuer      = "https://accounts.google.com"
	githubIssuer      = "https://github.com"
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	githubUserInfoURL = "https://api.github.com/user"
)

// UserProfile is the normalized view of a provider's user claims.
type UserProfile struct {
	ProviderSlug  string
	Issuer        string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	GivenName     string
	FamilyName    string
	PictureURL    string
	Locale        string
	Raw           map[string]any
}

// External converts the profile into the core's ephemeral profile. When
// requireVerified is set an unverified email is dropped so it cannot be used
// for account matching.
func (p UserProfile) External(requireVerified bool) core.ExternalProfile {
	email := strings.TrimSpace(p.Email)
	if requireVerified && !p.EmailVerified {
		email = ""
	}
	raw := copyMap(p.Raw)
	if issuer := strings.TrimSpace(p.Issuer); issuer != "" {
		raw["iss"] = issuer
	}
	return core.ExternalProfile{
		ExternalID:  strings.TrimSpace(p.Subject),
		Email:       email,
		DisplayName: strings.TrimSpace(p.Name),
		Raw:         raw,
	}
}

type ProfileNormalizer func(providerSlug string, issuer string, payload map[string]any) UserProfile

func decodeJWTPayload(token string) (map[string]any, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) < 2 {
		return nil, fmt.Errorf("identity: invalid id_token format")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("identity: decode id_token payload: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(decoded, &payload); err != nil {
		return nil, fmt.Errorf("identity: decode id_token claims: %w", err)
	}
	return payload, nil
}

func normalizeOIDCProfile(providerSlug string, issuer string, payload map[string]any) UserProfile {
	profile := UserProfile{
		ProviderSlug:  core.NormalizeSlug(providerSlug),
		Issuer:        strings.TrimSpace(issuer),
		Subject:       readString(payload["sub"]),
		Email:         readString(payload["email"]),
		EmailVerified: readBool(payload["email_verified"]),
		Name:          readString(payload["name"]),
		GivenName:     readString(payload["given_name"]),
		FamilyName:    readString(payload["family_name"]),
		PictureURL:    readString(payload["picture"]),
		Locale:        readString(payload["locale"]),
		Raw:           copyMap(payload),
	}
	if profile.Name == "" {
		profile.Name = strings.TrimSpace(strings.Join(
			[]string{profile.GivenName, profile.FamilyName},
			" ",
		))
	}
	return profile
}

// normalizeGitHubProfile maps the GitHub /user payload. GitHub only returns a
// public email there, and never a verification flag.
func normalizeGitHubProfile(providerSlug string, issuer string, payload map[string]any) UserProfile {
	subject := readString(payload["id"])
	if subject == "" {
		subject = readString(payload["node_id"])
	}
	login := readString(payload["login"])
	if subject == "" {
		subject = login
	}
	name := readString(payload["name"])
	if name == "" {
		name = login
	}
	return UserProfile{
		ProviderSlug: core.NormalizeSlug(providerSlug),
		Issuer:       strings.TrimSpace(issuer),
		Subject:      subject,
		Email:        readString(payload["email"]),
		Name:         name,
		PictureURL:   readString(payload["avatar_url"]),
		Locale:       readString(payload["locale"]),
		Raw:          copyMap(payload),
	}
}

func copyMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func readString(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return strings.TrimSpace(typed.String())
	case fmt.Stringer:
		return strings.TrimSpace(typed.String())
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatInt(int64(typed), 10)
	default:
		if value == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(value))
	}
}

func readBool(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(typed))
		return err == nil && parsed
	case json.Number:
		parsed, err := typed.Int64()
		return err == nil && parsed != 0
	case int:
		return typed != 0
	case int64:
		return typed != 0
	case float64:
		return typed != 0
	default:
		return false
	}
}

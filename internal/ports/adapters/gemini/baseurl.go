package gemini

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"

	defaultHost = "generativelanguage.googleapis.com"
	apiVersion  = "v1beta"
)

// ValidateBaseURL accepts only a bare https origin on an allowed host.
// The adapter appends /v1beta/models/{model}:generateContent itself, so
// any path on the base URL is rejected.
func ValidateBaseURL(baseURL string, allowedHosts []string) error {
	origin := cleanOrigin(baseURL)
	u, err := url.Parse(origin)
	if err != nil {
		return errors.Wrap(err, "invalid GEMINI_BASE_URL")
	}
	if problem := originProblem(u); problem != "" {
		return errors.Errorf("invalid GEMINI_BASE_URL %q: %s", origin, problem)
	}

	host := strings.ToLower(u.Hostname())
	if _, ok := allowedHostSet(allowedHosts)[host]; !ok {
		return errors.Errorf("invalid GEMINI_BASE_URL %q: host %q is not in GEMINI_ALLOWED_HOSTS", origin, host)
	}
	return nil
}

func originProblem(u *url.URL) string {
	switch {
	case !u.IsAbs() || u.Hostname() == "":
		return "absolute URL with host is required"
	case u.User != nil:
		return "userinfo is not allowed"
	case u.RawQuery != "" || u.ForceQuery || u.Fragment != "":
		return "query and fragment are not allowed"
	case !strings.EqualFold(u.Scheme, "https"):
		return "https is required"
	case u.Path != "" || u.Opaque != "":
		return "path is not allowed; use the origin only (the " + apiVersion + " path is added automatically)"
	}
	return ""
}

// cleanOrigin trims whitespace and trailing slashes, defaulting to the public API.
func cleanOrigin(baseURL string) string {
	origin := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if origin == "" {
		return DefaultBaseURL
	}
	return origin
}

// allowedHostSet reduces entries such as "proxy.internal" or
// "https://proxy.internal:8443/" to bare host names.
func allowedHostSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.Contains(e, "://") {
			e = "https://" + e
		}
		if u, err := url.Parse(e); err == nil && u.Hostname() != "" {
			set[u.Hostname()] = struct{}{}
		}
	}
	if len(set) == 0 {
		set[defaultHost] = struct{}{}
	}
	return set
}

func generateURL(origin, model string) string {
	return origin + "/" + apiVersion + "/models/" + url.PathEscape(model) + ":generateContent"
}

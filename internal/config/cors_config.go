package config

import "strings"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins []string

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	for _, o := range a {
		if o == origin || o == "*" {
			return true
		}
	}
	return false
}

func (a AllowedOrigins) String() string {
	return strings.Join(a, ", ")
}

// The capacitor webview serves the bundle from these origins.
var defaultAllowedOrigins = "capacitor://localhost,http://localhost,https://localhost"

func (Cors) GetAllowedOrigins() AllowedOrigins {
	var origins AllowedOrigins
	for _, o := range strings.Split(GetEnv("ALLOWED_ORIGINS", defaultAllowedOrigins), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (Cors) GetAllowedMethods() []string {
	return []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
}

func (Cors) GetAllowedHeaders() []string {
	return []string{"Content-Type", "Authorization", "X-Request-ID"}
}

package collector

import (
	"net/url"
)

// proxyEnvVars is checked in order; the first usable value wins.
var proxyEnvVars = []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"}

// Proxy is the proxy selected from the environment.
type Proxy struct {
	URL      *url.URL
	Username string
	Password string
	EnvVar   string
}

// ProxyFromEnvironment returns the first proxy variable that parses to a URL
// with a host, or nil when there is none.
func ProxyFromEnvironment(getenv func(string) string) *Proxy {
	for _, name := range proxyEnvVars {
		value := getenv(name)
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			continue
		}
		proxy := &Proxy{URL: u, EnvVar: name}
		if u.User != nil {
			proxy.Username = u.User.Username()
			proxy.Password, _ = u.User.Password()
		}
		return proxy
	}
	return nil
}

// proxyURL rebuilds the proxy URL with its credentials so the transport
// sends Proxy-Authorization.
func (p *Proxy) proxyURL() *url.URL {
	u := *p.URL
	u.User = nil
	if p.URL.User != nil {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return &u
}

// Redacted is the proxy URL without its password.
func (p *Proxy) Redacted() string {
	return p.proxyURL().Redacted()
}

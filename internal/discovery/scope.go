// internal/discovery/scope.go
package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// SiteScope limits link following to the registrable domain (eTLD+1) of the
// page the links were found on, subdomains included.
type SiteScope struct {
	rootDomain string
}

// NewSiteScope derives the scope from a page URL.
func NewSiteScope(pageURL *url.URL) (*SiteScope, error) {
	hostname := strings.ToLower(pageURL.Hostname())
	if hostname == "" {
		return nil, fmt.Errorf("page URL must have a hostname: %s", pageURL)
	}

	if net.ParseIP(hostname) != nil {
		return &SiteScope{rootDomain: hostname}, nil
	}

	// The Public Suffix List handles domains like example.co.uk correctly.
	domain, err := publicsuffix.EffectiveTLDPlusOne(hostname)
	if err != nil {
		// Single-label hosts such as localhost have no eTLD+1.
		domain = hostname
	}
	return &SiteScope{rootDomain: domain}, nil
}

// IsInScope reports whether u is on the same site.
func (s *SiteScope) IsInScope(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == s.rootDomain || strings.HasSuffix(host, "."+s.rootDomain)
}

// RootDomain returns the eTLD+1 defining the scope.
func (s *SiteScope) RootDomain() string {
	return s.rootDomain
}

// Package catalog holds the fixed list of pages every capability validates
// and the rules for composing their URLs.
package catalog

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/entrhq/visreg/pkg/types"
	"github.com/gobwas/glob"
)

// Page is one entry of the catalog. It is shared read-only by every capability run.
type Page struct {
	// Path is the URL segment relative to the site root; "" is the home page.
	Path string

	// Index is the position in the catalog after filtering.
	Index int
}

// DefaultPaths is the page list of the production site.
var DefaultPaths = []string{
	"", "company", "culture", "testimonials", "how-we-work", "contact", "case-studies",

	"services", "services/software-engineering", "services/product-development",
	"services/big-data-cloud-migration", "services/tech-client-support",
	"services/discovery-phase", "services/digital-transformation", "services/ui-ux-design",
	"services/mobile-development",

	"real-estate-software-development-services",

	"industries", "industries/scm-supply-chain-management-software-solutions",
	"industries/fintech-solutions", "industries/healthcare-software-development",
	"industries/construction-real-estate-software", "industries/retail-software-development",
	"industries/automotive-software-development",

	"blog", "blog/mobile-app-ui-design-what-to-look-out-for-in-2023",

	"careers", "careers/jobs/full-stack-engineer-java-typescript",

	"policy/privacy", "policy/cookie",

	"projects/property-management-app", "projects/hoste", "projects/cloud-structure-for-saas",
	"projects/vsb", "projects/w-health", "projects/project-web",
}

// Catalog is an ordered, filtered set of pages under one base URL.
type Catalog struct {
	base  *url.URL
	pages []Page
}

// Option configures catalog construction.
type Option func(*options)

type options struct {
	name func(path string) string
}

// WithNameFunc sets the function deriving a page's artifact name. Two kept
// pages with the same name are rejected.
func WithNameFunc(fn func(path string) string) Option {
	return func(o *options) {
		if fn != nil {
			o.name = fn
		}
	}
}

// flatName is the default page identity: the path with "/" flattened to "-".
func flatName(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}

// New builds a catalog from paths, keeping those that pass the include and
// exclude glob patterns. Exclusions take precedence; no include patterns means
// everything is included. Duplicate paths, and distinct paths that map to the
// same artifact name, are rejected because they would produce two outcomes
// with the same identity. Every error is a configuration error.
func New(baseURL string, paths, include, exclude []string, opts ...Option) (*Catalog, error) {
	o := options{name: flatName}
	for _, opt := range opts {
		opt(&o)
	}

	c, err := build(baseURL, paths, include, exclude, o)
	if err != nil {
		return nil, types.Wrap(types.KindConfiguration, "catalog", err)
	}
	return c, nil
}

func build(baseURL string, paths, include, exclude []string, o options) (*Catalog, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	matcher, err := newPatternMatcher(include, exclude)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(paths))
	names := make(map[string]string, len(paths))
	c := &Catalog{base: base}
	for _, raw := range paths {
		p := normalize(raw)
		if seen[p] {
			return nil, fmt.Errorf("duplicate page %q in catalog", p)
		}
		seen[p] = true

		if !matcher.isAllowed(p) {
			continue
		}

		name := o.name(p)
		if other, ok := names[name]; ok {
			return nil, fmt.Errorf("pages %q and %q share the artifact name %q", other, p, name)
		}
		names[name] = p

		c.pages = append(c.pages, Page{Path: p, Index: len(c.pages)})
	}

	if len(c.pages) == 0 {
		return nil, fmt.Errorf("page catalog is empty after filtering")
	}
	return c, nil
}

// Pages returns a copy of the catalog's pages in order.
func (c *Catalog) Pages() []Page {
	out := make([]Page, len(c.pages))
	copy(out, c.pages)
	return out
}

// Len returns the number of pages.
func (c *Catalog) Len() int {
	return len(c.pages)
}

// URL composes the absolute URL of p. Every page URL ends with a slash, the
// form the site serves without a redirect.
func (c *Catalog) URL(p Page) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + "/"
	if p.Path != "" {
		u.Path += p.Path + "/"
	}
	return u.String()
}

func normalize(p string) string {
	return strings.Trim(strings.TrimSpace(p), "/")
}

type patternMatcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

func newPatternMatcher(include, exclude []string) (*patternMatcher, error) {
	pm := &patternMatcher{}

	for _, pattern := range include {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern '%s': %w", pattern, err)
		}
		pm.include = append(pm.include, g)
	}

	for _, pattern := range exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		pm.exclude = append(pm.exclude, g)
	}

	return pm, nil
}

func (pm *patternMatcher) isAllowed(path string) bool {
	for _, pattern := range pm.exclude {
		if pattern.Match(path) {
			return false
		}
	}

	if len(pm.include) == 0 {
		return true
	}

	for _, pattern := range pm.include {
		if pattern.Match(path) {
			return true
		}
	}
	return false
}

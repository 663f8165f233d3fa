package satellites

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Record is one cooperating satellite domain.
type Record struct {
	ID          string    `json:"id" yaml:"id"`
	Origin      string    `json:"domain" yaml:"domain"`     // https://www.example.org
	Hostname    string    `json:"hostname" yaml:"hostname"` // derived from Origin
	DisplayName string    `json:"displayName" yaml:"displayName"`
	TenantID    string    `json:"tenantId,omitempty" yaml:"tenantId"`
	Enabled     bool      `json:"enabled" yaml:"enabled"`
	AddedDate   string    `json:"addedDate,omitempty" yaml:"addedDate"`
	Branding    *Branding `json:"branding,omitempty" yaml:"branding"`
}

// ShowHeader reports whether satellite chrome replaces the primary header on auth pages.
func (r Record) ShowHeader() bool { return r.Branding != nil && r.Branding.ShowOnAuth.Header }

// ShowFooter reports whether satellite chrome replaces the primary footer on auth pages.
func (r Record) ShowFooter() bool { return r.Branding != nil && r.Branding.ShowOnAuth.Footer }

type Branding struct {
	OrgName    string
	FullName   string
	Tagline    string
	Logo       Logo
	Theme      Theme
	Contact    Contact
	Social     Social
	ShowOnAuth ShowOnAuth
}

// Logo is either a TextLogo or an ImageLogo.
type Logo interface {
	logo()
	Colors() LogoColors
}

type LogoColors struct {
	Primary   string
	Secondary string
}

// TextLogo renders the organization name in the logo colors.
type TextLogo struct {
	LogoColors
}

// ImageLogo renders an image; URL is never empty.
type ImageLogo struct {
	URL string
	LogoColors
}

func (TextLogo) logo() {}

func (ImageLogo) logo() {}

func (l TextLogo) Colors() LogoColors { return l.LogoColors }

func (l ImageLogo) Colors() LogoColors { return l.LogoColors }

type Theme struct {
	PrimaryColor string `json:"primaryColor" yaml:"primaryColor"`
	HoverColor   string `json:"hoverColor" yaml:"hoverColor"`
	ActiveColor  string `json:"activeColor" yaml:"activeColor"`
}

type Contact struct {
	Address  string `json:"address" yaml:"address"`
	Phone    string `json:"phone" yaml:"phone"`
	TollFree string `json:"tollFree,omitempty" yaml:"tollFree"`
	Email    string `json:"email" yaml:"email"`
}

type Social struct {
	Facebook string `json:"facebook,omitempty" yaml:"facebook"`
	Twitter  string `json:"twitter,omitempty" yaml:"twitter"`
	LinkedIn string `json:"linkedin,omitempty" yaml:"linkedin"`
	YouTube  string `json:"youtube,omitempty" yaml:"youtube"`
}

type ShowOnAuth struct {
	Header bool `json:"header" yaml:"header"`
	Footer bool `json:"footer" yaml:"footer"`
}

// brandingDoc is the on-disk / on-wire shape of Branding.
type brandingDoc struct {
	OrgName    string     `json:"orgName" yaml:"orgName"`
	FullName   string     `json:"fullName" yaml:"fullName"`
	Tagline    string     `json:"tagline" yaml:"tagline"`
	Logo       logoDoc    `json:"logo" yaml:"logo"`
	Theme      Theme      `json:"theme" yaml:"theme"`
	Contact    Contact    `json:"contact" yaml:"contact"`
	Social     Social     `json:"social" yaml:"social"`
	ShowOnAuth ShowOnAuth `json:"showOnAuth" yaml:"showOnAuth"`
}

type logoDoc struct {
	Type           string `json:"type" yaml:"type"`
	URL            string `json:"url,omitempty" yaml:"url"`
	PrimaryColor   string `json:"primaryColor" yaml:"primaryColor"`
	SecondaryColor string `json:"secondaryColor" yaml:"secondaryColor"`
}

func (d brandingDoc) branding() (Branding, error) {
	colors := LogoColors{Primary: d.Logo.PrimaryColor, Secondary: d.Logo.SecondaryColor}
	var logo Logo
	switch strings.ToLower(d.Logo.Type) {
	case "", "text":
		logo = TextLogo{LogoColors: colors}
	case "image":
		// an image logo without a source renders as text
		if d.Logo.URL == "" {
			logo = TextLogo{LogoColors: colors}
		} else {
			logo = ImageLogo{URL: d.Logo.URL, LogoColors: colors}
		}
	default:
		return Branding{}, fmt.Errorf("unknown logo type %q", d.Logo.Type)
	}
	return Branding{
		OrgName:    d.OrgName,
		FullName:   d.FullName,
		Tagline:    d.Tagline,
		Logo:       logo,
		Theme:      d.Theme,
		Contact:    d.Contact,
		Social:     d.Social,
		ShowOnAuth: d.ShowOnAuth,
	}, nil
}

func (b Branding) doc() brandingDoc {
	d := brandingDoc{
		OrgName:    b.OrgName,
		FullName:   b.FullName,
		Tagline:    b.Tagline,
		Theme:      b.Theme,
		Contact:    b.Contact,
		Social:     b.Social,
		ShowOnAuth: b.ShowOnAuth,
	}
	switch l := b.Logo.(type) {
	case ImageLogo:
		d.Logo = logoDoc{Type: "image", URL: l.URL, PrimaryColor: l.Primary, SecondaryColor: l.Secondary}
	case TextLogo:
		d.Logo = logoDoc{Type: "text", PrimaryColor: l.Primary, SecondaryColor: l.Secondary}
	default:
		d.Logo = logoDoc{Type: "text"}
	}
	return d
}

func (b Branding) MarshalJSON() ([]byte, error) { return json.Marshal(b.doc()) }

func (b *Branding) UnmarshalJSON(data []byte) error {
	var d brandingDoc
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	out, err := d.branding()
	if err != nil {
		return err
	}
	*b = out
	return nil
}

func (b *Branding) UnmarshalYAML(node *yaml.Node) error {
	var d brandingDoc
	if err := node.Decode(&d); err != nil {
		return err
	}
	out, err := d.branding()
	if err != nil {
		return err
	}
	*b = out
	return nil
}

// Normalize validates r and fills derived fields. The origin is reduced to
// scheme://host[:port]; the hostname always comes from the origin.
func Normalize(r Record) (Record, error) {
	raw := strings.TrimSpace(r.Origin)
	if raw == "" {
		return Record{}, fmt.Errorf("satellite %q: domain is required", r.ID)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Record{}, fmt.Errorf("satellite %q: parse domain: %w", r.ID, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Record{}, fmt.Errorf("satellite %q: domain %q must be an absolute http(s) origin", r.ID, raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return Record{}, fmt.Errorf("satellite %q: domain %q has no host", r.ID, raw)
	}
	if r.Hostname != "" && !strings.EqualFold(strings.TrimSpace(r.Hostname), host) {
		return Record{}, fmt.Errorf("satellite %q: hostname %q does not match domain host %q", r.ID, r.Hostname, host)
	}
	r.Hostname = host
	r.Origin = u.Scheme + "://" + strings.ToLower(u.Host)
	if r.ID == "" {
		r.ID = host
	}
	if strings.TrimSpace(r.DisplayName) == "" {
		r.DisplayName = DisplayNameFor(host)
	}
	return r, nil
}

// DisplayNameFor derives a human name from a hostname:
// "www.md-strikers.com" -> "Md Strikers".
func DisplayNameFor(hostname string) string {
	host := strings.TrimPrefix(strings.ToLower(hostname), "www.")
	label, _, _ := strings.Cut(host, ".")
	words := strings.FieldsFunc(label, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + w[size:]
	}
	if len(words) == 0 {
		return hostname
	}
	return strings.Join(words, " ")
}

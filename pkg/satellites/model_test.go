package satellites

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayNameFor(t *testing.T) {
	cases := map[string]string{
		"www.md-strikers.com":     "Md Strikers",
		"sat1.example.com":        "Sat1",
		"blue_river-club.org":     "Blue River Club",
		"WWW.Example.com":         "Example",
		"localhost":               "Localhost",
		"www.a--b.example.com":    "A B",
		"ünicode-club.example.io": "Ünicode Club",
	}
	for in, want := range cases {
		assert.Equal(t, want, DisplayNameFor(in), in)
	}
}

func TestNormalize(t *testing.T) {
	t.Run("derives hostname id and display name", func(t *testing.T) {
		r, err := Normalize(Record{Origin: " https://WWW.Md-Strikers.com/some/path ", Enabled: true})
		require.NoError(t, err)
		assert.Equal(t, "https://www.md-strikers.com", r.Origin)
		assert.Equal(t, "www.md-strikers.com", r.Hostname)
		assert.Equal(t, "www.md-strikers.com", r.ID)
		assert.Equal(t, "Md Strikers", r.DisplayName)
	})

	t.Run("keeps explicit values", func(t *testing.T) {
		r, err := Normalize(Record{ID: "s1", Origin: "http://sat.example.com:8443", Hostname: "SAT.example.com", DisplayName: "Saturn"})
		require.NoError(t, err)
		assert.Equal(t, "http://sat.example.com:8443", r.Origin)
		assert.Equal(t, "sat.example.com", r.Hostname)
		assert.Equal(t, "s1", r.ID)
		assert.Equal(t, "Saturn", r.DisplayName)
	})

	bad := []Record{
		{},
		{Origin: "sat.example.com"},
		{Origin: "ftp://sat.example.com"},
		{Origin: "https://"},
		{Origin: "https://sat.example.com", Hostname: "other.example.com"},
	}
	for _, r := range bad {
		_, err := Normalize(r)
		assert.Error(t, err, "%+v", r)
	}
}

func TestBrandingLogoVariants(t *testing.T) {
	decode := func(t *testing.T, logo string) (*Branding, error) {
		t.Helper()
		var r Record
		err := json.Unmarshal([]byte(`{"domain":"https://a.example.com","branding":{"orgName":"A","logo":`+logo+`}}`), &r)
		return r.Branding, err
	}

	b, err := decode(t, `{"type":"image","url":"https://cdn.example.com/a.png","primaryColor":"#111"}`)
	require.NoError(t, err)
	img, ok := b.Logo.(ImageLogo)
	require.True(t, ok)
	assert.Equal(t, "https://cdn.example.com/a.png", img.URL)
	assert.Equal(t, "#111", img.Colors().Primary)

	b, err = decode(t, `{"type":"image","primaryColor":"#222","secondaryColor":"#333"}`)
	require.NoError(t, err)
	txt, ok := b.Logo.(TextLogo)
	require.True(t, ok, "image without url falls back to text")
	assert.Equal(t, LogoColors{Primary: "#222", Secondary: "#333"}, txt.Colors())

	b, err = decode(t, `{}`)
	require.NoError(t, err)
	assert.IsType(t, TextLogo{}, b.Logo)

	_, err = decode(t, `{"type":"svg"}`)
	assert.Error(t, err)
}

func TestBrandingJSONShape(t *testing.T) {
	b := Branding{OrgName: "Sat", Logo: ImageLogo{URL: "https://x/l.png", LogoColors: LogoColors{Primary: "#fff"}}, ShowOnAuth: ShowOnAuth{Header: true}}
	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"orgName":"Sat","fullName":"","tagline":"",
		"logo":{"type":"image","url":"https://x/l.png","primaryColor":"#fff","secondaryColor":""},
		"theme":{"primaryColor":"","hoverColor":"","activeColor":""},
		"contact":{"address":"","phone":"","email":""},
		"social":{},
		"showOnAuth":{"header":true,"footer":false}
	}`, string(raw))

	r := Record{Branding: &b}
	assert.True(t, r.ShowHeader())
	assert.False(t, r.ShowFooter())
	assert.False(t, Record{}.ShowHeader())
}

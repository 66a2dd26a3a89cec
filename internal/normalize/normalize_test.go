package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhone(t *testing.T) {
	tests := []struct {
		name string
		in   string
		cc   string
		want string
	}{
		{name: "national landline", in: "02 1234 5678", cc: "61", want: "+61212345678"},
		{name: "mobile", in: "0412 345 678", cc: "61", want: "+61412345678"},
		{name: "already international", in: "+61 2 1234 5678", cc: "61", want: "+61212345678"},
		{name: "international other country", in: "+1 (650) 253-0000", cc: "61", want: "+16502530000"},
		{name: "national number in another region", in: "(650) 253-0000", cc: "1", want: "+16502530000"},
		{name: "double zero prefix", in: "0061 2 1234 5678", cc: "61", want: "+61212345678"},
		{name: "tel scheme", in: "tel:0212345678", cc: "61", want: "+61212345678"},
		{name: "country code without plus", in: "61212345678", cc: "61", want: "+61212345678"},
		{name: "default country code", in: "02 1234 5678", cc: "", want: "+61212345678"},
		{name: "too short", in: "123", cc: "61", want: ""},
		{name: "too long", in: "+123456789012345678", cc: "61", want: ""},
		{name: "empty", in: "  ", cc: "61", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Phone(tt.in, tt.cc))
		})
	}
}

func TestPlausiblePhone(t *testing.T) {
	assert.True(t, PlausiblePhone("+61212345678"))
	assert.True(t, PlausiblePhone("+61412345678"))
	assert.False(t, PlausiblePhone("61212345678"))
	assert.False(t, PlausiblePhone("+61 2 1234 5678"))
	assert.False(t, PlausiblePhone("+6100000000"))
	assert.False(t, PlausiblePhone(""))
}

func TestRegion(t *testing.T) {
	assert.Equal(t, "AU", Region("61"))
	assert.Equal(t, "AU", Region(""))
	assert.Equal(t, "AU", Region("+61"))
	assert.Equal(t, "US", Region("1"))
	assert.Equal(t, "ZZ", Region("999"))
}

func TestURL(t *testing.T) {
	assert.Equal(t, "https://example.com.au/about", URL("example.com.au/about"))
	assert.Equal(t, "https://example.com/x", URL("HTTPS://Example.COM/x#top"))
	assert.Equal(t, "https://cdn.example.com/a.png", URL("//cdn.example.com/a.png"))
	assert.Equal(t, "", URL("mailto:hi@example.com"))
	assert.Equal(t, "", URL("not a url"))
	assert.Equal(t, "", URL("localhost"))
	assert.Equal(t, "", URL("ftp://example.com/file"))
}

func TestHost(t *testing.T) {
	assert.Equal(t, "example.com", Host("https://www.Example.com/path"))
	assert.Equal(t, "", Host(""))
}

func TestHandle(t *testing.T) {
	assert.Equal(t, "acme_plumbing", Handle("https://instagram.com/acme_plumbing/"))
	assert.Equal(t, "acme-pty-ltd", Handle("https://www.linkedin.com/company/acme-pty-ltd"))
	assert.Equal(t, "acme", Handle("@acme"))
	assert.Equal(t, "acmetv", Handle("https://youtube.com/@acmetv"))
}

func TestSocialURL(t *testing.T) {
	assert.Equal(t, "https://facebook.com/acme", SocialURL("http://facebook.com/acme/?ref=footer"))
}

func TestState(t *testing.T) {
	assert.Equal(t, "NSW", State("New South Wales"))
	assert.Equal(t, "VIC", State(" vic. "))
	assert.Equal(t, "ACT", State("Australian Capital  Territory"))
	assert.Equal(t, "", State("California"))
	assert.True(t, IsState("QLD"))
	assert.False(t, IsState("qld"))
}

func TestTitleAndSpaces(t *testing.T) {
	assert.Equal(t, "Acme Plumbing Co", Title("acme plumbing co"))
	assert.Equal(t, "a b c", Spaces("  a \n b\t c "))
	assert.Equal(t, "51824753556", Digits("51 824 753 556"))
}

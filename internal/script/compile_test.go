package script

import (
	"errors"
	"reflect"
	"testing"

	"github.com/signkeeper/signkeeper/types"
)

func header(lines ...string) string {
	text := "// ==UserScript==\n"
	for _, l := range lines {
		text += "// " + l + "\n"
	}
	return text + "// ==/UserScript==\n"
}

func TestCompile_RequiredDirectives(t *testing.T) {
	if _, err := Compile(header("@domain example.com")); !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing @name: expected ErrValidation, got %v", err)
	}
	if _, err := Compile(header("@name hello")); !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing @domain: expected ErrValidation, got %v", err)
	}
	// A bare @domain with no value counts as missing.
	if _, err := Compile(header("@name hello", "@domain")); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty @domain: expected ErrValidation, got %v", err)
	}
}

func TestCompile_Defaults(t *testing.T) {
	text := header("@name hello", "@domain example.com")
	def, err := Compile(text)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	if def.Author != "" {
		t.Errorf("author default: got %q, want empty", def.Author)
	}
	if def.Freq != 0 {
		t.Errorf("freq default: got %d, want 0", def.Freq)
	}
	if def.Expire != 900000 {
		t.Errorf("expire default: got %d, want 900000", def.Expire)
	}
	if def.Enable {
		t.Error("enable must be false at compile time")
	}
	if def.Code != text {
		t.Error("code must retain the raw source text unchanged")
	}
	if def.Identity() != "/hello" {
		t.Errorf("identity: got %q, want %q", def.Identity(), "/hello")
	}
}

func TestCompile_Domains(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !reflect.DeepEqual(def.Domains, []string{"a.com"}) {
		t.Errorf("single domain: got %v", def.Domains)
	}

	def, err = Compile(header("@name t", "@domain a.com", "@domain b.com"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !reflect.DeepEqual(def.Domains, []string{"a.com", "b.com"}) {
		t.Errorf("repeated domain: got %v", def.Domains)
	}
}

func TestCompile_GrantRepetitionQuirk(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@grant a", "@grant b"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !reflect.DeepEqual(def.Grants, []string{"a", "b"}) {
		t.Errorf("grants: got %v, want [a b]", def.Grants)
	}
	// The raw directive keeps the documented quirk visible: latest wins
	// for the singular value, the list holds the full history.
	grant := def.Extra["grant"]
	if grant.Latest != "b" {
		t.Errorf("grant latest: got %q, want %q", grant.Latest, "b")
	}
	if !reflect.DeepEqual(grant.All, []string{"a", "b"}) {
		t.Errorf("grant history: got %v, want [a b]", grant.All)
	}
}

func TestCompile_GrantCommaSplit(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@grant net,cookie"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !reflect.DeepEqual(def.Grants, []string{"net", "cookie"}) {
		t.Errorf("grants: got %v, want [net cookie]", def.Grants)
	}
}

func TestCompile_ParamTwoTokens(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@param foo bar"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if len(def.Params) != 1 {
		t.Fatalf("expected 1 param, got %d", len(def.Params))
	}
	p := def.Params[0]
	if p.Name != "foo" || p.Label != "bar" || p.Placeholder != "foo" || p.Type != "text" {
		t.Errorf("param: got %+v", p)
	}
}

func TestCompile_ParamSelect(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@param foo [1,2] choose,one"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	p := def.Params[0]
	if p.Type != "select" {
		t.Errorf("type: got %q, want select", p.Type)
	}
	if p.Options != "[1,2]" {
		t.Errorf("options: got %q, want [1,2]", p.Options)
	}
	if p.Label != "choose" {
		t.Errorf("label: got %q, want choose", p.Label)
	}
	if p.Placeholder != "one" {
		t.Errorf("placeholder: got %q, want one", p.Placeholder)
	}
}

func TestCompile_ParamSelectUnbracketed(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@param mode 1,2 pick a mode"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	p := def.Params[0]
	if p.Options != "[1,2]" {
		t.Errorf("options: got %q, want [1,2]", p.Options)
	}
	if p.Label != "pick a mode" {
		t.Errorf("label: got %q, want %q", p.Label, "pick a mode")
	}
}

func TestCompile_FreqExpireCoercion(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@freq nonsense", "@expire abc"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if def.Freq != 0 {
		t.Errorf("non-numeric freq: got %d, want 0", def.Freq)
	}
	if def.Expire != 900000 {
		t.Errorf("non-numeric expire: got %d, want 900000", def.Expire)
	}

	def, err = Compile(header("@name t", "@domain a.com", "@freq 60000", "@expire 120000"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if def.Freq != 60000 || def.Expire != 120000 {
		t.Errorf("numeric coercion: freq=%d expire=%d", def.Freq, def.Expire)
	}
}

func TestCompile_ExtraDirectivesCarried(t *testing.T) {
	def, err := Compile(header("@name t", "@domain a.com", "@loginURL https://a.com/login"))
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if def.LoginURL() != "https://a.com/login" {
		t.Errorf("loginURL: got %q", def.LoginURL())
	}
	// The temporary singular keys are shaped into fields, not kept.
	for _, k := range []string{"domain", "param", "name", "author"} {
		if _, ok := def.Extra[k]; ok {
			t.Errorf("directive %q should not survive in Extra", k)
		}
	}
}

func TestCompile_RoundTripStable(t *testing.T) {
	text := header("@name t", "@domain a.com", "@param user account", "@param pwd password")

	first, err := Compile(text)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	second, err := Compile(first.Code)
	if err != nil {
		t.Fatalf("re-Compile failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("compiling identical source must be idempotent")
	}
	if !reflect.DeepEqual(SeedParams(first), SeedParams(second)) {
		t.Error("seeded params must be stable across repeated compiles")
	}
	want := map[string]string{"user": "", "pwd": ""}
	if !reflect.DeepEqual(SeedParams(first), want) {
		t.Errorf("seed: got %v, want %v", SeedParams(first), want)
	}
}

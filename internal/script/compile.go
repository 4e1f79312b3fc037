package script

import (
	"strconv"
	"strings"

	"github.com/signkeeper/signkeeper/models"
	"github.com/signkeeper/signkeeper/types"
)

// defaultExpire is the result expiry applied when @expire is absent or
// invalid: 15 minutes in milliseconds.
const defaultExpire int64 = 900000

// directives shaped into dedicated TaskDefinition fields; everything else
// is carried generically in Extra.
var shapedDirectives = map[string]bool{
	"name":   true,
	"author": true,
	"domain": true,
	"param":  true,
	"freq":   true,
	"expire": true,
	"enable": true,
}

// Compile parses raw source text and shapes the directive mapping into a
// validated TaskDefinition. The raw text is retained unchanged in Code for
// later re-edit and re-compilation.
func Compile(text string) (*models.TaskDefinition, error) {
	header, err := Parse(text)
	if err != nil {
		return nil, err
	}

	def := &models.TaskDefinition{
		Author: header["author"].Latest,
		Code:   text,
		Expire: defaultExpire,
		// Activation is an explicit later step through the registry.
		Enable: false,
	}

	name, ok := header["name"]
	if !ok || name.Latest == "" {
		return nil, types.ValidationErrorf("missing @name")
	}
	def.Name = name.Latest

	domain, ok := header["domain"]
	if !ok || domain.Latest == "" {
		return nil, types.ValidationErrorf("missing @domain")
	}
	def.Domains = domain.Values()

	if grant, ok := header["grant"]; ok {
		if grant.All != nil {
			def.Grants = grant.All
		} else {
			def.Grants = strings.Split(grant.Latest, ",")
		}
	}

	if param, ok := header["param"]; ok {
		def.Params = make([]models.Param, 0, len(param.Values()))
		for _, line := range param.Values() {
			def.Params = append(def.Params, parseParam(line))
		}
	}

	if freq, ok := header["freq"]; ok {
		if n, err := strconv.ParseInt(freq.Latest, 10, 64); err == nil && n > 0 {
			def.Freq = n
		}
	}
	if expire, ok := header["expire"]; ok {
		if n, err := strconv.ParseInt(expire.Latest, 10, 64); err == nil && n > 0 {
			def.Expire = n
		}
	}

	for directive, d := range header {
		if shapedDirectives[directive] {
			continue
		}
		if def.Extra == nil {
			def.Extra = map[string]models.Directive{}
		}
		def.Extra[directive] = d
	}

	if err := models.ValidateStruct(def); err != nil {
		return nil, types.ValidationErrorf("%v", err)
	}
	return def, nil
}

// parseParam tokenizes one @param line. token[0] is the name and the default
// label/placeholder; with exactly two tokens the second is the label; with
// more, the second is a select-options literal and the rest form the label.
// A comma inside the label splits it into label and placeholder.
func parseParam(line string) models.Param {
	tokens := strings.Fields(line)
	p := models.Param{Type: "text"}
	if len(tokens) == 0 {
		return p
	}
	p.Name = tokens[0]
	p.Label = tokens[0]
	p.Placeholder = tokens[0]

	switch {
	case len(tokens) > 2:
		p.Type = "select"
		p.Options = optionsLiteral(tokens[1])
		p.Label = strings.Join(tokens[2:], " ")
	case len(tokens) == 2:
		p.Label = tokens[1]
	}

	if before, after, found := strings.Cut(p.Label, ","); found {
		p.Label = before
		p.Placeholder = after
	}
	return p
}

// optionsLiteral normalizes the select-options token into a bracketed list
// expression: "1,2" and "[1,2]" both become "[1,2]".
func optionsLiteral(token string) string {
	if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]") {
		return token
	}
	return "[" + token + "]"
}

// SeedParams returns the default parameter-value mapping for a definition:
// every declared param present with an empty value. Compiling identical
// source repeatedly yields identical seeds.
func SeedParams(def *models.TaskDefinition) map[string]string {
	if len(def.Params) == 0 {
		return map[string]string{}
	}
	params := make(map[string]string, len(def.Params))
	for _, p := range def.Params {
		params[p.Name] = ""
	}
	return params
}
